package verify

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeResolver returns canned answers and records lookup counts.
type fakeResolver struct {
	mu        sync.Mutex
	mx        map[string][]*net.MX
	hosts     map[string][]string
	mxErr     map[string]error
	mxCalls   int
	hostCalls int
}

func (f *fakeResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mxCalls++
	if err, ok := f.mxErr[name]; ok {
		return nil, err
	}
	if records, ok := f.mx[name]; ok {
		return records, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hostCalls++
	if addrs, ok := f.hosts[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

// TestVerifier_VerifyDomains tests MX lookup outcomes.
func TestVerifier_VerifyDomains(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		mx: map[string][]*net.MX{
			"example.com": {{Host: "mail.example.com.", Pref: 10}},
		},
		hosts: map[string][]string{
			"norecords.net": {"192.0.2.10"},
		},
	}

	v := NewVerifier(WithResolver(resolver), WithTimeout(time.Second))

	results := v.VerifyDomains(context.Background(), []string{
		"example.com", "norecords.net", "ghost.invalid",
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	byDomain := make(map[string]int)
	for i, r := range results {
		byDomain[r.Domain] = i
	}

	withMX := results[byDomain["example.com"]]
	if !withMX.HasMX {
		t.Error("expected example.com to have MX")
	}
	if withMX.MailHost != "mail.example.com" {
		t.Errorf("expected trailing dot trimmed from mail host, got %q", withMX.MailHost)
	}

	implicit := results[byDomain["norecords.net"]]
	if !implicit.HasMX {
		t.Error("expected resolving domain without MX records to pass")
	}
	if implicit.MailHost != "" {
		t.Errorf("expected empty mail host for implicit MX, got %q", implicit.MailHost)
	}

	ghost := results[byDomain["ghost.invalid"]]
	if ghost.HasMX {
		t.Error("expected unresolvable domain to fail")
	}
	if ghost.Error == "" {
		t.Error("expected error message for unresolvable domain")
	}
}

// TestVerifier_ResultsSorted tests deterministic result ordering.
func TestVerifier_ResultsSorted(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		mx: map[string][]*net.MX{
			"a.test": {{Host: "mx.a.test.", Pref: 5}},
			"b.test": {{Host: "mx.b.test.", Pref: 5}},
			"c.test": {{Host: "mx.c.test.", Pref: 5}},
		},
	}

	v := NewVerifier(WithResolver(resolver))

	results := v.VerifyDomains(context.Background(), []string{"c.test", "a.test", "b.test"})

	want := []string{"a.test", "b.test", "c.test"}
	for i, domain := range want {
		if results[i].Domain != domain {
			t.Errorf("expected domain %q at position %d, got %q", domain, i, results[i].Domain)
		}
	}
}

// TestVerifier_DedupesAndCaches tests that repeated domains cost one
// lookup within a batch and across batches.
func TestVerifier_DedupesAndCaches(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		mx: map[string][]*net.MX{
			"example.com": {{Host: "mail.example.com.", Pref: 10}},
		},
	}

	v := NewVerifier(WithResolver(resolver))

	first := v.VerifyDomains(context.Background(), []string{
		"example.com", "EXAMPLE.COM", " example.com ",
	})
	if len(first) != 1 {
		t.Fatalf("expected 1 result for one unique domain, got %d", len(first))
	}
	if got := resolver.mxCalls; got != 1 {
		t.Errorf("expected 1 MX lookup, got %d", got)
	}

	second := v.VerifyDomains(context.Background(), []string{"example.com"})
	if len(second) != 1 {
		t.Fatalf("expected 1 result, got %d", len(second))
	}
	if got := resolver.mxCalls; got != 1 {
		t.Errorf("expected cached result to skip the second lookup, got %d lookups", got)
	}
}

// TestVerifier_VerifyEmails tests domain extraction from addresses.
func TestVerifier_VerifyEmails(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		mx: map[string][]*net.MX{
			"example.com": {{Host: "mail.example.com.", Pref: 10}},
		},
	}

	v := NewVerifier(WithResolver(resolver))

	results := v.VerifyEmails(context.Background(), []string{
		"alice@example.com",
		"bob@example.com",
		"not-an-email",
	})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Domain != "example.com" {
		t.Errorf("expected domain example.com, got %q", results[0].Domain)
	}
}

// TestVerifier_EmptyInput tests the nil result for no domains.
func TestVerifier_EmptyInput(t *testing.T) {
	t.Parallel()

	v := NewVerifier(WithResolver(&fakeResolver{}))

	if results := v.VerifyDomains(context.Background(), nil); results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
	if results := v.VerifyEmails(context.Background(), []string{"bad"}); results != nil {
		t.Errorf("expected nil results for unusable addresses, got %v", results)
	}
}

// TestVerifier_LookupError tests that resolver failures surface in the
// result instead of aborting the batch.
func TestVerifier_LookupError(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		mxErr: map[string]error{
			"flaky.test": errors.New("server misbehaving"),
		},
	}

	v := NewVerifier(WithResolver(resolver))

	results := v.VerifyDomains(context.Background(), []string{"flaky.test"})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].HasMX {
		t.Error("expected failed lookup to report no MX")
	}
	if results[0].Error == "" {
		t.Error("expected lookup error to be recorded")
	}
}

// TestEmailDomain tests address domain extraction.
func TestEmailDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		email string
		want  string
	}{
		{name: "plain address", email: "alice@Example.COM", want: "example.com"},
		{name: "no at sign", email: "nodomain", want: ""},
		{name: "trailing at", email: "user@", want: ""},
		{name: "quoted local part with at", email: `"a@b"@example.org`, want: "example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := EmailDomain(tt.email); got != tt.want {
				t.Errorf("EmailDomain(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}
