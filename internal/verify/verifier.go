package verify

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jlagares/daimatics-n8n/internal/config"
	"github.com/jlagares/daimatics-n8n/internal/model"
)

// Resolver is the subset of net.Resolver the verifier needs. It exists
// so tests can inject fixed answers without touching real DNS.
type Resolver interface {
	// LookupMX returns the DNS MX records for the given domain name.
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)

	// LookupHost returns the addresses the host name resolves to.
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Verifier runs DNS-based deliverability checks for email domains.
type Verifier struct {
	// resolver answers MX and host lookups.
	resolver Resolver

	// timeout bounds a single domain's lookups.
	timeout time.Duration

	// concurrency is the maximum number of in-flight lookups.
	concurrency int

	// cache holds completed verifications for the Verifier's lifetime.
	cache   map[string]model.DomainVerification
	cacheMu sync.Mutex
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithResolver sets the DNS resolver.
func WithResolver(r Resolver) VerifierOption {
	return func(v *Verifier) {
		if r != nil {
			v.resolver = r
		}
	}
}

// WithTimeout bounds the lookups for a single domain.
func WithTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithConcurrency sets the maximum number of parallel lookups.
func WithConcurrency(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// NewVerifier creates a Verifier backed by the system resolver.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		resolver:    net.DefaultResolver,
		timeout:     config.DefaultVerifyTimeout,
		concurrency: 4,
		cache:       make(map[string]model.DomainVerification),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// VerifyEmails verifies the domains of the given addresses. Each domain
// is checked once no matter how many addresses share it.
func (v *Verifier) VerifyEmails(ctx context.Context, emails []string) []model.DomainVerification {
	domains := make([]string, 0, len(emails))
	for _, email := range emails {
		if d := EmailDomain(email); d != "" {
			domains = append(domains, d)
		}
	}
	return v.VerifyDomains(ctx, domains)
}

// VerifyDomains checks each unique domain for mail deliverability.
// Results come back sorted by domain. Lookups run concurrently, bounded
// by the configured concurrency.
func (v *Verifier) VerifyDomains(ctx context.Context, domains []string) []model.DomainVerification {
	unique := uniqueDomains(domains)
	if len(unique) == 0 {
		return nil
	}

	results := make([]model.DomainVerification, len(unique))
	sem := semaphore.NewWeighted(int64(v.concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i, domain := range unique {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = model.DomainVerification{Domain: domain, Error: err.Error()}
				return nil //nolint:nilerr // a cancelled lookup is a result, not a batch failure
			}
			defer sem.Release(1)

			results[i] = v.verifyDomain(gctx, domain)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// verifyDomain checks a single domain, consulting the cache first.
func (v *Verifier) verifyDomain(ctx context.Context, domain string) model.DomainVerification {
	v.cacheMu.Lock()
	if cached, ok := v.cache[domain]; ok {
		v.cacheMu.Unlock()
		return cached
	}
	v.cacheMu.Unlock()

	result := v.lookup(ctx, domain)

	v.cacheMu.Lock()
	v.cache[domain] = result
	v.cacheMu.Unlock()
	return result
}

// lookup performs the actual DNS queries for one domain: MX first, then
// a plain host lookup as the implicit-MX fallback.
func (v *Verifier) lookup(ctx context.Context, domain string) model.DomainVerification {
	lctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	result := model.DomainVerification{Domain: domain}

	records, err := v.resolver.LookupMX(lctx, domain)
	if err == nil && len(records) > 0 {
		result.HasMX = true
		result.MailHost = strings.TrimSuffix(records[0].Host, ".")
		return result
	}

	if _, hostErr := v.resolver.LookupHost(lctx, domain); hostErr == nil {
		result.HasMX = true
		return result
	}

	if err != nil {
		result.Error = err.Error()
	} else {
		result.Error = "domain does not resolve"
	}
	return result
}

// EmailDomain returns the lowercased domain of an address, or "" when
// the address has no usable domain part.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// uniqueDomains lowercases, dedupes, and sorts the given domains.
func uniqueDomains(domains []string) []string {
	seen := make(map[string]bool, len(domains))
	unique := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		unique = append(unique, d)
	}
	sort.Strings(unique)
	return unique
}
