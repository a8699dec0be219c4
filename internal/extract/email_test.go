package extract

import (
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// parseHTML builds a goquery selection from a fixture document.
func parseHTML(t *testing.T, src string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc.Selection
}

func TestEmailPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "plain address", input: "write to info@example.com today", want: []string{"info@example.com"}},
		{name: "mixed case", input: "Sales@Example.COM", want: []string{"Sales@Example.COM"}},
		{name: "plus and dots", input: "first.last+tag@mail.example.co.uk", want: []string{"first.last+tag@mail.example.co.uk"}},
		{name: "no tld", input: "user@localhost", want: nil},
		{name: "bare at", input: "meet @ noon", want: nil},
		{name: "two addresses", input: "a@x.com b@y.org", want: []string{"a@x.com", "b@y.org"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := EmailPattern.FindAllString(tt.input, -1)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FindAllString(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMailtoAddresses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		href string
		want []string
	}{
		{name: "simple", href: "mailto:info@example.com", want: []string{"info@example.com"}},
		{name: "query stripped", href: "mailto:info@example.com?subject=Hello", want: []string{"info@example.com"}},
		{name: "multiple recipients", href: "mailto:a@x.com,b@y.org", want: []string{"a@x.com", "b@y.org"}},
		{name: "spaces around recipients", href: "mailto: a@x.com , b@y.org ", want: []string{"a@x.com", "b@y.org"}},
		{name: "invalid recipient dropped", href: "mailto:not-an-email,c@z.net", want: []string{"c@z.net"}},
		{name: "not a mailto link", href: "https://example.com/contact", want: nil},
		{name: "empty target", href: "mailto:", want: nil},
		{name: "embedded junk rejected", href: "mailto:hi there@x.com", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := MailtoAddresses(tt.href)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MailtoAddresses(%q) = %v, want %v", tt.href, got, tt.want)
			}
		})
	}
}

func TestDeobfuscate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bracketed no spaces", input: "name[at]domain[dot]com", want: "name@domain.com"},
		{name: "bracketed with spaces", input: "name [at] domain [dot] com", want: "name@domain.com"},
		{name: "parenthesized", input: "name(at)domain(dot)com", want: "name@domain.com"},
		{name: "bare at word", input: "name at domain.com", want: "name@domain.com"},
		{name: "uppercase tokens", input: "name[AT]domain[DOT]com", want: "name@domain.com"},
		{name: "untouched text", input: "plain text stays", want: "plain text stays"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Deobfuscate(tt.input); got != tt.want {
				t.Errorf("Deobfuscate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDeobfuscateFullWidth(t *testing.T) {
	t.Parallel()

	got := Deobfuscate("ｎａｍｅ＠ｄｏｍａｉｎ．ｃｏｍ")
	if EmailPattern.FindString(got) != "name@domain.com" {
		t.Errorf("full-width input normalized to %q, want matchable name@domain.com", got)
	}
}

func TestExtractPage(t *testing.T) {
	t.Parallel()

	t.Run("one mailto and one text address", func(t *testing.T) {
		t.Parallel()

		sel := parseHTML(t, `<html><body>
			<a href="mailto:contact@example.com">Contact</a>
			<p>Support: support@example.com</p>
		</body></html>`)

		res := ExtractPage(sel)

		want := []string{"contact@example.com", "support@example.com"}
		if !reflect.DeepEqual(res.Emails, want) {
			t.Errorf("Emails = %v, want %v", res.Emails, want)
		}
		if res.MailtoCount != 1 {
			t.Errorf("MailtoCount = %d, want 1", res.MailtoCount)
		}
		if res.TextCount != 1 {
			t.Errorf("TextCount = %d, want 1", res.TextCount)
		}
		if res.DeobfuscatedCount != 0 {
			t.Errorf("DeobfuscatedCount = %d, want 0", res.DeobfuscatedCount)
		}
	})

	t.Run("same address in both passes appears once", func(t *testing.T) {
		t.Parallel()

		sel := parseHTML(t, `<html><body>
			<a href="mailto:info@example.com">info@example.com</a>
		</body></html>`)

		res := ExtractPage(sel)

		if !reflect.DeepEqual(res.Emails, []string{"info@example.com"}) {
			t.Errorf("Emails = %v, want single info@example.com", res.Emails)
		}
		if res.MailtoCount != 1 || res.TextCount != 1 {
			t.Errorf("counts = %d/%d, want 1/1", res.MailtoCount, res.TextCount)
		}
	})

	t.Run("obfuscated address counts as deobfuscated only", func(t *testing.T) {
		t.Parallel()

		sel := parseHTML(t, `<html><body>
			<p>Reach us: sales[at]example[dot]com</p>
		</body></html>`)

		res := ExtractPage(sel)

		if !reflect.DeepEqual(res.Emails, []string{"sales@example.com"}) {
			t.Errorf("Emails = %v, want sales@example.com", res.Emails)
		}
		if res.TextCount != 0 {
			t.Errorf("TextCount = %d, want 0", res.TextCount)
		}
		if res.DeobfuscatedCount != 1 {
			t.Errorf("DeobfuscatedCount = %d, want 1", res.DeobfuscatedCount)
		}
	})

	t.Run("script text is scanned", func(t *testing.T) {
		t.Parallel()

		sel := parseHTML(t, `<html><body>
			<script>var owner = "admin@example.com";</script>
		</body></html>`)

		res := ExtractPage(sel)

		if !reflect.DeepEqual(res.Emails, []string{"admin@example.com"}) {
			t.Errorf("Emails = %v, want admin@example.com from script", res.Emails)
		}
	})

	t.Run("page without addresses", func(t *testing.T) {
		t.Parallel()

		sel := parseHTML(t, `<html><body><p>Nothing to see.</p></body></html>`)

		res := ExtractPage(sel)

		if res.HasEmails() {
			t.Errorf("HasEmails() = true, Emails = %v", res.Emails)
		}
	})
}

func TestPageText(t *testing.T) {
	t.Parallel()

	sel := parseHTML(t, `<html><head><title>skip me</title></head><body>
		<div><span>first</span><span>second</span></div>
	</body></html>`)

	got := PageText(sel)

	if strings.Contains(got, "skip me") {
		t.Errorf("PageText included head content: %q", got)
	}
	if !strings.Contains(got, "first second") {
		t.Errorf("PageText = %q, want adjacent nodes joined with a space", got)
	}
}
