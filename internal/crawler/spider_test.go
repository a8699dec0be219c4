package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jlagares/daimatics-n8n/internal/config"
	"github.com/jlagares/daimatics-n8n/internal/model"
)

// quietLogger keeps crawl progress out of test output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSpider builds a spider with politeness delays disabled.
func newTestSpider(opts ...SpiderOption) *Spider {
	base := []SpiderOption{
		WithDelay(0),
		WithRandomDelay(0),
		WithLogger(quietLogger()),
	}
	return NewSpider(append(base, opts...)...)
}

func serveHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// hostPort strips the scheme from an httptest server URL.
func hostPort(serverURL string) string {
	u := strings.TrimPrefix(serverURL, "https://")
	return strings.TrimPrefix(u, "http://")
}

// TestSpider_CrawlSinglePage tests a seed-only crawl of a page carrying
// both a mailto link and a plain-text address.
func TestSpider_CrawlSinglePage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serveHTML(w, `<html><head><title>Acme</title></head><body>
			<a href="mailto:sales@acme.test">Mail us</a>
			<p>Or write to support@acme.test directly.</p>
		</body></html>`)
	}))
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(0))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(result.Pages))
	}

	page := result.Pages[0]
	if !strings.HasPrefix(page.PageURL, server.URL) {
		t.Errorf("expected page URL to start with %q, got %q", server.URL, page.PageURL)
	}
	if page.Domain != hostPort(server.URL) {
		t.Errorf("expected domain %q, got %q", hostPort(server.URL), page.Domain)
	}
	if page.Depth != 0 {
		t.Errorf("expected depth 0, got %d", page.Depth)
	}

	wantEmails := []string{"sales@acme.test", "support@acme.test"}
	if len(page.Emails) != len(wantEmails) {
		t.Fatalf("expected emails %v, got %v", wantEmails, page.Emails)
	}
	for i, want := range wantEmails {
		if page.Emails[i] != want {
			t.Errorf("expected email %q at position %d, got %q", want, i, page.Emails[i])
		}
	}
	if page.MailtoCount != 1 {
		t.Errorf("expected mailto count 1, got %d", page.MailtoCount)
	}
	if page.TextCount != 1 {
		t.Errorf("expected text count 1, got %d", page.TextCount)
	}
	if page.DeobfuscatedCount != 0 {
		t.Errorf("expected deobfuscated count 0, got %d", page.DeobfuscatedCount)
	}
	if page.ScrapedAt.IsZero() {
		t.Error("expected scraped_at to be set")
	}

	if result.Stats.PagesVisited != 1 {
		t.Errorf("expected 1 page visited, got %d", result.Stats.PagesVisited)
	}
	if result.Stats.Requests != 1 {
		t.Errorf("expected 1 request, got %d", result.Stats.Requests)
	}
	if result.TimedOut {
		t.Error("expected crawl not to time out")
	}
}

// TestSpider_DepthLimit tests that links beyond the depth limit are not
// followed and that pages without addresses yield no records.
func TestSpider_DepthLimit(t *testing.T) {
	t.Parallel()

	var deepHits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		serveHTML(w, `<html><body><a href="/contact">Contact</a></body></html>`)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, _ *http.Request) {
		serveHTML(w, `<html><body>
			<a href="mailto:office@acme.test">Office</a>
			<a href="/deep">Deeper</a>
		</body></html>`)
	})
	mux.HandleFunc("/deep", func(w http.ResponseWriter, _ *http.Request) {
		deepHits.Add(1)
		serveHTML(w, `<html><body>hidden@acme.test</body></html>`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(1))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := deepHits.Load(); got != 0 {
		t.Errorf("expected page beyond depth limit not to be fetched, got %d fetches", got)
	}
	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 page with emails, got %d", len(result.Pages))
	}
	if !strings.HasSuffix(result.Pages[0].PageURL, "/contact") {
		t.Errorf("expected the contact page to be recorded, got %q", result.Pages[0].PageURL)
	}
	if result.Pages[0].Depth != 1 {
		t.Errorf("expected depth 1, got %d", result.Pages[0].Depth)
	}
	if result.Stats.PagesVisited != 2 {
		t.Errorf("expected 2 pages visited, got %d", result.Stats.PagesVisited)
	}
}

// TestSpider_PerDomainCap tests that the page budget holds exactly even
// with parallel fetching.
func TestSpider_PerDomainCap(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		serveHTML(w, `<html><body><p>root@acme.test</p>
			<a href="/page1">1</a><a href="/page2">2</a><a href="/page3">3</a>
			<a href="/page4">4</a><a href="/page5">5</a>
		</body></html>`)
	})
	for i := 1; i <= 5; i++ {
		mux.HandleFunc(fmt.Sprintf("/page%d", i), func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			serveHTML(w, `<html><body>page@acme.test</body></html>`)
		})
	}

	server := httptest.NewServer(mux)
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(1), WithMaxPagesPerDomain(2))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := hits.Load(); got != 2 {
		t.Errorf("expected exactly 2 fetches, got %d", got)
	}
	if len(result.Pages) != 2 {
		t.Errorf("expected 2 pages, got %d", len(result.Pages))
	}
	if result.Stats.Requests != 2 {
		t.Errorf("expected 2 admitted requests, got %d", result.Stats.Requests)
	}
}

// TestSpider_StaysOnSeedHost tests that links to another server are out
// of scope when the perimeter is derived from the seed.
func TestSpider_StaysOnSeedHost(t *testing.T) {
	t.Parallel()

	var offsiteHits atomic.Int32
	offsite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		offsiteHits.Add(1)
		serveHTML(w, `<html><body>elsewhere@acme.test</body></html>`)
	}))
	defer offsite.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serveHTML(w, fmt.Sprintf(`<html><body>
			<p>home@acme.test</p>
			<a href="%s/leads">External</a>
		</body></html>`, offsite.URL))
	}))
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(1))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := offsiteHits.Load(); got != 0 {
		t.Errorf("expected offsite server not to be fetched, got %d fetches", got)
	}
	if len(result.Pages) != 1 {
		t.Errorf("expected 1 page, got %d", len(result.Pages))
	}
}

// TestSpider_AllowedDomainsWidenScope tests that explicit allowed
// domains admit a second host.
func TestSpider_AllowedDomainsWidenScope(t *testing.T) {
	t.Parallel()

	var partnerHits atomic.Int32
	partner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		partnerHits.Add(1)
		serveHTML(w, `<html><body>partner@acme.test</body></html>`)
	}))
	defer partner.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serveHTML(w, fmt.Sprintf(`<html><body>
			<p>home@acme.test</p>
			<a href="%s/leads">Partner</a>
		</body></html>`, partner.URL))
	}))
	defer server.Close()

	spider := newTestSpider(
		WithMaxDepth(1),
		WithAllowedDomains([]string{hostPort(server.URL), hostPort(partner.URL)}),
	)

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := partnerHits.Load(); got != 1 {
		t.Errorf("expected partner server to be fetched once, got %d fetches", got)
	}
	if len(result.Pages) != 2 {
		t.Errorf("expected 2 pages, got %d", len(result.Pages))
	}
}

// TestSpider_AllowPatterns tests that only links matching an allow
// pattern are followed.
func TestSpider_AllowPatterns(t *testing.T) {
	t.Parallel()

	var productHits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		serveHTML(w, `<html><body>
			<a href="/contact-us">Contact</a>
			<a href="/products">Products</a>
		</body></html>`)
	})
	mux.HandleFunc("/contact-us", func(w http.ResponseWriter, _ *http.Request) {
		serveHTML(w, `<html><body>hello@acme.test</body></html>`)
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, _ *http.Request) {
		productHits.Add(1)
		serveHTML(w, `<html><body>shop@acme.test</body></html>`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(1), WithAllowPatterns([]string{"contact"}))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := productHits.Load(); got != 0 {
		t.Errorf("expected products page not to be fetched, got %d fetches", got)
	}
	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(result.Pages))
	}
	if !strings.HasSuffix(result.Pages[0].PageURL, "/contact-us") {
		t.Errorf("expected contact page, got %q", result.Pages[0].PageURL)
	}
}

// TestSpider_DenyPatterns tests that matching URLs are never fetched.
func TestSpider_DenyPatterns(t *testing.T) {
	t.Parallel()

	var productHits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		serveHTML(w, `<html><body>
			<p>root@acme.test</p>
			<a href="/contact">Contact</a>
			<a href="/products">Products</a>
		</body></html>`)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, _ *http.Request) {
		serveHTML(w, `<html><body>hello@acme.test</body></html>`)
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, _ *http.Request) {
		productHits.Add(1)
		serveHTML(w, `<html><body>shop@acme.test</body></html>`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(1), WithDenyPatterns([]string{"products"}))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := productHits.Load(); got != 0 {
		t.Errorf("expected denied page not to be fetched, got %d fetches", got)
	}
	if len(result.Pages) != 2 {
		t.Errorf("expected 2 pages, got %d", len(result.Pages))
	}
}

// TestSpider_SkipsStaticAssets tests that media and style links are not
// fetched.
func TestSpider_SkipsStaticAssets(t *testing.T) {
	t.Parallel()

	var assetHits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		serveHTML(w, `<html><body>
			<p>root@acme.test</p>
			<a href="/style.css">Styles</a>
			<a href="/logo.png">Logo</a>
		</body></html>`)
	})
	assetHandler := func(w http.ResponseWriter, _ *http.Request) {
		assetHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}
	mux.HandleFunc("/style.css", assetHandler)
	mux.HandleFunc("/logo.png", assetHandler)

	server := httptest.NewServer(mux)
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(1))

	if _, err := spider.Crawl(context.Background(), []string{server.URL}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := assetHits.Load(); got != 0 {
		t.Errorf("expected static assets not to be fetched, got %d fetches", got)
	}
}

// TestSpider_RetriesTransientFailures tests that a flaky page is retried
// and eventually recorded.
func TestSpider_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		serveHTML(w, `<html><body>finally@acme.test</body></html>`)
	}))
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(0), WithRetryTimes(2))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 page after retries, got %d", len(result.Pages))
	}
	if result.Stats.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", result.Stats.Retries)
	}
	if result.Stats.Errors != 0 {
		t.Errorf("expected 0 errors, got %d", result.Stats.Errors)
	}
}

// TestSpider_RetryBudgetExhausted tests that a persistently failing page
// counts as an error after the retry budget runs out.
func TestSpider_RetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(0), WithRetryTimes(1))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
	if len(result.Pages) != 0 {
		t.Errorf("expected no pages, got %d", len(result.Pages))
	}
	if result.Stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", result.Stats.Errors)
	}
	if result.Stats.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", result.Stats.Retries)
	}
}

// TestSpider_ContextTimeout tests that an expiring context cuts the
// crawl short and returns partial results without an error.
func TestSpider_ContextTimeout(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		serveHTML(w, `<html><body>
			<p>fast@acme.test</p>
			<a href="/slow1">One</a><a href="/slow2">Two</a>
		</body></html>`)
	})
	slowHandler := func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(400 * time.Millisecond)
		serveHTML(w, `<html><body>slow@acme.test</body></html>`)
	}
	mux.HandleFunc("/slow1", slowHandler)
	mux.HandleFunc("/slow2", slowHandler)

	server := httptest.NewServer(mux)
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(1))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	result, err := spider.Crawl(ctx, []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.TimedOut {
		t.Error("expected crawl to report a timeout")
	}
	if len(result.Pages) < 1 {
		t.Errorf("expected at least the seed page, got %d pages", len(result.Pages))
	}
}

// TestSpider_SelfSignedTLS tests that HTTPS targets with self-signed
// certificates are crawled.
func TestSpider_SelfSignedTLS(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serveHTML(w, `<html><body>secure@acme.test</body></html>`)
	}))
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(0))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(result.Pages))
	}
	if result.Pages[0].Emails[0] != "secure@acme.test" {
		t.Errorf("expected secure@acme.test, got %q", result.Pages[0].Emails[0])
	}
}

// TestSpider_SiteConfigs tests per-hostname cookie, header, and depth
// overrides.
func TestSpider_SiteConfigs(t *testing.T) {
	t.Parallel()

	var (
		contactHits atomic.Int32
		gotCookie   atomic.Value
		gotHeader   atomic.Value
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		gotCookie.Store(r.Header.Get("Cookie"))
		gotHeader.Store(r.Header.Get("X-Scraper"))
		serveHTML(w, `<html><body><a href="/contact">Contact</a></body></html>`)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, _ *http.Request) {
		contactHits.Add(1)
		serveHTML(w, `<html><body>team@acme.test</body></html>`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	sites := &config.File{
		Sites: map[string]config.SiteConfig{
			"127.0.0.1": {
				Cookie:  "tier=gold",
				Headers: map[string]string{"X-Scraper": "emailscraper"},
				Depth:   1,
			},
		},
	}

	// MaxDepth 0 would stop at the seed; the site override lifts it.
	spider := newTestSpider(WithMaxDepth(0), WithSiteConfigs(sites))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := contactHits.Load(); got != 1 {
		t.Errorf("expected site depth override to admit the contact page, got %d fetches", got)
	}
	if got, _ := gotCookie.Load().(string); got != "tier=gold" {
		t.Errorf("expected cookie 'tier=gold', got %q", got)
	}
	if got, _ := gotHeader.Load().(string); got != "emailscraper" {
		t.Errorf("expected X-Scraper header to be set, got %q", got)
	}
	if len(result.Pages) != 1 {
		t.Errorf("expected 1 page, got %d", len(result.Pages))
	}
}

// TestSpider_SendsConfiguredUserAgent tests the fixed User-Agent header.
func TestSpider_SendsConfiguredUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		serveHTML(w, `<html><body>ua@acme.test</body></html>`)
	}))
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(0))

	if _, err := spider.Crawl(context.Background(), []string{server.URL}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, _ := gotUA.Load().(string); got != config.DefaultUserAgent {
		t.Errorf("expected default user agent %q, got %q", config.DefaultUserAgent, got)
	}
}

// TestSpider_DuplicateLinksVisitedOnce tests URL deduplication.
func TestSpider_DuplicateLinksVisitedOnce(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		serveHTML(w, `<html><body>
			<p>self@acme.test</p>
			<a href="/">Self</a><a href="/">Self Again</a>
		</body></html>`)
	}))
	defer server.Close()

	spider := newTestSpider(WithMaxDepth(1))

	result, err := spider.Crawl(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 fetch, got %d", got)
	}
	if len(result.Pages) != 1 {
		t.Errorf("expected 1 page, got %d", len(result.Pages))
	}
}

// TestSpider_CrawlErrors tests configuration and seed validation errors.
func TestSpider_CrawlErrors(t *testing.T) {
	t.Parallel()

	t.Run("no seeds", func(t *testing.T) {
		t.Parallel()

		spider := newTestSpider()
		if _, err := spider.Crawl(context.Background(), nil); !errors.Is(err, ErrNoSeeds) {
			t.Errorf("expected ErrNoSeeds, got %v", err)
		}
	})

	t.Run("invalid seed URL", func(t *testing.T) {
		t.Parallel()

		spider := newTestSpider()
		if _, err := spider.Crawl(context.Background(), []string{"not a url"}); !errors.Is(err, model.ErrInvalidTarget) {
			t.Errorf("expected ErrInvalidTarget, got %v", err)
		}
	})

	t.Run("malformed allow pattern", func(t *testing.T) {
		t.Parallel()

		spider := newTestSpider(WithAllowPatterns([]string{"["}))
		if _, err := spider.Crawl(context.Background(), []string{"http://example.com"}); err == nil {
			t.Error("expected error for malformed allow pattern")
		}
	})

	t.Run("malformed deny pattern", func(t *testing.T) {
		t.Parallel()

		spider := newTestSpider(WithDenyPatterns([]string{"("}))
		if _, err := spider.Crawl(context.Background(), []string{"http://example.com"}); err == nil {
			t.Error("expected error for malformed deny pattern")
		}
	})
}
