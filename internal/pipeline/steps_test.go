package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jlagares/daimatics-n8n/internal/crawler"
	"github.com/jlagares/daimatics-n8n/internal/database"
	"github.com/jlagares/daimatics-n8n/internal/model"
	"github.com/jlagares/daimatics-n8n/internal/verify"
)

// quietLogger keeps step progress out of test output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSpider builds a spider with politeness delays disabled.
func newTestSpider(opts ...crawler.SpiderOption) *crawler.Spider {
	base := []crawler.SpiderOption{
		crawler.WithDelay(0),
		crawler.WithRandomDelay(0),
		crawler.WithLogger(quietLogger()),
	}
	return crawler.NewSpider(append(base, opts...)...)
}

// stubResolver answers MX lookups from a fixed table.
type stubResolver struct {
	mx map[string][]*net.MX
}

func (s *stubResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if records, ok := s.mx[name]; ok {
		return records, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (s *stubResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

// TestNewCrawlStep tests the CrawlStep constructor.
func TestNewCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("creates with defaults", func(t *testing.T) {
		t.Parallel()

		spider := newTestSpider()
		step := NewCrawlStep(spider)

		if step.spider != spider {
			t.Error("expected the given spider")
		}
		if step.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("applies WithCrawlLogger", func(t *testing.T) {
		t.Parallel()

		logger := quietLogger()
		step := NewCrawlStep(newTestSpider(), WithCrawlLogger(logger))

		if step.logger != logger {
			t.Error("expected custom logger")
		}
	})

	t.Run("Name returns correct value", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(newTestSpider())

		if step.Name() != "crawl" {
			t.Errorf("expected name 'crawl', got %q", step.Name())
		}
	})
}

// TestCrawlStepDo tests the CrawlStep.Do method against a local server.
func TestCrawlStepDo(t *testing.T) {
	t.Parallel()

	t.Run("stores pages, stats, and effective options", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body>
				<a href="mailto:sales@acme.test">Mail us</a>
			</body></html>`))
		}))
		defer server.Close()

		step := NewCrawlStep(
			newTestSpider(crawler.WithMaxDepth(0)),
			WithCrawlLogger(quietLogger()),
		)
		report := model.NewCrawlReport([]string{server.URL})

		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.Pages) != 1 {
			t.Fatalf("expected 1 page, got %d", len(report.Pages))
		}
		if report.Pages[0].Emails[0] != "sales@acme.test" {
			t.Errorf("expected sales@acme.test, got %v", report.Pages[0].Emails)
		}
		if report.Stats.PagesVisited != 1 {
			t.Errorf("expected 1 page visited, got %d", report.Stats.PagesVisited)
		}
		if report.Options.MaxDepth != 0 {
			t.Errorf("expected recorded max depth 0, got %d", report.Options.MaxDepth)
		}
		if report.TimedOut {
			t.Error("expected no timeout")
		}
	})

	t.Run("returns error for an invalid seed", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(newTestSpider(), WithCrawlLogger(quietLogger()))
		report := model.NewCrawlReport([]string{"not-a-url"})

		if err := step.Do(context.Background(), report); err == nil {
			t.Fatal("expected error for invalid seed")
		}
	})

	t.Run("marks the report timed out on context expiry", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body>late@acme.test</body></html>`))
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		step := NewCrawlStep(newTestSpider(crawler.WithMaxDepth(0)), WithCrawlLogger(quietLogger()))
		report := model.NewCrawlReport([]string{server.URL})

		if err := step.Do(ctx, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !report.TimedOut {
			t.Error("expected report to be marked timed out")
		}
	})
}

// TestAggregateStep tests address aggregation and summary generation.
func TestAggregateStep(t *testing.T) {
	t.Parallel()

	t.Run("Name returns correct value", func(t *testing.T) {
		t.Parallel()

		step := NewAggregateStep()
		if step.Name() != "aggregate" {
			t.Errorf("expected name 'aggregate', got %q", step.Name())
		}
	})

	t.Run("fills the unique set and summary", func(t *testing.T) {
		t.Parallel()

		report := model.NewCrawlReport([]string{"https://acme.test"})
		report.AddPage(model.PageResult{
			PageURL: "https://acme.test/contact",
			Domain:  "acme.test",
			Emails:  []string{"info@acme.test", "sales@acme.test"},
		})
		report.AddPage(model.PageResult{
			PageURL: "https://acme.test/about",
			Domain:  "acme.test",
			Emails:  []string{"info@acme.test"},
		})

		step := NewAggregateStep(WithAggregateLogger(quietLogger()))
		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"info@acme.test", "sales@acme.test"}
		if len(report.UniqueEmails) != len(want) {
			t.Fatalf("expected %v, got %v", want, report.UniqueEmails)
		}
		for i, addr := range want {
			if report.UniqueEmails[i] != addr {
				t.Errorf("expected %q at position %d, got %q", addr, i, report.UniqueEmails[i])
			}
		}
		if report.Summary == nil {
			t.Fatal("expected summary to be generated")
		}
		if report.Summary.TotalUniqueEmails != 2 {
			t.Errorf("expected 2 unique addresses in summary, got %d", report.Summary.TotalUniqueEmails)
		}
	})

	t.Run("handles a report with no pages", func(t *testing.T) {
		t.Parallel()

		report := model.NewCrawlReport([]string{"https://empty.test"})

		step := NewAggregateStep(WithAggregateLogger(quietLogger()))
		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.UniqueEmails) != 0 {
			t.Errorf("expected no unique addresses, got %v", report.UniqueEmails)
		}
		if report.Summary == nil {
			t.Error("expected summary even for an empty report")
		}
	})
}

// TestVerifyStep tests the MX verification step.
func TestVerifyStep(t *testing.T) {
	t.Parallel()

	t.Run("Name returns correct value", func(t *testing.T) {
		t.Parallel()

		step := NewVerifyStep(verify.NewVerifier())
		if step.Name() != "verify" {
			t.Errorf("expected name 'verify', got %q", step.Name())
		}
	})

	t.Run("skips when no addresses were found", func(t *testing.T) {
		t.Parallel()

		verifier := verify.NewVerifier(verify.WithResolver(&stubResolver{}))
		step := NewVerifyStep(verifier, WithVerifyLogger(quietLogger()))

		report := model.NewCrawlReport([]string{"https://empty.test"})
		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Verifications != nil {
			t.Errorf("expected no verifications, got %v", report.Verifications)
		}
	})

	t.Run("records one verification per mail domain", func(t *testing.T) {
		t.Parallel()

		resolver := &stubResolver{
			mx: map[string][]*net.MX{
				"acme.test": {{Host: "mail.acme.test.", Pref: 10}},
			},
		}
		verifier := verify.NewVerifier(verify.WithResolver(resolver), verify.WithTimeout(time.Second))
		step := NewVerifyStep(verifier, WithVerifyLogger(quietLogger()))

		report := model.NewCrawlReport([]string{"https://acme.test"})
		report.UniqueEmails = []string{"info@acme.test", "sales@acme.test", "boss@gone.test"}
		report.Summary = model.NewCrawlSummary(report)

		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.Verifications) != 2 {
			t.Fatalf("expected 2 verifications, got %d", len(report.Verifications))
		}
		if !report.Verifications[0].HasMX || report.Verifications[0].Domain != "acme.test" {
			t.Errorf("expected acme.test with MX, got %+v", report.Verifications[0])
		}
		if report.Verifications[1].HasMX {
			t.Errorf("expected gone.test without MX, got %+v", report.Verifications[1])
		}
	})
}

// TestPersistStep tests the database persistence step.
func TestPersistStep(t *testing.T) {
	t.Parallel()

	t.Run("Name returns correct value", func(t *testing.T) {
		t.Parallel()

		step := NewPersistStep(nil)
		if step.Name() != "persist" {
			t.Errorf("expected name 'persist', got %q", step.Name())
		}
	})

	t.Run("no-ops without a database", func(t *testing.T) {
		t.Parallel()

		step := NewPersistStep(nil, WithPersistLogger(quietLogger()))
		report := model.NewCrawlReport([]string{"https://acme.test"})

		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("finishes and saves the run", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		report := model.NewCrawlReport([]string{"https://acme.test"})
		report.AddPage(model.PageResult{
			PageURL: "https://acme.test/contact",
			Domain:  "acme.test",
			Emails:  []string{"info@acme.test"},
		})
		report.UniqueEmails = model.UniqueEmails(report.Pages)

		step := NewPersistStep(db, WithPersistLogger(quietLogger()))
		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.FinishedAt.IsZero() {
			t.Error("expected the step to stamp the finish time")
		}
		if report.Summary == nil {
			t.Error("expected the step to generate a summary")
		}

		stored, err := db.GetRunReport(context.Background(), report.RunID)
		if err != nil {
			t.Fatalf("failed to get run report: %v", err)
		}
		if stored == nil {
			t.Fatal("expected the run to be stored")
		}
		if len(stored.Pages) != 1 {
			t.Errorf("expected 1 stored page, got %d", len(stored.Pages))
		}
	})
}
