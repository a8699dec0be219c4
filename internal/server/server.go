package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/jlagares/daimatics-n8n/internal/config"
	"github.com/jlagares/daimatics-n8n/internal/model"
	"github.com/jlagares/daimatics-n8n/internal/runner"
)

// maxRequestBody caps the size of a scrape request body.
const maxRequestBody = 1 << 20 // 1MB

// DefaultShutdownTimeout is how long a draining server waits for in-flight
// requests before giving up.
const DefaultShutdownTimeout = 10 * time.Second

// CrawlRunner is the runner surface the server needs: run one scrape,
// probe the crawler binary. Tests swap in a stub.
type CrawlRunner interface {
	// Run executes one scrape and always returns a response; crawl
	// failures are reported inside it, not as an error.
	Run(ctx context.Context, req *model.ScrapeRequest) *model.ScrapeResponse

	// Probe checks that the crawler binary exists and executes.
	Probe(ctx context.Context) runner.ProbeResult
}

// Server is the HTTP API wrapping a crawl runner. It owns request
// decoding, validation, rate limiting, and the concurrency cap; the
// actual crawling stays in the runner subprocess.
type Server struct {
	// runner executes scrapes and health probes.
	runner CrawlRunner

	// addr is the host:port the server binds to.
	addr string

	// version is reported by the service info and health endpoints.
	version string

	// crawlerBin and outputDir are surfaced in the health payload.
	crawlerBin string
	outputDir  string

	// limiter globally rate-limits incoming requests; nil disables it.
	limiter *rate.Limiter

	// scrapeSlots caps concurrent crawler subprocesses. Requests over
	// the cap queue until a slot frees or the client gives up.
	scrapeSlots *semaphore.Weighted

	// shutdownTimeout bounds the graceful drain.
	shutdownTimeout time.Duration

	// logger receives request logs. Never nil.
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the bind host and port.
func WithAddr(host string, port int) Option {
	return func(s *Server) {
		s.addr = fmt.Sprintf("%s:%d", host, port)
	}
}

// WithVersion sets the version string reported by the API.
func WithVersion(version string) Option {
	return func(s *Server) {
		if version != "" {
			s.version = version
		}
	}
}

// WithCrawlerInfo sets the crawler binary path and output directory
// surfaced by the health endpoint.
func WithCrawlerInfo(bin, outputDir string) Option {
	return func(s *Server) {
		s.crawlerBin = bin
		s.outputDir = outputDir
	}
}

// WithRateLimit applies a global requests-per-second limit with a small
// burst. 0 disables limiting.
func WithRateLimit(rps float64) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

// WithMaxConcurrent caps the number of scrapes running at once.
func WithMaxConcurrent(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.scrapeSlots = semaphore.NewWeighted(n)
		}
	}
}

// WithShutdownTimeout bounds the graceful drain on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server around the given runner.
func New(r CrawlRunner, opts ...Option) *Server {
	s := &Server{
		runner:          r,
		addr:            fmt.Sprintf("%s:%d", config.DefaultHost, config.DefaultPort),
		version:         "(devel)",
		scrapeSlots:     semaphore.NewWeighted(config.DefaultMaxConcurrentScrapes),
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Addr returns the host:port the server binds to.
func (s *Server) Addr() string {
	return s.addr
}

// ServiceInfo is the GET / payload.
type ServiceInfo struct {
	Service     string            `json:"service"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
	Example     string            `json:"example"`
}

// SystemInfo describes the serving process in the health payload.
type SystemInfo struct {
	OS         string `json:"os"`
	GoVersion  string `json:"go_version"`
	WorkingDir string `json:"working_dir"`
	PID        int    `json:"pid"`
}

// HealthResponse is the GET /health payload. Status is "healthy",
// "warning" (probe timed out), or "unhealthy" (binary missing or broken);
// the endpoint itself always answers 200 while the process is up.
type HealthResponse struct {
	Status           string     `json:"status"`
	Message          string     `json:"message"`
	CrawlerBin       string     `json:"crawler_bin"`
	OutputDir        string     `json:"output_dir"`
	CrawlerAvailable bool       `json:"crawler_available"`
	CrawlerVersion   string     `json:"crawler_version,omitempty"`
	SystemInfo       SystemInfo `json:"system_info"`
}

// ErrorResponse is the JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler returns the server's routes wrapped in its middleware.
// It is exported so tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /scrape", s.handleScrape)

	return s.logRequests(s.limitRate(mux))
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then drains
// in-flight requests for up to the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "drain_timeout", s.shutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// handleRoot serves the service description.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	info := ServiceInfo{
		Service:     config.AppName,
		Version:     s.version,
		Description: "collects email addresses from a site and its same-domain pages",
		Endpoints: map[string]string{
			"GET /":        "service info",
			"GET /health":  "service and crawler binary status",
			"POST /scrape": "crawl a site and return the addresses found",
		},
		Example: fmt.Sprintf(`curl -X POST http://%s/scrape -H 'Content-Type: application/json' -d '{"url": "https://example.com"}'`, s.addr),
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleHealth probes the crawler binary and reports service status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	probe := s.runner.Probe(r.Context())

	health := HealthResponse{
		CrawlerBin:       s.crawlerBin,
		OutputDir:        s.outputDir,
		CrawlerAvailable: probe.Available,
		CrawlerVersion:   probe.Version,
		SystemInfo:       systemInfo(),
	}

	switch {
	case probe.Available:
		health.Status = "healthy"
		health.Message = "service is running"
	case probe.TimedOut:
		health.Status = "warning"
		health.Message = "crawler version probe timed out"
	default:
		health.Status = "unhealthy"
		health.Message = "crawler binary is not available: " + probe.Error
	}

	s.writeJSON(w, http.StatusOK, health)
}

// handleScrape validates the request, waits for a scrape slot, and runs
// the crawler. Crawl failures come back as 200 with success=false; only
// requests rejected before the subprocess spawns get an error status.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req model.ScrapeRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if _, err := req.Target(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Queue for a scrape slot; the client dropping or the server
	// draining aborts the wait.
	if err := s.scrapeSlots.Acquire(r.Context(), 1); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "no scrape slot available: "+err.Error())
		return
	}
	defer s.scrapeSlots.Release(1)

	resp := s.runner.Run(r.Context(), &req)
	s.writeJSON(w, http.StatusOK, resp)
}

// limitRate rejects requests over the configured global rate with 429.
func (s *Server) limitRate(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

// WriteHeader records the status before delegating.
func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs one line per handled request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error payload with the given status.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// systemInfo collects the process facts reported by the health endpoint.
func systemInfo() SystemInfo {
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	return SystemInfo{
		OS:         runtime.GOOS,
		GoVersion:  runtime.Version(),
		WorkingDir: wd,
		PID:        os.Getpid(),
	}
}
