package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/jlagares/daimatics-n8n/internal/model"
)

// ScrapeDB provides SQLite-based storage for crawl run history and the
// addresses collected across runs. It manages connection pooling and
// provides methods for CRUD operations.
//
// A single database file holds all runs rather than one file per start
// URL; that keeps cross-run address aggregation and backups simple.
type ScrapeDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ScrapeDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ScrapeDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ScrapeDB, error) {
	dbPath := filepath.Join(dbDir, "emailscraper.db")

	// Check if we should create the database or require it to exist
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Build connection string
	// modernc.org/sqlite uses mode=rw to prevent creating new files and
	// mode=rwc to allow creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	// SQLite doesn't benefit from multiple connections for writes,
	// so keep a single connection.
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &ScrapeDB{
		db:     db,
		dbPath: dbPath,
	}

	// Enable WAL mode if requested
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	// Create tables
	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (sdb *ScrapeDB) Close() error {
	return sdb.db.Close()
}

// Path returns the location of the database file.
func (sdb *ScrapeDB) Path() string {
	return sdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (sdb *ScrapeDB) createTables() error {
	schema := `
	-- Scrape runs store one row per crawl run plus the full report as JSON
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		start_url TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 0,
		pages_scraped INTEGER NOT NULL DEFAULT 0,
		total_unique_emails INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		report_json TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_start_url ON scrape_runs(start_url);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON scrape_runs(created_at);

	-- Emails aggregate addresses across runs, one row per address and
	-- source domain pair
	CREATE TABLE IF NOT EXISTS emails (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		source_domain TEXT NOT NULL,
		first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
		times_seen INTEGER NOT NULL DEFAULT 1,
		UNIQUE(address, source_domain)
	);

	CREATE INDEX IF NOT EXISTS idx_emails_address ON emails(address);
	CREATE INDEX IF NOT EXISTS idx_emails_domain ON emails(source_domain);
	`

	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun persists a finished crawl run: one scrape_runs row carrying the
// full report as JSON, plus an upsert into the emails table for every
// address and source domain pair the run discovered.
// Saving the same run ID again replaces the stored row.
func (sdb *ScrapeDB) SaveRun(ctx context.Context, report *model.CrawlReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	unique := report.UniqueEmails
	if len(unique) == 0 && len(report.Pages) > 0 {
		unique = model.UniqueEmails(report.Pages)
	}

	query := `
	INSERT INTO scrape_runs (run_id, start_url, success, pages_scraped, total_unique_emails, error, report_json, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		success = excluded.success,
		pages_scraped = excluded.pages_scraped,
		total_unique_emails = excluded.total_unique_emails,
		error = excluded.error,
		report_json = excluded.report_json,
		duration_ms = excluded.duration_ms
	`

	_, err = sdb.db.ExecContext(ctx, query,
		report.RunID,
		report.StartURL(),
		report.Succeeded(),
		len(report.Pages),
		len(unique),
		report.ErrorMessage,
		string(reportJSON),
		report.Stats.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return sdb.upsertEmails(ctx, report.Pages)
}

// upsertEmails records each address and source domain pair once per run,
// bumping last_seen and times_seen for pairs already known.
func (sdb *ScrapeDB) upsertEmails(ctx context.Context, pages []model.PageResult) error {
	type pair struct {
		address string
		domain  string
	}

	seen := make(map[pair]struct{})
	for _, p := range pages {
		for _, email := range p.Emails {
			seen[pair{address: email, domain: p.Domain}] = struct{}{}
		}
	}

	query := `
	INSERT INTO emails (address, source_domain)
	VALUES (?, ?)
	ON CONFLICT(address, source_domain) DO UPDATE SET
		last_seen = CURRENT_TIMESTAMP,
		times_seen = times_seen + 1
	`

	for p := range seen {
		if _, err := sdb.db.ExecContext(ctx, query, p.address, p.domain); err != nil {
			return fmt.Errorf("failed to upsert email: %w", err)
		}
	}

	return nil
}

// RunRecord is the scrape_runs row without the embedded report JSON.
// It is used for displaying run history without loading full reports.
type RunRecord struct {
	// ID is the unique identifier of the run row in the database.
	ID int64 `json:"id"`

	// RunID is the crawl run's UUID.
	RunID string `json:"run_id"`

	// StartURL is the first seed URL the run crawled.
	StartURL string `json:"start_url"`

	// Success is false when the run failed or timed out.
	Success bool `json:"success"`

	// PagesScraped is the number of pages that yielded addresses.
	PagesScraped int `json:"pages_scraped"`

	// TotalUniqueEmails is the size of the run's deduplicated address set.
	TotalUniqueEmails int `json:"total_unique_emails"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`

	// DurationMS is the run duration in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// CreatedAt is when the run was stored.
	CreatedAt time.Time `json:"created_at"`
}

// RunQuery filters ListRuns output. The zero value selects everything.
type RunQuery struct {
	// StartURL, when set, restricts results to runs seeded from this URL.
	StartURL string

	// Since, when set, restricts results to runs stored at or after this
	// time.
	Since time.Time

	// Limit caps the number of rows returned; 0 means no limit.
	Limit int
}

// ListRuns returns stored runs, newest first, honoring the query filters.
func (sdb *ScrapeDB) ListRuns(ctx context.Context, q RunQuery) ([]RunRecord, error) {
	query := `
	SELECT id, run_id, start_url, success, pages_scraped, total_unique_emails, error, duration_ms, created_at
	FROM scrape_runs
	WHERE 1=1
	`
	args := make([]interface{}, 0)

	if q.StartURL != "" {
		query += " AND start_url = ?"
		args = append(args, q.StartURL)
	}
	if !q.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, q.Since.UTC().Format("2006-01-02 15:04:05"))
	}

	query += " ORDER BY created_at DESC, id DESC"

	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := sdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []RunRecord
	for rows.Next() {
		var rec RunRecord
		var errMsg sql.NullString
		var createdAt string

		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.StartURL,
			&rec.Success,
			&rec.PagesScraped,
			&rec.TotalUniqueEmails,
			&errMsg,
			&rec.DurationMS,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		rec.Error = errMsg.String
		rec.CreatedAt = parseTimestamp(createdAt)
		results = append(results, rec)
	}

	return results, rows.Err()
}

// GetRunReport retrieves the full report stored for a run ID.
// Returns nil without error when the run is unknown.
func (sdb *ScrapeDB) GetRunReport(ctx context.Context, runID string) (*model.CrawlReport, error) {
	query := `
	SELECT report_json FROM scrape_runs
	WHERE run_id = ?
	`

	var reportJSON string
	err := sdb.db.QueryRowContext(ctx, query, runID).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// EmailRecord is one aggregated address row.
type EmailRecord struct {
	// ID is the unique identifier of the email row in the database.
	ID int64 `json:"id"`

	// Address is the email address as it appeared on the page.
	Address string `json:"address"`

	// SourceDomain is the hostname of the page the address was found on.
	SourceDomain string `json:"source_domain"`

	// FirstSeen and LastSeen bracket the runs that discovered the pair.
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// TimesSeen counts the runs that discovered the pair.
	TimesSeen int `json:"times_seen"`
}

// KnownEmails returns aggregated addresses, most recently seen first.
// When domain is non-empty only addresses found on that source domain are
// returned; limit 0 means no limit.
func (sdb *ScrapeDB) KnownEmails(ctx context.Context, domain string, limit int) ([]EmailRecord, error) {
	query := `
	SELECT id, address, source_domain, first_seen, last_seen, times_seen
	FROM emails
	WHERE 1=1
	`
	args := make([]interface{}, 0)

	if domain != "" {
		query += " AND source_domain = ?"
		args = append(args, domain)
	}

	query += " ORDER BY last_seen DESC, address ASC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := sdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	var results []EmailRecord
	for rows.Next() {
		var rec EmailRecord
		var firstSeen, lastSeen string

		err := rows.Scan(
			&rec.ID,
			&rec.Address,
			&rec.SourceDomain,
			&firstSeen,
			&lastSeen,
			&rec.TimesSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}

		rec.FirstSeen = parseTimestamp(firstSeen)
		rec.LastSeen = parseTimestamp(lastSeen)
		results = append(results, rec)
	}

	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	// Return zero time if no format matches
	return time.Time{}
}
