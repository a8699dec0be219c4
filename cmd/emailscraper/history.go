package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jlagares/daimatics-n8n/internal/config"
	"github.com/jlagares/daimatics-n8n/internal/database"
)

// NewHistoryCmd creates the history command.
// This command reads the crawl runs recorded in the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [start-url]",
		Short: "Show recorded crawl runs and collected addresses",
		Long: `History lists crawl runs recorded with --save-to-db.

Without flags it shows the most recent runs, newest first, optionally
filtered by start URL. With --emails it instead lists the addresses
aggregated across all runs, including how often and how recently each
address was seen.

Examples:
  # Show the last 20 recorded runs
  emailscraper history

  # Show runs for one site
  emailscraper history https://example.com

  # Show runs since a date
  emailscraper history --since 2026-01-01

  # Print the full stored report of one run
  emailscraper history --run-id 550e8400-e29b-41d4-a716-446655440000

  # List every address collected from one source domain
  emailscraper history --emails --domain example.com

  # Machine-readable output
  emailscraper history --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")
	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of rows to show (0 shows all)")
	cmd.Flags().StringP("since", "s", "",
		"Only show runs on or after this date (format: YYYY-MM-DD)")
	cmd.Flags().String("run-id", "",
		"Print the full stored report for this run ID as JSON")
	cmd.Flags().BoolP("emails", "e", false,
		"List aggregated addresses instead of runs")
	cmd.Flags().StringP("domain", "d", "",
		"With --emails, only addresses found on this source domain")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	// A run ID request prints one stored report and nothing else.
	runID, err := cmd.Flags().GetString("run-id")
	if err != nil {
		return err
	}
	if runID != "" {
		return showRunReport(ctx, db, runID)
	}

	emailsMode, err := cmd.Flags().GetBool("emails")
	if err != nil {
		return err
	}
	if emailsMode {
		domain, err := cmd.Flags().GetString("domain")
		if err != nil {
			return err
		}
		return listKnownEmails(ctx, db, domain, limit, jsonOutput)
	}

	var startURL string
	if len(args) > 0 {
		startURL = args[0]
	}

	since, err := cmd.Flags().GetString("since")
	if err != nil {
		return err
	}

	return listRunHistory(ctx, db, startURL, since, limit, jsonOutput)
}

// listRunHistory lists recorded crawl runs, newest first.
func listRunHistory(ctx context.Context, db *database.ScrapeDB, startURL, since string, limit int, jsonOutput bool) error {
	q := database.RunQuery{
		StartURL: startURL,
		Limit:    limit,
	}
	if since != "" {
		parsed, err := time.Parse("2006-01-02", since)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		q.Since = parsed
	}

	runs, err := db.ListRuns(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		if startURL != "" {
			fmt.Printf("No crawl history found for %s\n", startURL)
		} else {
			fmt.Println("No crawl history found.")
		}
		fmt.Println("\nRun 'emailscraper crawl --save-to-db <url>' to record crawl runs.")
		return nil
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}

	fmt.Printf("Crawl history (%d runs):\n\n", len(runs))

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Date", "Start URL", "Status", "Pages", "Emails", "Duration", "Run ID")
	for _, run := range runs {
		status := "ok"
		if !run.Success {
			status = "failed"
		}
		duration := time.Duration(run.DurationMS) * time.Millisecond
		_ = table.Append([]string{ //nolint:errcheck // row errors surface in Render
			run.CreatedAt.Format("2006-01-02 15:04"),
			run.StartURL,
			status,
			strconv.Itoa(run.PagesScraped),
			strconv.Itoa(run.TotalUniqueEmails),
			duration.String(),
			run.RunID,
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Println("\nUse 'emailscraper history --run-id <id>' to see a run's full report.")
	fmt.Println("Use 'emailscraper history --emails' to list the collected addresses.")

	return nil
}

// showRunReport prints the full stored report for one run as JSON.
func showRunReport(ctx context.Context, db *database.ScrapeDB, runID string) error {
	crawlReport, err := db.GetRunReport(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run report: %w", err)
	}
	if crawlReport == nil {
		return fmt.Errorf("no run found with ID %s", runID)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(crawlReport)
}

// listKnownEmails lists addresses aggregated across recorded runs.
func listKnownEmails(ctx context.Context, db *database.ScrapeDB, domain string, limit int, jsonOutput bool) error {
	emails, err := db.KnownEmails(ctx, domain, limit)
	if err != nil {
		return fmt.Errorf("failed to list addresses: %w", err)
	}

	if len(emails) == 0 {
		if domain != "" {
			fmt.Printf("No addresses recorded for %s\n", domain)
		} else {
			fmt.Println("No addresses recorded.")
		}
		fmt.Println("\nRun 'emailscraper crawl --save-to-db <url>' to record crawl runs.")
		return nil
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(emails)
	}

	fmt.Printf("Known addresses (%d):\n\n", len(emails))

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Address", "Source Domain", "Times Seen", "Last Seen")
	for _, rec := range emails {
		_ = table.Append([]string{ //nolint:errcheck // row errors surface in Render
			rec.Address,
			rec.SourceDomain,
			strconv.Itoa(rec.TimesSeen),
			rec.LastSeen.Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}
