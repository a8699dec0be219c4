// Package main provides the entry point for the emailscraper CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for emailscraper.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emailscraper",
		Short: "Collect email addresses from websites",
		Long: `emailscraper crawls websites and collects the email addresses they publish.

The crawl subcommand runs a single crawl from the command line, biased
toward contact-like pages where addresses concentrate. The serve subcommand
starts an HTTP API that accepts scrape requests and runs the crawler as a
subprocess per request, so a crashing crawl never takes the service down.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewDedupeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
