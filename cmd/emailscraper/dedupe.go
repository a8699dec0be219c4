package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlagares/daimatics-n8n/internal/csvdedup"
)

// NewDedupeCmd creates the dedupe command.
func NewDedupeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe <input.csv>",
		Short: "Remove duplicate rows from a CSV export",
		Long: `Dedupe removes duplicate rows from a CSV file, keyed on a single column.

Crawl exports often contain the same URL or address more than once, for
example when several runs are concatenated. Dedupe keeps the first (or
last) occurrence of each value and writes the cleaned rows to a new file
next to the input.

Examples:
  # Deduplicate on the default "url" column
  emailscraper dedupe results.csv

  # Deduplicate on the email column, keeping the last occurrence
  emailscraper dedupe --column email --keep last results.csv

  # Write the cleaned rows to a specific path
  emailscraper dedupe -o clean.csv results.csv

  # Report duplicate statistics without writing anything
  emailscraper dedupe --analyze-only results.csv`,
		Args: cobra.ExactArgs(1),
		RunE: runDedupeCmd,
	}

	cmd.Flags().StringP("column", "c", csvdedup.DefaultColumn,
		"Column to deduplicate on")
	cmd.Flags().String("keep", string(csvdedup.KeepFirst),
		"Which occurrence of a duplicated value to keep (first or last)")
	cmd.Flags().StringP("output", "o", "",
		"Output file path (default: <input>_deduplicated.csv)")
	cmd.Flags().BoolP("analyze-only", "a", false,
		"Report duplicate statistics without writing an output file")

	return cmd
}

// runDedupeCmd executes the dedupe command.
func runDedupeCmd(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	column, err := cmd.Flags().GetString("column")
	if err != nil {
		return err
	}

	analyzeOnly, err := cmd.Flags().GetBool("analyze-only")
	if err != nil {
		return err
	}
	if analyzeOnly {
		return analyzeDuplicates(inputPath, column)
	}

	keep, err := cmd.Flags().GetString("keep")
	if err != nil {
		return err
	}

	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	stats, err := csvdedup.Deduplicate(inputPath, csvdedup.Options{
		Column:     column,
		Keep:       csvdedup.Keep(keep),
		OutputPath: outputPath,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Deduplicated %s on column %q\n\n", stats.InputPath, stats.Column)
	fmt.Printf("  Original rows:      %d\n", stats.OriginalRows)
	fmt.Printf("  Unique rows:        %d\n", stats.UniqueRows)
	fmt.Printf("  Duplicates removed: %d\n", stats.RemovedRows)
	if stats.RemovedRows > 0 {
		fmt.Printf("  Reduction:          %.1f%%\n", stats.Reduction())
	}
	fmt.Println()
	color.Green("Cleaned data saved to: %s", stats.OutputPath)

	return nil
}

// analyzeDuplicates reports duplicate statistics without rewriting the file.
func analyzeDuplicates(inputPath, column string) error {
	analysis, err := csvdedup.Analyze(inputPath, column)
	if err != nil {
		return err
	}

	fmt.Printf("Duplicate analysis for column %q in %s\n\n", analysis.Column, analysis.InputPath)
	fmt.Printf("  Total rows:             %d\n", analysis.TotalRows)
	fmt.Printf("  Unique values:          %d\n", analysis.UniqueValues)
	fmt.Printf("  Duplicate rows:         %d\n", analysis.DuplicateRows)
	fmt.Printf("  Values with duplicates: %d\n", analysis.DuplicatedValues)

	if !analysis.HasDuplicates() {
		fmt.Println()
		color.Green("No duplicates found.")
		return nil
	}

	fmt.Println("\nMost duplicated values:")
	for _, vc := range analysis.TopValues {
		fmt.Printf("  %4d  %s\n", vc.Count, vc.Value)
	}

	return nil
}
