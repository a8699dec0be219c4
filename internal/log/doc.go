// Package log provides logging for the scraper with automatic masking of
// personal and credential data, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Partial masking of email addresses in log output
//   - Redaction of credentials (cookies, tokens, proxy passwords)
//   - Configurable log levels with verbose mode support
//   - Consistent log formatting across the application
//
// # Masking
//
// The MaskHandler rewrites log records before they reach the underlying
// handler. Email addresses keep their first character and domain so runs
// remain debuggable without writing full addresses to disk:
//
//	logger.Info("email found", "address", "jane.doe@example.com")
//	// logged as: address=j***@example.com
//
// Credential-bearing attributes (Authorization headers, cookies, API keys,
// proxy URLs with embedded passwords) are replaced entirely with
// "***REDACTED***". Even in verbose mode, masked values stay masked.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, true) // verbose=true
//	slog.SetDefault(logger)
package log
