// Package cmd implements the command-line interface for inboxindex.
//
// This package provides the following commands:
//   - serve: Run the HTTP control server (OAuth flow, backfill, hydrate, search)
//   - auth: Authorize from the terminal (url, exchange, status, reset)
//   - backfill: Record message ids for the lookback period
//   - hydrate: Fetch and store the messages of a day or a range of days
//   - search: Run a Gmail query and print the decoded results
//   - version: Display version information
package cmd
