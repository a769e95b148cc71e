// Package logging provides structured logging helpers for inboxindex.
//
// Every package logs through log/slog. This package keeps attribute names
// consistent and makes sure credentials never reach the log stream.
//
// # Usage
//
//	logger := logging.WithOperation(slog.Default(), "hydrate.day")
//	logger.Info("hydrated day", logging.Day("2025-03-01"), logging.Count(42))
//
// # Security
//
//   - OAuth state values are logged only as truncated SHA-256 digests (HashState)
//   - Access and refresh tokens are reduced to a length indicator (SanitizeToken)
package logging
