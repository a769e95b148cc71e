package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Attribute keys shared by every package that logs.
const (
	KeyOperation = "operation"
	KeyComponent = "component"
	KeyStore     = "store"
	KeyState     = "state_hash"
	KeyDay       = "day"
	KeyWindow    = "window"
	KeyCount     = "count"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithComponent returns a logger tagged with the emitting component.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(KeyComponent, component))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Store returns a slog attribute describing a storage backend.
func Store(desc string) slog.Attr {
	return slog.String(KeyStore, desc)
}

// Day returns a slog attribute for a UTC day bucket.
func Day(day string) slog.Attr {
	return slog.String(KeyDay, day)
}

// Window returns a slog attribute for an indexing sub-window in unix seconds.
func Window(after, before int64) slog.Attr {
	return slog.String(KeyWindow, fmt.Sprintf("%d-%d", after, before))
}

// Count returns a slog attribute for a processed item count.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// A nil error yields an empty group, which slog drops from output, so
// Err(maybeNilErr) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// HashState returns a short digest of an OAuth state value. States are
// bearer-like secrets for the duration of an authorization attempt, so
// only the digest is logged.
func HashState(state string) string {
	if state == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(state))
	return "state:" + hex.EncodeToString(sum[:6])
}

// State returns a slog attribute with the hashed OAuth state.
func State(state string) slog.Attr {
	return slog.String(KeyState, HashState(state))
}

// SanitizeToken returns a length indicator for a token without exposing any
// of its content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
