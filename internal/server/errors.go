package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/teemow/inboxindex/internal/gmail"
	"github.com/teemow/inboxindex/internal/google"
	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/mailindex"
)

// errBadRequest marks malformed request parameters.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// statusFor maps an error to its HTTP status. Callback and parameter
// errors are the caller's fault; provider failures are upstream errors.
func statusFor(err error) int {
	var (
		exchangeErr *google.TokenExchangeError
		apiErr      *gmail.APIError
	)
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, google.ErrInvalidCallback),
		errors.Is(err, google.ErrMissingCode),
		errors.Is(err, google.ErrStateMismatch),
		errors.Is(err, mailindex.ErrInvalidDay),
		errors.Is(err, mailindex.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, google.ErrNotAuthorized):
		return http.StatusUnauthorized
	case errors.As(err, &exchangeErr), errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var exchangeErr *google.TokenExchangeError
	if errors.As(err, &exchangeErr) {
		resp.Hint = exchangeErr.Hint
	}

	level := s.logger.WarnContext
	if status >= http.StatusInternalServerError {
		level = s.logger.ErrorContext
	}
	level(r.Context(), "request failed",
		logging.Operation(r.Method+" "+r.URL.Path),
		slog.Int("http_status", status),
		logging.Err(err))

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
