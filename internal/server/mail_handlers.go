package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/teemow/inboxindex/internal/mailindex"
)

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		opts mailindex.IndexOptions
		err  error
	)

	if opts.Lookback, err = daysParam(q.Get("lookback_days")); err != nil {
		s.writeError(w, r, badRequest("lookback_days: %v", err))
		return
	}
	if opts.WindowWidth, err = daysParam(q.Get("window_days")); err != nil {
		s.writeError(w, r, badRequest("window_days: %v", err))
		return
	}
	if v := q.Get("per_window_limit"); v != "" {
		if opts.PerWindowLimit, err = strconv.Atoi(v); err != nil || opts.PerWindowLimit < 0 {
			s.writeError(w, r, badRequest("per_window_limit must be a non-negative integer"))
			return
		}
	}
	if opts.IncludeSpamTrash, err = boolParam(q.Get("include_spam_trash")); err != nil {
		s.writeError(w, r, badRequest("include_spam_trash: %v", err))
		return
	}

	stats, err := s.mail.Backfill(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HydrateResponse is the body of POST /mail/hydrate.
type HydrateResponse struct {
	Day      string `json:"day,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Messages int    `json:"messages"`
}

func (s *Server) handleHydrate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	bodies := true
	if v := q.Get("bodies"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, badRequest("bodies must be a boolean"))
			return
		}
		bodies = b
	}
	opts := mailindex.HydrateOptions{FetchBodies: bodies}

	day, from, to := q.Get("day"), q.Get("from"), q.Get("to")
	switch {
	case day != "":
		n, err := s.mail.HydrateDay(r.Context(), day, opts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, HydrateResponse{Day: day, Messages: n})
	case from != "" && to != "":
		n, err := s.mail.HydrateRange(r.Context(), from, to, opts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, HydrateResponse{From: from, To: to, Messages: n})
	default:
		s.writeError(w, r, badRequest("day, or from and to, is required"))
	}
}

// SearchResponse is the body of GET /mail/search.
type SearchResponse struct {
	Query    string                   `json:"query"`
	Estimate int64                    `json:"estimate"`
	Results  []mailindex.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := q.Get("q")
	if term == "" {
		s.writeError(w, r, badRequest("q is required"))
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, badRequest("limit must be an integer"))
			return
		}
		limit = n
	}

	raw, err := boolParam(q.Get("raw"))
	if err != nil {
		s.writeError(w, r, badRequest("raw: %v", err))
		return
	}
	query := term
	if !raw {
		query = mailindex.DefaultQuery(term)
	}

	results, estimate, err := s.mail.Search(r.Context(), query, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Estimate: estimate, Results: results})
}

func daysParam(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive number of days")
	}
	return time.Duration(n) * 24 * time.Hour, nil
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("must be a boolean")
	}
	return b, nil
}
