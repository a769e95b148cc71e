package mailindex

import (
	"context"
	"fmt"

	"github.com/teemow/inboxindex/internal/gmail"
	"github.com/teemow/inboxindex/internal/logging"
)

// MaxSearchResults caps the messages fetched by one search.
const MaxSearchResults = 1000

// SearchResult is one message found by Search.
type SearchResult struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
	Body    string `json:"body"`
}

// DefaultQuery scopes a search term to all mail of the last 90 days.
func DefaultQuery(term string) string {
	return term + " in:all newer_than:90d"
}

// Searcher runs ad-hoc mailbox searches against the provider.
type Searcher struct {
	mailbox Mailbox
	deps
}

// NewSearcher creates a searcher.
func NewSearcher(mailbox Mailbox, opts ...Option) *Searcher {
	s := &Searcher{mailbox: mailbox, deps: newDeps(opts)}
	s.logger = logging.WithComponent(s.logger, "search")
	return s
}

// Search returns up to limit messages matching query with their decoded
// body, plus the provider's estimate of the total match count. A limit
// outside (0, MaxSearchResults] is clamped to MaxSearchResults.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, int64, error) {
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}

	ids, estimate, err := s.mailbox.ListMessageIDs(ctx, query, false, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search %q: %w", query, err)
	}

	results := make([]SearchResult, 0, len(ids))
	for _, id := range ids {
		msg, err := s.mailbox.GetFull(ctx, id)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to fetch search result %s: %w", id, err)
		}
		h := gmail.Headers(msg, "From", "Date", "Subject")
		results = append(results, SearchResult{
			ID:      id,
			From:    h["From"],
			Date:    h["Date"],
			Subject: h["Subject"],
			Snippet: msg.Snippet,
			Body:    gmail.ExtractBody(msg.Payload),
		})
	}

	s.logger.DebugContext(ctx, "search completed", logging.Count(len(results)))
	return results, estimate, nil
}
