package mailindex

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxindex/internal/logging"
)

func TestDefaultQuery(t *testing.T) {
	assert.Equal(t, "jane@example.com in:all newer_than:90d", DefaultQuery("jane@example.com"))
}

func TestSearch(t *testing.T) {
	mb := newFakeMailbox(message("a", jan6, "body a"), message("b", jan7, "body b"))
	s := NewSearcher(mb, WithLogger(logging.Discard()))

	results, estimate, err := s.Search(context.Background(), DefaultQuery("x"), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), estimate)
	require.Len(t, results, 2)
	assert.Equal(t, SearchResult{
		ID:      "a",
		From:    "sender@example.com",
		Date:    "Mon, 6 Jan 2025 10:00:00 +0000",
		Subject: "Subject a",
		Snippet: "snippet a",
		Body:    "body a",
	}, results[0])
}

func TestSearchLimit(t *testing.T) {
	mb := newFakeMailbox()
	for i := range 5 {
		id := "m" + strconv.Itoa(i)
		mb.messages[id] = message(id, jan6, "")
	}
	s := NewSearcher(mb, WithLogger(logging.Discard()))

	results, estimate, err := s.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, int64(5), estimate)

	results, _, err = s.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestSearchProviderError(t *testing.T) {
	mb := newFakeMailbox()
	mb.listErr = errors.New("quota")
	s := NewSearcher(mb, WithLogger(logging.Discard()))

	_, _, err := s.Search(context.Background(), "q", 10)
	assert.ErrorIs(t, err, mb.listErr)
}
