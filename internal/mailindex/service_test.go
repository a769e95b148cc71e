package mailindex

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/rowstore"
)

func TestServiceOpensMailboxPerCall(t *testing.T) {
	mb := newFakeMailbox(message("a", jan6, "body"))
	opened := 0
	open := func(context.Context) (Mailbox, error) {
		opened++
		return mb, nil
	}
	svc := NewService(open, NewStore(rowstore.NewMemory()), WithLogger(logging.Discard()))
	ctx := context.Background()

	_, err := svc.Backfill(ctx, IndexOptions{Now: indexNow.AddDate(0, 0, -3)})
	require.NoError(t, err)
	n, err := svc.HydrateDay(ctx, "2025-01-06", HydrateOptions{FetchBodies: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	results, _, err := svc.Search(ctx, "x", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	assert.Equal(t, 3, opened)
}

func TestServiceOpenError(t *testing.T) {
	errClosed := errors.New("not authorized")
	svc := NewService(func(context.Context) (Mailbox, error) { return nil, errClosed }, NewStore(rowstore.NewMemory()))
	ctx := context.Background()

	_, err := svc.Backfill(ctx, IndexOptions{})
	assert.ErrorIs(t, err, errClosed)
	_, err = svc.HydrateRange(ctx, "2025-01-01", "2025-01-02", HydrateOptions{})
	assert.ErrorIs(t, err, errClosed)
	_, _, err = svc.Search(ctx, "x", 1)
	assert.ErrorIs(t, err, errClosed)

	// A malformed day is reported before the mailbox is opened.
	_, err = svc.HydrateDay(ctx, "yesterday", HydrateOptions{})
	assert.ErrorIs(t, err, ErrInvalidDay)
}
