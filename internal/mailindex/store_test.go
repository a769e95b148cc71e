package mailindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxindex/internal/rowstore"
)

func TestStoreOnSQLite(t *testing.T) {
	db, err := rowstore.OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.UpsertIndex(ctx, []IndexEntry{
		entryFor("b", jan6+5000),
		entryFor("a", jan6),
		entryFor("c", jan7),
	}))
	// Re-indexing the same id replaces the row.
	require.NoError(t, store.UpsertIndex(ctx, []IndexEntry{entryFor("a", jan6)}))

	entries, err := store.IndexedOn(ctx, "2025-01-06")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entryFor("a", jan6), entries[0])
	assert.Equal(t, "b", entries[1].ID)

	body := "text"
	require.NoError(t, store.UpsertMessages(ctx, []StoredMessage{{
		ID:         "a",
		ThreadID:   "thread-a",
		InternalMS: jan6,
		Headers:    map[string]string{"Subject": "hi"},
		Snippet:    "s",
		BodyFull:   &body,
	}}))

	rows, err := db.Select(ctx, rowstore.TableMessages, rowstore.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "text", rowstore.String(rows[0], "body_full"))
	assert.Nil(t, rows[0]["raw_json"])

	var headers map[string]string
	ok, err := rowstore.DecodeJSON(rows[0], "headers", &headers)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hi", headers["Subject"])
}

func TestStoreEmptyWritesAreNoops(t *testing.T) {
	store := NewStore(rowstore.NewMemory())
	assert.NoError(t, store.UpsertIndex(context.Background(), nil))
	assert.NoError(t, store.UpsertMessages(context.Background(), nil))
}
