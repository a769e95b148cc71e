package google

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/rowstore"
)

func sampleToken() *Token {
	return &Token{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		TokenURI:     TokenURL,
		ClientID:     "client-123.apps.googleusercontent.com",
		ClientSecret: "",
		Scopes:       DefaultScopes,
		IDToken:      "eyJhbGciOi.id.token",
		Expiry:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func tokenStores(t *testing.T) map[string]TokenStore {
	t.Helper()
	db, err := rowstore.OpenSQLite(filepath.Join(t.TempDir(), "rows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]TokenStore{
		"file":           NewFileTokenStore(filepath.Join(t.TempDir(), "tokens", "token.json"), logging.Discard()),
		"rows in memory": NewRowTokenStore(rowstore.NewMemory(), logging.Discard()),
		"rows in sqlite": NewRowTokenStore(db, logging.Discard()),
	}
}

func TestTokenStoreRoundTrip(t *testing.T) {
	for name, store := range tokenStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got, "empty store should load nothing")

			want := sampleToken()
			require.NoError(t, store.Save(ctx, want))

			got, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			second := sampleToken()
			second.AccessToken = "ya29.second"
			second.Expiry = time.Time{}
			require.NoError(t, store.Save(ctx, second))

			got, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, second, got)
		})
	}
}

func TestTokenStoreClear(t *testing.T) {
	for name, store := range tokenStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Clear(ctx), "clearing an empty store is fine")
			require.NoError(t, store.Save(ctx, sampleToken()))
			require.NoError(t, store.Clear(ctx))
			require.NoError(t, store.Clear(ctx))

			got, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestFileTokenStoreCorruptFileIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewFileTokenStore(path, logging.Discard())
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileTokenStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	store := NewFileTokenStore(path, logging.Discard())
	require.NoError(t, store.Save(context.Background(), sampleToken()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestRowTokenStoreKeepsOneActiveRow(t *testing.T) {
	ctx := context.Background()
	mem := rowstore.NewMemory()
	store := NewRowTokenStore(mem, logging.Discard())

	for i := 0; i < 4; i++ {
		tok := sampleToken()
		tok.AccessToken = "ya29.token-" + string(rune('a'+i))
		require.NoError(t, store.Save(ctx, tok))

		active := 0
		for _, r := range mem.Rows(rowstore.TableTokens) {
			if rowstore.Bool(r, "is_active") {
				active++
			}
		}
		assert.Equal(t, 1, active, "after save %d", i)
	}
	assert.Len(t, mem.Rows(rowstore.TableTokens), 4, "history is kept")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ya29.token-d", got.AccessToken)

	require.NoError(t, store.Clear(ctx))
	for _, r := range mem.Rows(rowstore.TableTokens) {
		assert.False(t, rowstore.Bool(r, "is_active"))
	}
}

func TestRowTokenStoreUnparsableRowIsAbsent(t *testing.T) {
	ctx := context.Background()
	mem := rowstore.NewMemory()
	require.NoError(t, mem.Insert(ctx, rowstore.TableTokens, rowstore.Row{
		"id": "x", "token": "not json", "is_active": true, "created_at": "2025-01-01T00:00:00.000000Z",
	}))

	got, err := NewRowTokenStore(mem, logging.Discard()).Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
