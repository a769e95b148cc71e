package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxindex/internal/gmail"
	"github.com/teemow/inboxindex/internal/google"
	"github.com/teemow/inboxindex/internal/mailindex"
)

func TestBackfill(t *testing.T) {
	f := newFixture(t, publicClient())

	resp, err := f.http.Client().Post(f.http.URL+"/mail/backfill?lookback_days=30&window_days=2&per_window_limit=500&include_spam_trash=true", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decode[mailindex.IndexStats](t, resp)
	assert.Equal(t, 46, stats.Windows)
	assert.Equal(t, 9, stats.Flushed)

	assert.Equal(t, 30*24*time.Hour, f.mail.indexOpts.Lookback)
	assert.Equal(t, 2*24*time.Hour, f.mail.indexOpts.WindowWidth)
	assert.Equal(t, 500, f.mail.indexOpts.PerWindowLimit)
	assert.True(t, f.mail.indexOpts.IncludeSpamTrash)
}

func TestBackfillDefaults(t *testing.T) {
	f := newFixture(t, publicClient())

	resp, err := f.http.Client().Post(f.http.URL+"/mail/backfill", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, mailindex.IndexOptions{}, f.mail.indexOpts)
}

func TestBackfillErrors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
	}{
		{name: "bad lookback", query: "?lookback_days=-1", wantStatus: http.StatusBadRequest},
		{name: "bad window", query: "?window_days=x", wantStatus: http.StatusBadRequest},
		{name: "bad limit", query: "?per_window_limit=-5", wantStatus: http.StatusBadRequest},
		{name: "bad flag", query: "?include_spam_trash=maybe", wantStatus: http.StatusBadRequest},
		{name: "not authorized", err: fmt.Errorf("open mailbox: %w", google.ErrNotAuthorized), wantStatus: http.StatusUnauthorized},
		{name: "provider failure", err: &gmail.APIError{Op: "messages.list", Err: fmt.Errorf("quota")}, wantStatus: http.StatusBadGateway},
		{name: "store failure", err: fmt.Errorf("upsert gm_message_index: disk full"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, publicClient())
			f.mail.err = tt.err

			resp, err := f.http.Client().Post(f.http.URL+"/mail/backfill"+tt.query, "", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, decode[errorResponse](t, resp).Error)
		})
	}
}

func TestHydrate(t *testing.T) {
	t.Run("single day with bodies by default", func(t *testing.T) {
		f := newFixture(t, publicClient())

		resp, err := f.http.Client().Post(f.http.URL+"/mail/hydrate?day=2025-01-06", "", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, HydrateResponse{Day: "2025-01-06", Messages: 7}, decode[HydrateResponse](t, resp))
		assert.Equal(t, "2025-01-06", f.mail.hydrateDay)
		assert.True(t, f.mail.hydrateOpts.FetchBodies)
	})

	t.Run("range without bodies", func(t *testing.T) {
		f := newFixture(t, publicClient())

		resp, err := f.http.Client().Post(f.http.URL+"/mail/hydrate?from=2025-01-01&to=2025-01-03&bodies=false", "", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, HydrateResponse{From: "2025-01-01", To: "2025-01-03", Messages: 12}, decode[HydrateResponse](t, resp))
		assert.False(t, f.mail.hydrateOpts.FetchBodies)
	})

	t.Run("missing parameters", func(t *testing.T) {
		f := newFixture(t, publicClient())

		resp, err := f.http.Client().Post(f.http.URL+"/mail/hydrate?from=2025-01-01", "", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("invalid day", func(t *testing.T) {
		f := newFixture(t, publicClient())
		f.mail.err = fmt.Errorf("%w: %q", mailindex.ErrInvalidDay, "06/01/2025")

		resp, err := f.http.Client().Post(f.http.URL+"/mail/hydrate?day=06/01/2025", "", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestSearch(t *testing.T) {
	t.Run("applies the default query", func(t *testing.T) {
		f := newFixture(t, publicClient())

		resp, err := f.http.Client().Get(f.http.URL + "/mail/search?q=invoice&limit=5")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[SearchResponse](t, resp)
		assert.Equal(t, "invoice in:all newer_than:90d", body.Query)
		assert.Equal(t, int64(42), body.Estimate)
		require.Len(t, body.Results, 1)
		assert.Equal(t, "m1", body.Results[0].ID)
		assert.Equal(t, 5, f.mail.limit)
	})

	t.Run("raw query", func(t *testing.T) {
		f := newFixture(t, publicClient())

		resp, err := f.http.Client().Get(f.http.URL + "/mail/search?q=from:billing&raw=true")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "from:billing", f.mail.query)
		assert.Equal(t, 0, f.mail.limit)
	})

	t.Run("query is required", func(t *testing.T) {
		f := newFixture(t, publicClient())

		resp, err := f.http.Client().Get(f.http.URL + "/mail/search")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decode[errorResponse](t, resp).Error, "q is required")
	})

	t.Run("wrong method", func(t *testing.T) {
		f := newFixture(t, publicClient())

		resp, err := f.http.Client().Post(f.http.URL+"/mail/search?q=x", "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
