package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxindex/internal/google"
	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/mailindex"
	"github.com/teemow/inboxindex/internal/rowstore"
)

// tokenEndpoint is a fake Google token endpoint.
type tokenEndpoint struct {
	mu     sync.Mutex
	forms  []url.Values
	status int
	body   string
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	e.mu.Lock()
	e.forms = append(e.forms, r.PostForm)
	status, body := e.status, e.body
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (e *tokenEndpoint) requests() []url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]url.Values(nil), e.forms...)
}

func (e *tokenEndpoint) lastForm() url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.forms) == 0 {
		return nil
	}
	return e.forms[len(e.forms)-1]
}

const okToken = `{"access_token":"ya29.access","refresh_token":"1//refresh","token_type":"Bearer","expires_in":3600}`

// fakeMail records calls and returns canned results.
type fakeMail struct {
	err error

	indexOpts   mailindex.IndexOptions
	hydrateDay  string
	hydrateFrom string
	hydrateTo   string
	hydrateOpts mailindex.HydrateOptions
	query       string
	limit       int
}

func (f *fakeMail) Backfill(_ context.Context, opts mailindex.IndexOptions) (mailindex.IndexStats, error) {
	f.indexOpts = opts
	if f.err != nil {
		return mailindex.IndexStats{}, f.err
	}
	return mailindex.IndexStats{Windows: 46, Listed: 10, Fetched: 9, Duplicates: 1, Flushed: 9}, nil
}

func (f *fakeMail) HydrateDay(_ context.Context, day string, opts mailindex.HydrateOptions) (int, error) {
	f.hydrateDay, f.hydrateOpts = day, opts
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

func (f *fakeMail) HydrateRange(_ context.Context, from, to string, opts mailindex.HydrateOptions) (int, error) {
	f.hydrateFrom, f.hydrateTo, f.hydrateOpts = from, to, opts
	if f.err != nil {
		return 0, f.err
	}
	return 12, nil
}

func (f *fakeMail) Search(_ context.Context, query string, limit int) ([]mailindex.SearchResult, int64, error) {
	f.query, f.limit = query, limit
	if f.err != nil {
		return nil, 0, f.err
	}
	return []mailindex.SearchResult{{ID: "m1", From: "a@example.com", Subject: "hi", Body: "body"}}, 42, nil
}

type fixture struct {
	server   *Server
	http     *httptest.Server
	manager  *google.Manager
	endpoint *tokenEndpoint
	mail     *fakeMail
}

func newFixture(t *testing.T, settings google.Settings) *fixture {
	t.Helper()

	endpoint := &tokenEndpoint{status: http.StatusOK, body: okToken}
	tokenSrv := httptest.NewServer(endpoint)
	t.Cleanup(tokenSrv.Close)

	settings.Endpoint = oauth2.Endpoint{
		AuthURL:  "https://accounts.example.com/o/oauth2/auth",
		TokenURL: tokenSrv.URL,
	}
	logger := logging.Discard()
	manager := google.NewManager(settings,
		google.NewRowTokenStore(rowstore.NewMemory(), logger),
		google.NewFilePendingStore(filepath.Join(t.TempDir(), "pending"), logger),
		google.WithLogger(logger))

	mail := &fakeMail{}
	s := New(Config{ControlToken: testControlToken}, manager, mail, WithLogger(logger))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	// Every client handed out by ts carries the control token.
	ts.Client().Transport = bearerTransport{token: testControlToken, next: ts.Client().Transport}

	return &fixture{server: s, http: ts, manager: manager, endpoint: endpoint, mail: mail}
}

const testControlToken = "control-secret"

type bearerTransport struct {
	token string
	next  http.RoundTripper
}

func (b bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}

func publicClient() google.Settings {
	return google.Settings{
		ClientID:    "client-id",
		RedirectURL: "https://ops.example.com/oauth/callback",
	}
}

// client returns an HTTP client that keeps cookies and does not follow
// redirects.
func (f *fixture) client(t *testing.T) *http.Client {
	t.Helper()
	c := f.http.Client()
	jar, err := newJar()
	require.NoError(t, err)
	c.Jar = jar
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}
