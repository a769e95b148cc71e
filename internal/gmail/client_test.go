package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeGmail serves messages.list from a fixed id list and messages.get
// from a map of raw JSON bodies.
type fakeGmail struct {
	mu       sync.Mutex
	ids      []string
	messages map[string]string
	requests []*http.Request
	fail     int
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Clone(context.Background()))
	f.mu.Unlock()

	if f.fail != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.fail)
		_, _ = w.Write([]byte(`{"error":{"code":` + strconv.Itoa(f.fail) + `,"message":"quota exhausted"}}`))
		return
	}

	const listPath = "/gmail/v1/users/me/messages"
	switch {
	case r.URL.Path == listPath:
		f.serveList(w, r)
	case len(r.URL.Path) > len(listPath)+1:
		id := r.URL.Path[len(listPath)+1:]
		body, ok := f.messages[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGmail) serveList(w http.ResponseWriter, r *http.Request) {
	size, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	start, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
	end := min(start+size, len(f.ids))

	type ref struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	}
	res := struct {
		Messages           []ref  `json:"messages,omitempty"`
		NextPageToken      string `json:"nextPageToken,omitempty"`
		ResultSizeEstimate int64  `json:"resultSizeEstimate"`
	}{ResultSizeEstimate: int64(len(f.ids)) + 1}
	for _, id := range f.ids[start:end] {
		res.Messages = append(res.Messages, ref{ID: id, ThreadID: "t-" + id})
	}
	if end < len(f.ids) {
		res.NextPageToken = strconv.Itoa(end)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func (f *fakeGmail) listRequests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

func newTestClient(t *testing.T, f *fakeGmail) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.Client(), []option.ClientOption{option.WithEndpoint(srv.URL + "/")})
	require.NoError(t, err)
	return c
}

func idRange(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "m" + strconv.Itoa(i)
	}
	return ids
}

func TestListMessageIDsFollowsPages(t *testing.T) {
	f := &fakeGmail{ids: idRange(250)}
	c := newTestClient(t, f)

	ids, estimate, err := c.ListMessageIDs(context.Background(), "after:1 before:2", false, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 250)
	assert.Equal(t, "m0", ids[0])
	assert.Equal(t, "m249", ids[249])
	assert.Equal(t, int64(251), estimate)

	reqs := f.listRequests()
	require.Len(t, reqs, 3)
	q := reqs[0].URL.Query()
	assert.Equal(t, "after:1 before:2", q.Get("q"))
	assert.Equal(t, "100", q.Get("maxResults"))
	assert.Equal(t, "false", q.Get("includeSpamTrash"))
	assert.Empty(t, q.Get("pageToken"))
	assert.Equal(t, "100", reqs[1].URL.Query().Get("pageToken"))
}

func TestListMessageIDsHonorsLimit(t *testing.T) {
	f := &fakeGmail{ids: idRange(250)}
	c := newTestClient(t, f)

	ids, _, err := c.ListMessageIDs(context.Background(), "label:inbox", true, 130)
	require.NoError(t, err)
	assert.Len(t, ids, 130)

	reqs := f.listRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "true", reqs[0].URL.Query().Get("includeSpamTrash"))
	assert.Equal(t, "30", reqs[1].URL.Query().Get("maxResults"))
}

func TestListMessageIDsEmpty(t *testing.T) {
	c := newTestClient(t, &fakeGmail{})

	ids, estimate, err := c.ListMessageIDs(context.Background(), "nothing", false, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, int64(1), estimate)
}

func TestListMessageIDsProviderError(t *testing.T) {
	c := newTestClient(t, &fakeGmail{fail: http.StatusTooManyRequests})

	_, _, err := c.ListMessageIDs(context.Background(), "after:1 before:2", false, 0)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "messages.list", apiErr.Op)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode())
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestGetMetadataRequestsHeaders(t *testing.T) {
	f := &fakeGmail{messages: map[string]string{
		"m1": `{"id":"m1","threadId":"t1","internalDate":"1735689600000","snippet":"hi",
			"payload":{"headers":[{"name":"From","value":"a@example.com"},{"name":"subject","value":"Hello"}]}}`,
	}}
	c := newTestClient(t, f)

	msg, err := c.GetMetadata(context.Background(), "m1", "From", "Subject", "Date")
	require.NoError(t, err)
	assert.Equal(t, "t1", msg.ThreadId)
	assert.Equal(t, int64(1735689600000), msg.InternalDate)
	assert.Equal(t, "Hello", HeaderValue(msg, "Subject"))

	reqs := f.listRequests()
	require.Len(t, reqs, 1)
	q := reqs[0].URL.Query()
	assert.Equal(t, "metadata", q.Get("format"))
	assert.Equal(t, []string{"From", "Subject", "Date"}, q["metadataHeaders"])
}

func TestGetFullNotFound(t *testing.T) {
	c := newTestClient(t, &fakeGmail{messages: map[string]string{}})

	_, err := c.GetFull(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "missing", apiErr.MessageID)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode())
	assert.Contains(t, err.Error(), "Requested entity was not found")
}
