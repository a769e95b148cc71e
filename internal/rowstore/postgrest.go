package rowstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
)

// PostgREST is a Client for a hosted PostgREST endpoint such as Supabase.
type PostgREST struct {
	restURL   string
	apiKey    string
	transport http.RoundTripper
}

var _ Client = (*PostgREST)(nil)

// PostgRESTOption configures a PostgREST client.
type PostgRESTOption func(*PostgREST)

// WithTransport overrides the round tripper used for requests.
func WithTransport(rt http.RoundTripper) PostgRESTOption {
	return func(p *PostgREST) { p.transport = rt }
}

// NewPostgREST creates a client for the project at projectURL
// (e.g. https://xyz.supabase.co) authenticated with apiKey.
func NewPostgREST(projectURL, apiKey string, opts ...PostgRESTOption) (*PostgREST, error) {
	if projectURL == "" {
		return nil, fmt.Errorf("postgrest: project URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("postgrest: API key is required")
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second
	p := &PostgREST{
		restURL:   strings.TrimSuffix(projectURL, "/") + "/rest/v1",
		apiKey:    apiKey,
		transport: transport,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postgrest: HTTP %d: %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// call is the per-request state. postgrest-go keeps a sticky ClientError on
// its client, so every operation gets a fresh one.
type call struct {
	ctx    context.Context
	next   http.RoundTripper
	status int
}

func (c *call) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.next.RoundTrip(req.WithContext(c.ctx))
	if resp != nil {
		c.status = resp.StatusCode
	}
	return resp, err
}

func (p *PostgREST) client(ctx context.Context) (*postgrest.Client, *call) {
	c := &call{ctx: ctx, next: p.transport}
	client := postgrest.NewClient(p.restURL, "public", nil).
		SetApiKey(p.apiKey).
		SetAuthToken(p.apiKey)
	if client.Transport != nil {
		client.Transport.Parent = c
	}
	return client, c
}

func (c *call) wrap(err error) error {
	if c.status >= 300 {
		return &APIError{StatusCode: c.status, Err: err}
	}
	return err
}

func (p *PostgREST) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	columns := "*"
	if len(q.Columns) > 0 {
		if err := checkIdent(q.Columns...); err != nil {
			return nil, err
		}
		columns = strings.Join(q.Columns, ",")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, c := p.client(ctx)
	fb := client.From(table).Select(columns, "", false)
	if err := applyFilters(fb, q.Filters); err != nil {
		return nil, err
	}
	if q.Order != nil {
		if err := checkIdent(q.Order.Column); err != nil {
			return nil, err
		}
		fb = fb.Order(q.Order.Column, &postgrest.OrderOpts{Ascending: !q.Order.Desc})
	}
	if q.Limit > 0 {
		fb = fb.Limit(q.Limit, "")
	}

	body, _, err := fb.Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, c.wrap(err))
	}

	var rows []Row
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s rows: %w", table, err)
	}
	return rows, nil
}

func (p *PostgREST) Insert(ctx context.Context, table string, rows ...Row) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encodePayload(rows)
	if err != nil {
		return err
	}
	client, c := p.client(ctx)
	if _, _, err := client.From(table).Insert(payload, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, c.wrap(err))
	}
	return nil
}

func (p *PostgREST) Upsert(ctx context.Context, table, conflict string, rows ...Row) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encodePayload(rows)
	if err != nil {
		return err
	}
	client, c := p.client(ctx)
	if _, _, err := client.From(table).Upsert(payload, conflict, "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, c.wrap(err))
	}
	return nil
}

func (p *PostgREST) Update(ctx context.Context, table string, values Row, filters ...Filter) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encodePayload(values)
	if err != nil {
		return err
	}
	client, c := p.client(ctx)
	fb := client.From(table).Update(payload, "minimal", "")
	if err := applyFilters(fb, filters); err != nil {
		return err
	}
	if _, _, err := fb.Execute(); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, c.wrap(err))
	}
	return nil
}

// encodePayload marshals up front: postgrest-go returns a builder without a
// client when its own marshal fails.
func encodePayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return b, nil
}

func applyFilters(fb *postgrest.FilterBuilder, filters []Filter) error {
	for _, f := range filters {
		if err := checkIdent(f.Column); err != nil {
			return err
		}
		if f.Value == nil {
			fb.Is(f.Column, "null")
			continue
		}
		fb.Eq(f.Column, filterValue(f.Value))
	}
	return nil
}

func filterValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(x)
	}
}
