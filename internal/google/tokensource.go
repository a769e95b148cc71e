package google

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

type managerTokenSource struct {
	ctx context.Context
	m   *Manager
}

func (s managerTokenSource) Token() (*oauth2.Token, error) {
	t := s.m.Credentials(s.ctx)
	if t == nil {
		if err := s.m.LastRefreshError(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
		}
		return nil, ErrNotAuthorized
	}
	return t.OAuth2(), nil
}

// TokenSource returns a token source that obtains every token through
// Credentials, so refreshes are persisted by the Manager.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, managerTokenSource{ctx: ctx, m: m})
}

// HTTPClient returns an authorized client for Google APIs. It fails fast
// with ErrNotAuthorized when no credential can be produced.
func (m *Manager) HTTPClient(ctx context.Context) (*http.Client, error) {
	ts := m.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		return nil, err
	}
	return oauth2.NewClient(m.clientContext(ctx), ts), nil
}
