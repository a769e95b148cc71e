package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/teemow/inboxindex/internal/instrumentation"
	"github.com/teemow/inboxindex/internal/logging"
)

// Settings configures the OAuth client. An empty ClientSecret marks a
// public client, which authorizes with PKCE.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes defaults to DefaultScopes.
	Scopes []string

	// StrictState rejects callbacks whose state differs from the attempt
	// passed to ExchangeCode. Off by default: the mismatch is only logged.
	StrictState bool

	// Endpoint defaults to Google's endpoint.
	Endpoint oauth2.Endpoint
}

// UsesPKCE reports whether authorization uses PKCE.
func (s Settings) UsesPKCE() bool {
	return s.ClientSecret == ""
}

// CredentialState is the state of the Manager's single credential slot.
type CredentialState int

const (
	NoCredential CredentialState = iota
	CredentialValid
	CredentialExpiredRefreshable
	CredentialInvalid
)

func (s CredentialState) String() string {
	switch s {
	case NoCredential:
		return "no_credential"
	case CredentialValid:
		return "valid"
	case CredentialExpiredRefreshable:
		return "expired_refreshable"
	case CredentialInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("CredentialState(%d)", int(s))
	}
}

// AuthAttempt is the short-lived context of one authorization attempt.
// AuthorizationURL returns it; the caller keeps it (in a session, a cookie
// keyed cache, memory) and hands it back to ExchangeCode. It may be lost
// across the redirect, in which case ExchangeCode falls back to the
// PendingStore.
type AuthAttempt struct {
	State     string
	Verifier  string
	CreatedAt time.Time
}

// Manager owns the OAuth credential lifecycle: authorization, code
// exchange, refresh and reset. It is the only writer of the in-memory
// credential and is safe for concurrent use.
type Manager struct {
	settings Settings
	config   *oauth2.Config
	store    TokenStore
	pending  PendingStore

	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	httpClient *http.Client
	now        func() time.Time

	mu         sync.Mutex
	loaded     bool
	token      *Token
	refreshErr error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics enables OAuth metrics.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithHTTPClient sets the HTTP client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager. The stored token is loaded on first use.
func NewManager(settings Settings, store TokenStore, pending PendingStore, opts ...Option) *Manager {
	if len(settings.Scopes) == 0 {
		settings.Scopes = slices.Clone(DefaultScopes)
	}
	if settings.Endpoint.TokenURL == "" {
		settings.Endpoint = googleoauth.Endpoint
	}
	// Auto-detection retries a rejected exchange with the other style,
	// spending the one-time code twice.
	if settings.Endpoint.AuthStyle == oauth2.AuthStyleAutoDetect {
		settings.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	m := &Manager{
		settings: settings,
		config: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  settings.RedirectURL,
			Scopes:       settings.Scopes,
			Endpoint:     settings.Endpoint,
		},
		store:   store,
		pending: pending,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = logging.WithComponent(m.logger, "oauth")
	return m
}

// Settings returns the OAuth settings in effect.
func (m *Manager) Settings() Settings {
	return m.settings
}

// Store returns the token store, for status output.
func (m *Manager) Store() TokenStore {
	return m.store
}

func (m *Manager) checkConfig() error {
	if m.settings.ClientID == "" || m.settings.RedirectURL == "" {
		return ErrConfiguration
	}
	return nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// AuthorizationURL starts an authorization attempt and returns the consent
// URL together with the attempt context. For public clients the PKCE
// verifier is also saved in the PendingStore under the attempt's state.
func (m *Manager) AuthorizationURL(ctx context.Context) (string, *AuthAttempt, error) {
	if err := m.checkConfig(); err != nil {
		return "", nil, err
	}

	state, err := GenerateState()
	if err != nil {
		return "", nil, err
	}
	attempt := &AuthAttempt{State: state, CreatedAt: m.now().UTC()}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	}

	if m.settings.UsesPKCE() {
		verifier, err := GenerateCodeVerifier()
		if err != nil {
			return "", nil, err
		}
		attempt.Verifier = verifier
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", CodeChallenge(verifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
		// The attempt still carries the verifier, so a same-process callback
		// can finish even if this write failed.
		if err := m.pending.Save(ctx, state, verifier); err != nil {
			m.logger.Warn("failed to persist pending verifier", logging.State(state), logging.Err(err))
		}
	}

	m.logger.Debug("issued authorization url",
		logging.State(state),
		slog.Bool("pkce", m.settings.UsesPKCE()))
	return m.config.AuthCodeURL(state, opts...), attempt, nil
}

// recoverVerifier finds the PKCE verifier for state: first from the
// attempt, then from the PendingStore. It returns "" when neither knows the
// state, and the exchange then proceeds without PKCE.
func (m *Manager) recoverVerifier(ctx context.Context, state string, attempt *AuthAttempt) string {
	if attempt != nil && attempt.Verifier != "" && (attempt.State == "" || attempt.State == state) {
		return attempt.Verifier
	}
	verifier, err := m.pending.Load(ctx, state)
	if err != nil {
		m.logger.Warn("failed to load pending verifier", logging.State(state), logging.Err(err))
		return ""
	}
	if verifier != "" {
		m.logger.Debug("recovered pkce verifier from pending store", logging.State(state))
	}
	return verifier
}

// ExchangeCode completes an authorization from the redirect callback
// parameters. Only "state" and "code" are read. attempt may be nil when the
// callback lands in a fresh process.
//
// Validation failures and provider rejections leave every store untouched.
func (m *Manager) ExchangeCode(ctx context.Context, params url.Values, attempt *AuthAttempt) error {
	state := params.Get("state")
	if state == "" {
		return ErrInvalidCallback
	}
	code := params.Get("code")
	if code == "" {
		return ErrMissingCode
	}
	if err := m.checkConfig(); err != nil {
		return err
	}

	logger := m.logger.With(logging.State(state))

	if attempt != nil && attempt.State != "" && attempt.State != state {
		if m.settings.StrictState {
			m.metrics.RecordOAuthExchange(ctx, instrumentation.OAuthResultRejected)
			return ErrStateMismatch
		}
		logger.Warn("state mismatch; continuing", slog.String("attempt_state", logging.HashState(attempt.State)))
	}

	verifier := m.recoverVerifier(ctx, state, attempt)
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := m.config.Exchange(m.clientContext(ctx), code, opts...)
	if err != nil {
		m.metrics.RecordOAuthExchange(ctx, instrumentation.OAuthResultFailure)
		logger.Warn("token exchange failed", slog.Bool("pkce", verifier != ""), logging.Err(err))
		return newTokenExchangeError(err)
	}

	t := m.fromOAuth2(tok)
	if err := m.store.Save(ctx, t); err != nil {
		m.metrics.RecordOAuthExchange(ctx, instrumentation.OAuthResultFailure)
		return fmt.Errorf("failed to persist token: %w", err)
	}

	m.mu.Lock()
	m.token = t
	m.loaded = true
	m.refreshErr = nil
	m.mu.Unlock()

	if err := m.pending.Clear(ctx, state); err != nil {
		logger.Warn("failed to clear pending verifier", logging.Err(err))
	}

	m.metrics.RecordOAuthExchange(ctx, instrumentation.OAuthResultSuccess)
	logger.Info("authorization completed",
		logging.Store(m.store.String()),
		slog.Bool("pkce", verifier != ""),
		slog.Bool("refresh_token", t.RefreshToken != ""))
	return nil
}

func (m *Manager) fromOAuth2(tok *oauth2.Token) *Token {
	t := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     m.config.Endpoint.TokenURL,
		ClientID:     m.settings.ClientID,
		ClientSecret: m.settings.ClientSecret,
		Scopes:       slices.Clone(m.config.Scopes),
	}
	if !tok.Expiry.IsZero() {
		t.Expiry = tok.Expiry.UTC()
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		t.IDToken = id
	}
	return t
}

// ensureLoaded reads the stored token on first use. Callers hold m.mu.
func (m *Manager) ensureLoaded(ctx context.Context) {
	if m.loaded {
		return
	}
	t, err := m.store.Load(ctx)
	if err != nil {
		// Not marked loaded, so the next call retries.
		m.logger.Error("failed to load token", logging.Store(m.store.String()), logging.Err(err))
		return
	}
	if t != nil && !t.usable() {
		m.logger.Warn("discarding stored token without access or refresh token", logging.Store(m.store.String()))
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Warn("failed to clear unusable token", logging.Err(err))
		}
		t = nil
	}
	m.token = t
	m.loaded = true
}

func (m *Manager) stateLocked() CredentialState {
	switch {
	case m.token == nil:
		return NoCredential
	case m.token.Valid(m.now()):
		return CredentialValid
	case m.token.RefreshToken != "":
		return CredentialExpiredRefreshable
	default:
		return CredentialInvalid
	}
}

// State reports the current credential state without refreshing.
func (m *Manager) State(ctx context.Context) CredentialState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)
	return m.stateLocked()
}

// Credentials returns a usable token, refreshing it when expired. It
// returns nil when there is no credential, when refresh failed, or when
// the credential is unusable; LastRefreshError tells refresh failures
// apart. A permanent refresh failure resets the credential.
func (m *Manager) Credentials(ctx context.Context) *Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureLoaded(ctx)
	switch m.stateLocked() {
	case CredentialValid:
		return m.token.clone()
	case CredentialExpiredRefreshable:
		return m.refreshLocked(ctx)
	default:
		return nil
	}
}

// LastRefreshError returns the *RefreshError of the most recent failed
// refresh, or nil. A successful refresh or exchange clears it.
func (m *Manager) LastRefreshError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshErr
}

func (m *Manager) refreshLocked(ctx context.Context) *Token {
	src := m.config.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: m.token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		rerr := &RefreshError{Permanent: isPermanentRefreshFailure(err), Err: err}
		if rerr.Permanent {
			m.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultPermanent)
			m.logger.Warn("refresh token rejected; resetting credential", logging.Err(err))
			if cerr := m.resetLocked(ctx); cerr != nil {
				m.logger.Error("failed to reset credential", logging.Err(cerr))
			}
		} else {
			m.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultFailure)
			m.logger.Warn("token refresh failed", logging.Err(err))
		}
		m.refreshErr = rerr
		return nil
	}

	updated := m.token.clone()
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	updated.Expiry = time.Time{}
	if !tok.Expiry.IsZero() {
		updated.Expiry = tok.Expiry.UTC()
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		updated.IDToken = id
	}

	// A failed write still leaves a valid credential for this process.
	if err := m.store.Save(ctx, updated); err != nil {
		m.logger.Error("failed to persist refreshed token", logging.Store(m.store.String()), logging.Err(err))
	}
	m.token = updated
	m.refreshErr = nil
	m.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	m.logger.Debug("refreshed access token",
		slog.String("access_token", logging.SanitizeToken(updated.AccessToken)),
		slog.Time("expiry", updated.Expiry))
	return updated.clone()
}

// Reset forgets the credential and clears the token store. It is
// idempotent.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshErr = nil
	return m.resetLocked(ctx)
}

func (m *Manager) resetLocked(ctx context.Context) error {
	m.token = nil
	m.loaded = true
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token store: %w", err)
	}
	m.logger.Info("credential reset", logging.Store(m.store.String()))
	return nil
}
