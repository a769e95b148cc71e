package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/teemow/inboxindex/internal/google"
	"github.com/teemow/inboxindex/internal/logging"
)

// attemptCookie carries the key of the caller's pending authorization
// attempt between /oauth/start and /oauth/callback.
const attemptCookie = "inboxindex_attempt"

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	authURL, attempt, err := s.auth.AuthorizationURL(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	key := uuid.NewString()
	s.attempts.Set(key, attempt, s.cfg.AttemptTTL)
	http.SetCookie(w, &http.Cookie{
		Name:     attemptCookie,
		Value:    key,
		Path:     "/oauth",
		MaxAge:   int(s.cfg.AttemptTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	if r.URL.Query().Get("redirect") == "false" {
		writeJSON(w, http.StatusOK, map[string]string{"authorization_url": authURL})
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// takeAttempt removes and returns the attempt referenced by the request's
// cookie. A missing or expired attempt yields nil; the exchange then
// falls back to the pending store.
func (s *Server) takeAttempt(r *http.Request) (string, *google.AuthAttempt) {
	c, err := r.Cookie(attemptCookie)
	if err != nil || c.Value == "" {
		return "", nil
	}
	item := s.attempts.Get(c.Value)
	if item == nil {
		return c.Value, nil
	}
	return c.Value, item.Value()
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if providerErr := params.Get("error"); providerErr != "" {
		s.logger.WarnContext(r.Context(), "authorization denied by provider",
			logging.State(params.Get("state")),
			logging.Err(errors.New(providerErr)))
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "authorization was not granted: " + providerErr,
		})
		return
	}

	key, attempt := s.takeAttempt(r)
	if err := s.auth.ExchangeCode(r.Context(), params, attempt); err != nil {
		s.writeError(w, r, err)
		return
	}

	if key != "" {
		s.attempts.Delete(key)
		http.SetCookie(w, &http.Cookie{
			Name:     attemptCookie,
			Path:     "/oauth",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "authorized"})
}

// StatusResponse is the body of GET /oauth/status.
type StatusResponse struct {
	State            string `json:"state"`
	Store            string `json:"store"`
	LastRefreshError string `json:"last_refresh_error,omitempty"`
	ReauthRequired   bool   `json:"reauth_required"`
}

func (s *Server) handleOAuthStatus(w http.ResponseWriter, r *http.Request) {
	state := s.auth.State(r.Context())
	resp := StatusResponse{
		State:          state.String(),
		Store:          s.auth.Store().String(),
		ReauthRequired: state == google.NoCredential || state == google.CredentialInvalid,
	}
	if err := s.auth.LastRefreshError(); err != nil {
		resp.LastRefreshError = err.Error()
		if errors.Is(err, google.ErrRefreshPermanent) {
			resp.ReauthRequired = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOAuthReset(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Reset(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
