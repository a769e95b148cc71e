package google

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

var (
	// ErrConfiguration means client_id or redirect_uri is not configured.
	ErrConfiguration = errors.New("oauth client is not configured: client_id and redirect_uri are required")

	// ErrInvalidCallback means the redirect callback carried no state.
	ErrInvalidCallback = errors.New("invalid authorization response: missing state")

	// ErrMissingCode means the redirect callback carried no authorization code.
	ErrMissingCode = errors.New("invalid authorization response: missing code")

	// ErrStateMismatch is returned in strict mode when the callback state
	// differs from the state of the authorization attempt.
	ErrStateMismatch = errors.New("authorization state does not match the pending attempt")

	// ErrNotAuthorized means no usable credential is available.
	ErrNotAuthorized = errors.New("gmail is not authorized")

	// ErrRefreshPermanent matches refresh failures that invalidated the
	// credential (invalid_grant, invalid_scope). The credential has been reset.
	ErrRefreshPermanent = errors.New("authorization expired, please re-authorize")

	// ErrRefreshTransient matches refresh failures worth retrying later.
	ErrRefreshTransient = errors.New("token refresh failed")
)

// TokenExchangeError is returned when the token endpoint rejects an
// authorization code. The caller may start a new authorization.
type TokenExchangeError struct {
	Err  error
	Hint string
}

func (e *TokenExchangeError) Error() string {
	msg := fmt.Sprintf("token exchange failed: %v", e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

func newTokenExchangeError(err error) *TokenExchangeError {
	e := &TokenExchangeError{Err: err}
	msg := err.Error()
	if strings.Contains(msg, "code_verifier") && strings.Contains(msg, "not needed") {
		e.Hint = "the OAuth client looks confidential; configure its client secret so PKCE is skipped"
	}
	return e
}

// RefreshError describes a failed token refresh.
type RefreshError struct {
	Permanent bool
	Err       error
}

func (e *RefreshError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("%v: %v", ErrRefreshPermanent, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrRefreshTransient, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrRefreshPermanent or ErrRefreshTransient.
func (e *RefreshError) Is(target error) bool {
	switch target {
	case ErrRefreshPermanent:
		return e.Permanent
	case ErrRefreshTransient:
		return !e.Permanent
	}
	return false
}

// isPermanentRefreshFailure reports whether the provider revoked or
// narrowed the grant behind a refresh token.
func isPermanentRefreshFailure(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_scope":
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "invalid_scope")
}
