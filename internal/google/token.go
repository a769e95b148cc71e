package google

import (
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// expiryDelta is how long before its recorded expiry a token is treated as
// expired.
const expiryDelta = time.Minute

// Token is the persisted OAuth credential. Field names follow Google's
// authorized-user JSON document.
type Token struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	IDToken      string    `json:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// usable reports whether the token satisfies the invariant that at least
// one of the access and refresh tokens is present.
func (t *Token) usable() bool {
	return t != nil && (t.AccessToken != "" || t.RefreshToken != "")
}

// Valid reports whether the access token can be used at now. A token with
// no recorded expiry is treated as unexpired.
func (t *Token) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || now.Add(expiryDelta).Before(t.Expiry)
}

// OAuth2 converts the token for use with golang.org/x/oauth2 transports.
func (t *Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

func (t *Token) clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	c.Scopes = slices.Clone(t.Scopes)
	return &c
}
