package google

// DefaultScopes are the scopes requested for the indexed mailbox: read-only
// Gmail access plus the OpenID identity of the account that granted it.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Google's OAuth endpoints. They match google.Endpoint and are recorded in
// persisted tokens as token_uri.
const (
	AuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL = "https://oauth2.googleapis.com/token"
)
