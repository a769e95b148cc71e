// Package google manages the delegated Google OAuth credential used to read
// the indexed mailbox.
//
// # Components
//
//   - TokenStore persists the single credential. FileTokenStore writes one
//     JSON document; RowTokenStore keeps an active row plus history in the
//     gm_tokens table.
//   - PendingStore keeps PKCE verifiers keyed by OAuth state so that a
//     redirect landing in a new process can still finish the exchange.
//     FilePendingStore and RedisPendingStore implement it.
//   - Manager builds consent URLs, exchanges codes, refreshes and resets the
//     credential.
//
// # Authorization flow
//
//	url, attempt, err := manager.AuthorizationURL(ctx)
//	// redirect the user to url, remember attempt if possible
//	err = manager.ExchangeCode(ctx, callbackQuery, attempt)
//
// Public clients (no client secret) use PKCE with S256 challenges. Callback
// states that do not match the attempt are logged and tolerated unless
// Settings.StrictState is set.
//
// # Refresh
//
// Credentials refreshes expired tokens. invalid_grant and invalid_scope
// responses reset the credential; any other failure leaves it in place so a
// later call can retry.
package google
