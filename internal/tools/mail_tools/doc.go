// Package mail_tools exposes the mailbox index and the Gmail credential as
// MCP (Model Context Protocol) tools.
//
// Mailbox:
//   - mail_search: search the mailbox and return decoded messages
//   - mail_backfill: index message ids for the lookback period
//   - mail_hydrate: fetch one indexed day, or a day range, into the message store
//
// Credential:
//   - oauth_status: report the stored credential state
//   - oauth_authorization_url: start an authorization
//   - oauth_exchange_code: finish it with the consent redirect
//   - oauth_reset: forget the credential
//
// In read-only mode only mail_search and oauth_status are registered.
package mail_tools
