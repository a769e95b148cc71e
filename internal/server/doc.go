// Package server is the HTTP control surface of inboxindex.
//
// Routes:
//
//	GET  /oauth/start     start an authorization, redirecting to Google
//	GET  /oauth/callback  complete it with the code Google returns
//	GET  /oauth/status    credential state
//	POST /oauth/reset     forget the stored credential
//	POST /mail/backfill   run one index pass
//	POST /mail/hydrate    hydrate ?day= or ?from=&to=
//	GET  /mail/search     ad-hoc search, ?q=&limit=
//	GET  /healthz, /readyz, /healthz/detailed
//
// The authorization attempt started by /oauth/start is kept in a TTL cache
// keyed by a cookie. When the callback lands without it (another replica,
// a restart, an expired entry) the exchange falls back to the durable
// pending store.
//
// MetricsServer exposes /metrics on a separate listener.
package server
