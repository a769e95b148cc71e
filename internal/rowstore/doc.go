// Package rowstore is the table-oriented storage layer shared by the token
// store, the message index and the message store.
//
// Three implementations satisfy Client: PostgREST talks to a hosted
// Supabase project, SQLite keeps everything in a local database file and
// Memory serves tests and dry runs. Only equality filters are supported.
package rowstore
