// Package config loads inboxindex settings from the environment.
//
// A .env file is read first when present; variables already exported in
// the process environment take precedence over it. Command-line flags are
// applied on top by the cmd package.
package config
