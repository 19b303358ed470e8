// Package middleware provides net/http glue for pairmint: a Guard that
// verifies bearer access tokens and stashes the result in the request
// context, plus a helper to inject the client IP for audit events.
package middleware
