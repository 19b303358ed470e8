// Package refresh persists single-use refresh-token rows in Redis and
// implements their atomic consumption. A row is never physically deleted by
// the engine: one-shot use flips the Used flag, administrative revocation
// flips Revoked, and soft deletion clears Active; all three survive in the
// stored record until the retention TTL lapses.
//
// The consume path is a single Lua compare-and-swap so that two concurrent
// rotation attempts on the same value can never both succeed.
package refresh
