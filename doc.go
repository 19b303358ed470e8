// Package pairmint is a credential issuance and refresh-rotation engine:
// it mints short-lived signed access tokens paired with long-lived,
// single-use, revocable refresh tokens, and exchanges an expired access
// token plus its refresh token for a new pair under strict one-shot,
// revocation, and jti-binding semantics.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. The engine itself is stateless; the only shared mutable
// resource is the refresh-token row in Redis, and its consumption is a
// single compare-and-swap, so at most one of N racing rotation attempts on
// the same refresh value can succeed.
//
// # Architecture boundaries
//
// pairmint is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy, and value types ([TokenPair], [AuthResult],
// [AuditEvent]). Token signing lives in jwt/, row persistence in refresh/,
// and neither leaks into the public API. User lookup and storage stay with
// the embedding system behind [IdentityResolver] and the injected Redis
// client.
//
// # What this package must NOT do
//
//   - Store or hash passwords; authentication of primary credentials is the
//     embedding system's job. The engine starts where an [Identity] is
//     already established.
//   - Retry failed rotations. Every rejection is reported as a distinct
//     error kind and retry (typically re-authentication) is a caller
//     decision.
//   - Extend unexpired access tokens. Rotation of a token that is still
//     valid fails with [ErrNotYetExpired].
package pairmint
