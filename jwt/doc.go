// Package jwt wraps the symmetric signing key and produces/verifies compact
// signed access tokens. Verification here is structural and cryptographic
// only: expiry policy belongs to the caller, because an expired but authentic
// token is the expected input for refresh rotation.
package jwt
