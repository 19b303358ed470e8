package pairmint

import (
	"errors"
	"fmt"
)

// ErrInvalidToken is the umbrella for the three presentation failures of an
// access token. [ErrMalformedToken], [ErrBadSignature], and
// [ErrAlgorithmMismatch] all match it under errors.Is, so callers can treat
// "forged or broken" uniformly or distinguish the cases as needed.
var ErrInvalidToken = errors.New("invalid access token")

var (
	// ErrMalformedToken means the string is not a structurally valid signed token.
	ErrMalformedToken = fmt.Errorf("%w: malformed", ErrInvalidToken)
	// ErrBadSignature means the MAC does not verify under the configured key.
	ErrBadSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)
	// ErrAlgorithmMismatch means the token declares a different signing
	// algorithm than the configured one.
	ErrAlgorithmMismatch = fmt.Errorf("%w: signing algorithm mismatch", ErrInvalidToken)
)

var (
	// ErrAccessTokenExpired is returned by Verify for authentic but expired tokens.
	ErrAccessTokenExpired = errors.New("access token expired")
	// ErrNotYetExpired rejects rotation of an access token that is still valid.
	ErrNotYetExpired = errors.New("access token not yet expired")
	// ErrUnknownRefreshToken means no live row matches the presented value.
	ErrUnknownRefreshToken = errors.New("unknown refresh token")
	// ErrRefreshTokenExpired means the row's expiry has passed; the owner must
	// re-authenticate.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshTokenAlreadyUsed means the one-shot flag was already set.
	// On a fresh presentation this signals possible token theft or replay.
	ErrRefreshTokenAlreadyUsed = errors.New("refresh token already used")
	// ErrRefreshTokenRevoked means the row was administratively revoked.
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
	// ErrTokenBindingMismatch means the refresh row is not bound to the jti of
	// the presented access token.
	ErrTokenBindingMismatch = errors.New("refresh token not bound to access token")
	// ErrUnknownOwner means the row's owner could not be resolved. The refresh
	// token is burned regardless: a consumed row never rotates again.
	ErrUnknownOwner = errors.New("unknown token owner")
	// ErrPersistenceFailure wraps durable-store failures. During the consume
	// step the row's Used flag is either committed or untouched, never ambiguous.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrIdentityNotFound is the sentinel an IdentityResolver returns for a
	// missing identity.
	ErrIdentityNotFound = errors.New("identity not found")
)
