package pairmint

import (
	"context"
	"time"
)

// Identity is the opaque descriptor a pair is minted for. It is owned by the
// external identity store and read-only to the engine.
type Identity struct {
	ID    string
	Email string
}

// IdentityResolver is the interface the embedding system implements to let
// the engine look up the owner of a refresh token when minting the successor
// pair. Implementations should return [ErrIdentityNotFound] (possibly
// wrapped) for a missing identity.
type IdentityResolver interface {
	FindByID(ctx context.Context, id string) (Identity, error)
	FindByOwnerRef(ctx context.Context, ref string) (Identity, error)
}

// TokenPair is the externally visible result of minting: the compact signed
// access token and the opaque refresh value.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by [Engine.Verify] for an authentic, unexpired
// access token.
type AuthResult struct {
	Subject string
	Email   string
	// JTI is the unique token identifier binding this access token to its
	// companion refresh row.
	JTI string

	IssuedAt  time.Time
	ExpiresAt time.Time
}
