package refresh

// Record is one persisted refresh-token row. Exactly one Record is created
// per issued access token; JTI always equals the jti claim of that token.
// Timestamps are unix seconds.
type Record struct {
	ID      string
	OwnerID string
	JTI     string

	CreatedAt int64
	UpdatedAt int64
	ExpiresAt int64

	// Used is the one-shot consumption flag. Once set it never clears.
	Used bool
	// Revoked is the administrative kill switch, independent of Used.
	Revoked bool
	// Active is the soft-delete flag; inactive rows are invisible to every
	// store operation.
	Active bool
}
