package pairmint

import (
	"errors"
	"time"

	"github.com/pairmint/pairmint/jwt"
)

// Config is the engine's full configuration tree. Treated as immutable once
// passed to [Builder.Build]; secrets are cloned on ingest.
type Config struct {
	JWT     JWTConfig
	Refresh RefreshConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token signing and claims.
type JWTConfig struct {
	// AccessTTL is the access-token lifetime. Short by design: hours, not days.
	AccessTTL time.Duration
	// SigningMethod is "hs256" (default) or "hs512".
	SigningMethod string
	// Secret is the symmetric MAC key, minimum 32 bytes.
	Secret   []byte
	Issuer   string
	Audience string
	// Leeway is tolerated clock skew when Verify enforces expiry. It does not
	// affect the rotation expiry gate.
	Leeway time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh-token rows.
type RefreshConfig struct {
	// TTL is the refresh-row lifetime (default ~6 months).
	TTL time.Duration
	// RedisPrefix namespaces all row and owner-index keys.
	RedisPrefix string
	// RetainAfterExpiry keeps expired rows readable so they report
	// "expired" instead of "unknown". Zero selects the store default.
	RetainAfterExpiry time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events under backpressure instead of blocking the
	// request path; drops are counted and exported.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process metrics collector.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration: 3h access tokens,
// 6-month refresh rows, metrics on, audit off. The signing secret has no
// default and must be provided.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     3 * time.Hour,
			SigningMethod: string(jwt.MethodHS256),
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL:         6 * 30 * 24 * time.Hour,
			RedisPrefix: "pm",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations the engine cannot run safely with.
// Called by [Builder.Build]; exported so embedders can fail fast at startup.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("jwt: access TTL must be positive")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("jwt: signing secret must be at least 32 bytes")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256, jwt.MethodHS512:
	default:
		return errors.New("jwt: unsupported signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("jwt: leeway out of range")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("refresh: TTL must be positive")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("refresh: TTL must exceed access TTL")
	}
	if c.Refresh.RedisPrefix == "" {
		return errors.New("refresh: redis prefix must not be empty")
	}
	if c.Refresh.RetainAfterExpiry < 0 {
		return errors.New("refresh: retain-after-expiry must not be negative")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit: buffer size must not be negative")
	}
	return nil
}
