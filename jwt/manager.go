package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the MAC scheme used for access tokens. Only
// symmetric HMAC variants are supported; the declared algorithm of a
// presented token must match the configured one exactly.
type SigningMethod string

const (
	MethodHS256 SigningMethod = "hs256"
	MethodHS512 SigningMethod = "hs512"
)

// Verification failure classes. ParseAccess never returns a raw library
// error: every failure maps onto exactly one of these so callers can tell
// a forged token from a tampered one.
var (
	// ErrMalformed means the string is not a structurally valid signed token.
	ErrMalformed = errors.New("malformed token")
	// ErrAlgorithmMismatch means the token declares a signing algorithm other
	// than the configured one. Checked before the MAC to defeat
	// algorithm-substitution attacks.
	ErrAlgorithmMismatch = errors.New("signing algorithm mismatch")
	// ErrBadSignature means the MAC does not verify under the configured key.
	ErrBadSignature = errors.New("bad signature")
)

const minSecretSize = 32

// Config carries the signing key material and claim policy. Treated as
// immutable after NewManager.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	Secret        []byte
	Issuer        string
	Audience      string
}

// Claims is the access-token claim set: subject identifier, email, and the
// registered claims including the jti that binds the token to its companion
// refresh row.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies access tokens with a single symmetric key.
// Safe for concurrent use.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.Secret) < minSecretSize {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	switch cfg.SigningMethod {
	case MethodHS256, MethodHS512:
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess mints a signed token for the given subject and returns the
// compact string together with the fresh jti claim. Every call produces a
// unique jti; everything else is deterministic given identical inputs and
// clock.
func (m *Manager) CreateAccess(subject, email string) (string, string, error) {
	jti := uuid.NewString()
	now := time.Now()

	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method(), claims)
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", "", err
	}

	return signed, jti, nil
}

// ParseAccess verifies structure, declared algorithm, and MAC, and returns
// the embedded claims. Expiry is deliberately not enforced here.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, ErrAlgorithmMismatch
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}

	return claims, nil
}

// Alg reports the configured algorithm identifier as it appears in token
// headers.
func (m *Manager) Alg() string {
	return m.method().Alg()
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrAlgorithmMismatch):
		return ErrAlgorithmMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	default:
		// Covers malformed structure, bad base64 segments, and unparsable
		// claim payloads.
		return ErrMalformed
	}
}
