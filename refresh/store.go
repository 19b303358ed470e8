package refresh

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pairmint/pairmint/internal"
)

// ErrUnavailable wraps every Redis transport failure so callers can separate
// backend outage from token-state rejections.
var ErrUnavailable = errors.New("redis unavailable")

// ErrTokenNotFound is joined with redis.Nil when the presented value matches
// no live row.
var ErrTokenNotFound = errors.New("refresh token not found")

// ErrTokenExpired is returned when the row's expiry has passed. Terminal:
// the owner must re-authenticate.
var ErrTokenExpired = errors.New("refresh token expired")

// ErrTokenUsed is returned when the one-shot flag is already set. Seeing it
// on a fresh presentation signals possible token theft.
var ErrTokenUsed = errors.New("refresh token already used")

// ErrTokenRevoked is returned when the row was administratively revoked.
var ErrTokenRevoked = errors.New("refresh token revoked")

// ErrBindingMismatch is returned when the row's jti does not match the jti
// of the presented access token.
var ErrBindingMismatch = errors.New("refresh token binding mismatch")

// ErrCorrupt is returned when a stored blob cannot be interpreted.
var ErrCorrupt = errors.New("refresh record corrupt")

const defaultRetainAfterExpiry = 30 * 24 * time.Hour

const (
	consumeStatusNotFound int64 = 0
	consumeStatusExpired  int64 = 1
	consumeStatusUsed     int64 = 2
	consumeStatusRevoked  int64 = 3
	consumeStatusMismatch int64 = 4
	consumeStatusConsumed int64 = 5
	consumeStatusCorrupt  int64 = 6
)

// consumeScript is the single serialization point for rotation: it checks
// existence, soft-delete, expiry, one-shot, revocation, and jti binding, and
// flips the Used flag, all inside one Redis execution. Offsets mirror the
// layout in encoder.go (Lua string indexes are 1-based). Arithmetic is used
// instead of the bit library so the script also runs on embedded Lua
// without bitop.
const consumeScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local key = KEYS[1]
local jti = ARGV[1]
local now = tonumber(ARGV[2])
local stamp = ARGV[3]

local data = redis.call("GET", key)
if not data then
  return {0}
end
if #data < 43 or string.byte(data, 1) ~= 1 then
  return {6}
end

local flags = string.byte(data, 2)
if math.floor(flags / 4) % 2 == 0 then
  return {0}
end

local expires_at = read_be64(data, 19)
if not expires_at then
  return {6}
end
if expires_at < now then
  return {1}
end

if flags % 2 == 1 then
  return {2}
end
if math.floor(flags / 2) % 2 == 1 then
  return {3}
end

if string.sub(data, 27, 42) ~= jti then
  return {4}
end

local updated = string.sub(data, 1, 1) .. string.char(flags + 1) .. string.sub(data, 3, 10) .. stamp .. string.sub(data, 19)
redis.call("SET", key, updated, "KEEPTTL")
return {5, updated}
`

var consumeLua = redis.NewScript(consumeScript)

const (
	revokeStatusNotFound int64 = 0
	revokeStatusRevoked  int64 = 1
	revokeStatusCorrupt  int64 = 2
)

// revokeScript sets the Revoked flag in place, keeping the row's TTL.
// Idempotent: revoking an already revoked row reports success.
const revokeScript = `
local key = KEYS[1]
local stamp = ARGV[1]

local data = redis.call("GET", key)
if not data then
  return 0
end
if #data < 43 or string.byte(data, 1) ~= 1 then
  return 2
end

local flags = string.byte(data, 2)
if math.floor(flags / 4) % 2 == 0 then
  return 0
end
if math.floor(flags / 2) % 2 == 1 then
  return 1
end

local updated = string.sub(data, 1, 1) .. string.char(flags + 2) .. string.sub(data, 3, 10) .. stamp .. string.sub(data, 19)
redis.call("SET", key, updated, "KEEPTTL")
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// Store is the Redis-backed refresh-token store. It owns durability of the
// Used/Revoked mutations; the decision to mutate belongs to the engine.
type Store struct {
	redis             redis.UniversalClient
	prefix            string
	retainAfterExpiry time.Duration
}

// NewStore creates a refresh [Store]. prefix namespaces all keys;
// retainAfterExpiry controls how long an expired row stays readable so it
// can still be reported as expired rather than unknown (<= 0 selects the
// 30-day default).
func NewStore(redis redis.UniversalClient, prefix string, retainAfterExpiry time.Duration) *Store {
	if retainAfterExpiry <= 0 {
		retainAfterExpiry = defaultRetainAfterExpiry
	}
	return &Store{
		redis:             redis,
		prefix:            prefix,
		retainAfterExpiry: retainAfterExpiry,
	}
}

func (s *Store) tokenKey(hashSegment string) string {
	return s.prefix + ":rt:" + hashSegment
}

func (s *Store) ownerKey(ownerID string) string {
	return s.prefix + ":own:" + ownerID
}

func valueSegment(value string) string {
	return internal.EncodeHash(internal.HashTokenValue(value))
}

// Create durably writes a new row keyed by the digest of value and indexes
// it under its owner. One call, one row; the engine relies on this being
// the only write of the mint path.
func (s *Store) Create(ctx context.Context, rec *Record, value string) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	segment := valueSegment(value)
	ttl := time.Until(time.Unix(rec.ExpiresAt, 0))
	if ttl < 0 {
		ttl = 0
	}
	ttl += s.retainAfterExpiry

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(segment), data, ttl)
		pipe.SAdd(ctx, s.ownerKey(rec.OwnerID), segment)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// FindByValue returns the live row for a presented value. Soft-deleted rows
// are reported as missing (redis.Nil), matching the visibility rule that
// store operations act only on active rows.
func (s *Store) FindByValue(ctx context.Context, value string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(valueSegment(value))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Join(redis.Nil, ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, ErrCorrupt)
	}
	if !rec.Active {
		return nil, errors.Join(redis.Nil, ErrTokenNotFound)
	}

	return rec, nil
}

// Consume atomically marks the row for value as used, provided it exists,
// is unexpired, unused, unrevoked, and bound to the given jti — evaluated
// strictly in that order. Exactly one of N concurrent callers for the same
// value can succeed; the rest observe [ErrTokenUsed].
func (s *Store) Consume(ctx context.Context, value, jti string, now time.Time) (*Record, error) {
	jtiRaw, err := uuid.Parse(jti)
	if err != nil {
		return nil, ErrBindingMismatch
	}

	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(now.Unix()))

	result, err := consumeLua.Run(
		ctx,
		s.redis,
		[]string{s.tokenKey(valueSegment(value))},
		jtiRaw[:],
		now.Unix(),
		stamp[:],
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid consume script response", ErrUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid consume script status", ErrUnavailable)
	}

	switch code {
	case consumeStatusNotFound:
		return nil, errors.Join(redis.Nil, ErrTokenNotFound)
	case consumeStatusExpired:
		return nil, ErrTokenExpired
	case consumeStatusUsed:
		return nil, ErrTokenUsed
	case consumeStatusRevoked:
		return nil, ErrTokenRevoked
	case consumeStatusMismatch:
		return nil, ErrBindingMismatch
	case consumeStatusConsumed:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing consumed record payload", ErrUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid consumed record payload", ErrUnavailable)
		}

		rec, decErr := Decode(blob)
		if decErr != nil {
			return nil, errors.Join(ErrUnavailable, ErrCorrupt)
		}
		return rec, nil
	case consumeStatusCorrupt:
		return nil, errors.Join(ErrUnavailable, ErrCorrupt)
	default:
		return nil, fmt.Errorf("%w: unknown consume script status", ErrUnavailable)
	}
}

// Revoke sets the administrative kill switch on the row for value.
func (s *Store) Revoke(ctx context.Context, value string, now time.Time) error {
	return s.revokeSegment(ctx, valueSegment(value), now)
}

// RevokeAllForOwner revokes every indexed row of an owner and returns how
// many rows were flipped.
//
// ATOMICITY NOTE: this is not one atomic operation. The owner index is read
// first and each row is revoked individually; a row created between the
// read and the revocations is not captured. The stray row is caught by the
// next call, and rotation on it still honors the one-shot rule, so the race
// only affects revoke-everything completeness, not token safety.
func (s *Store) RevokeAllForOwner(ctx context.Context, ownerID string, now time.Time) (int, error) {
	ownerKey := s.ownerKey(ownerID)
	segments, err := s.redis.SMembers(ctx, ownerKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	revoked := 0
	var stale []interface{}
	for _, segment := range segments {
		err := s.revokeSegment(ctx, segment, now)
		switch {
		case err == nil:
			revoked++
		case errors.Is(err, redis.Nil):
			// Row already aged out of Redis; drop the index entry.
			stale = append(stale, segment)
		default:
			return revoked, err
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, ownerKey, stale...).Err(); err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return revoked, nil
}

// Ping returns a point-in-time availability check and its latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) revokeSegment(ctx context.Context, segment string, now time.Time) error {
	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(now.Unix()))

	code, err := revokeLua.Run(ctx, s.redis, []string{s.tokenKey(segment)}, stamp[:]).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch code {
	case revokeStatusNotFound:
		return errors.Join(redis.Nil, ErrTokenNotFound)
	case revokeStatusRevoked:
		return nil
	case revokeStatusCorrupt:
		return errors.Join(ErrUnavailable, ErrCorrupt)
	default:
		return fmt.Errorf("%w: unknown revoke script status", ErrUnavailable)
	}
}
