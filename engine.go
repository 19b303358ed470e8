package pairmint

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pairmint/pairmint/internal"
	"github.com/pairmint/pairmint/jwt"
	"github.com/pairmint/pairmint/refresh"
)

// Engine is the credential issuance and rotation core. Construct it through
// [Builder]; a zero Engine is not usable. All methods are safe for
// concurrent use.
type Engine struct {
	config Config

	jwtManager *jwt.Manager
	store      *refresh.Store
	resolver   IdentityResolver
	audit      *auditDispatcher
	metrics    *Metrics
}

// IssuePair mints a fresh access/refresh pair for the identity with the
// given owner ID. The access token carries a unique jti claim and the
// refresh row is bound to that jti, so the pair can only ever rotate
// together.
func (e *Engine) IssuePair(ctx context.Context, ownerID string) (*TokenPair, error) {
	identity, err := e.resolver.FindByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			err = ErrUnknownOwner
		}
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueFailure, false, ownerID, "", err, nil)
		return nil, err
	}

	pair, jti, err := e.issuePair(ctx, identity)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueFailure, false, ownerID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventPairIssued, true, ownerID, jti, nil, nil)

	return pair, nil
}

// Rotate exchanges an expired access token plus its live one-shot refresh
// token for a successor pair. Checks run in a fixed order: token integrity,
// premature presentation, then the store's atomic consume (soft-delete,
// expiry, one-shot, revocation, jti binding), then owner existence. Of N
// concurrent calls presenting the same refresh token, exactly one can
// succeed.
func (e *Engine) Rotate(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricRotateLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		err = accessParseError(err)
		e.metricInc(MetricRotateRejected)
		e.emitAudit(ctx, auditEventRotateInvalid, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "access_parse_failed",
			}
		})
		return nil, err
	}

	now := time.Now()

	if claims.ExpiresAt == nil || claims.ID == "" {
		e.metricInc(MetricRotateRejected)
		e.emitAudit(ctx, auditEventRotateInvalid, false, claims.Subject, claims.ID, ErrMalformedToken, func() map[string]string {
			return map[string]string{
				"reason": "missing_claims",
			}
		})
		return nil, ErrMalformedToken
	}
	if now.Before(claims.ExpiresAt.Time) {
		e.metricInc(MetricRotateRejected)
		e.emitAudit(ctx, auditEventRotateInvalid, false, claims.Subject, claims.ID, ErrNotYetExpired, nil)
		return nil, ErrNotYetExpired
	}

	rec, err := e.store.Consume(ctx, refreshToken, claims.ID, now)
	if err != nil {
		return nil, e.rotateConsumeError(ctx, claims, err)
	}

	identity, err := e.resolver.FindByID(ctx, rec.OwnerID)
	if err != nil {
		// The refresh row is already consumed at this point. Left that way
		// on purpose: a token whose owner no longer resolves must not stay
		// rotatable.
		e.metricInc(MetricRotateRejected)
		e.emitAudit(ctx, auditEventRotateInvalid, false, rec.OwnerID, claims.ID, ErrUnknownOwner, func() map[string]string {
			return map[string]string{
				"reason": "owner_lookup_failed",
			}
		})
		return nil, ErrUnknownOwner
	}

	pair, newJTI, err := e.issuePair(ctx, identity)
	if err != nil {
		e.metricInc(MetricRotateRejected)
		e.emitAudit(ctx, auditEventRotateInvalid, false, rec.OwnerID, claims.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_successor_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricRotateSuccess)
	e.emitAudit(ctx, auditEventRotateSuccess, true, rec.OwnerID, claims.ID, nil, func() map[string]string {
		return map[string]string{
			"successor_jti": newJTI,
		}
	})

	return pair, nil
}

// Verify checks an access token for use on a protected operation:
// structure, algorithm, signature, and expiry with the configured leeway.
// It never touches Redis.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return nil, accessParseError(err)
	}
	if claims.ExpiresAt == nil {
		e.metricInc(MetricVerifyFailure)
		return nil, ErrMalformedToken
	}
	if time.Now().After(claims.ExpiresAt.Time.Add(e.config.JWT.Leeway)) {
		e.metricInc(MetricVerifyFailure)
		return nil, ErrAccessTokenExpired
	}

	e.metricInc(MetricVerifySuccess)

	result := &AuthResult{
		Subject:   claims.Subject,
		Email:     claims.Email,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}

	return result, nil
}

// Revoke administratively kills the row for the presented refresh token.
// Idempotent: revoking an already revoked token succeeds.
func (e *Engine) Revoke(ctx context.Context, refreshToken string) error {
	err := e.store.Revoke(ctx, refreshToken, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrTokenNotFound):
			err = ErrUnknownRefreshToken
		default:
			err = errors.Join(ErrPersistenceFailure, err)
		}
		e.emitAudit(ctx, auditEventTokenRevoked, false, "", "", err, nil)
		return err
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, "", "", nil, nil)

	return nil
}

// RevokeAllForOwner revokes every live refresh token of an owner and
// reports how many rows were flipped. Outstanding access tokens stay valid
// until they expire; what this cuts off is the ability to rotate.
func (e *Engine) RevokeAllForOwner(ctx context.Context, ownerID string) (int, error) {
	revoked, err := e.store.RevokeAllForOwner(ctx, ownerID, time.Now())
	if err != nil {
		err = errors.Join(ErrPersistenceFailure, err)
		e.emitAudit(ctx, auditEventOwnerRevoked, false, ownerID, "", err, nil)
		return revoked, err
	}

	e.metricInc(MetricOwnerRevoked)
	e.emitAudit(ctx, auditEventOwnerRevoked, true, ownerID, "", nil, func() map[string]string {
		return map[string]string{
			"revoked_count": strconv.Itoa(revoked),
		}
	})

	return revoked, nil
}

// Ping reports backend availability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	return e.store.Ping(ctx)
}

// MetricsSnapshot returns a point-in-time copy of all counters and the
// rotation latency histogram.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes and stops the audit dispatcher. The Engine must not be
// used after Close.
func (e *Engine) Close() {
	if e.audit != nil {
		e.audit.Close()
	}
}

// issuePair mints the access token first so the refresh row can be bound
// to its jti before anything is persisted.
func (e *Engine) issuePair(ctx context.Context, identity Identity) (*TokenPair, string, error) {
	access, jti, err := e.jwtManager.CreateAccess(identity.ID, identity.Email)
	if err != nil {
		return nil, "", err
	}

	value, err := internal.NewTokenValue()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	rec := &refresh.Record{
		ID:        uuid.NewString(),
		OwnerID:   identity.ID,
		JTI:       jti,
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.Refresh.TTL).Unix(),
		Active:    true,
	}

	if err := e.store.Create(ctx, rec, value); err != nil {
		return nil, "", errors.Join(ErrPersistenceFailure, err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: value,
	}, jti, nil
}

// rotateConsumeError maps a store consume failure onto the public error
// set, with the matching metric and audit event.
func (e *Engine) rotateConsumeError(ctx context.Context, claims *jwt.Claims, err error) error {
	var mapped error
	event := auditEventRotateInvalid

	switch {
	case errors.Is(err, refresh.ErrTokenUsed):
		mapped = ErrRefreshTokenAlreadyUsed
		event = auditEventReuseDetected
		e.metricInc(MetricRotateReuseDetected)
	case errors.Is(err, refresh.ErrBindingMismatch):
		mapped = ErrTokenBindingMismatch
		e.metricInc(MetricRotateBindingMismatch)
	case errors.Is(err, refresh.ErrTokenExpired):
		mapped = ErrRefreshTokenExpired
	case errors.Is(err, refresh.ErrTokenRevoked):
		mapped = ErrRefreshTokenRevoked
	case errors.Is(err, redis.Nil), errors.Is(err, refresh.ErrTokenNotFound):
		mapped = ErrUnknownRefreshToken
	default:
		mapped = errors.Join(ErrPersistenceFailure, err)
	}

	e.metricInc(MetricRotateRejected)
	e.emitAudit(ctx, event, false, claims.Subject, claims.ID, mapped, nil)

	return mapped
}

// accessParseError translates jwt package sentinels into the engine's
// public error set.
func accessParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrAlgorithmMismatch):
		return ErrAlgorithmMismatch
	case errors.Is(err, jwt.ErrBadSignature):
		return ErrBadSignature
	default:
		return ErrMalformedToken
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}
