package pairmint

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventPairIssued    = "pair_issued"
	auditEventIssueFailure  = "issue_failure"
	auditEventRotateSuccess = "rotate_success"
	auditEventRotateInvalid = "rotate_invalid"
	auditEventReuseDetected = "refresh_reuse_detected"
	auditEventTokenRevoked  = "token_revoked"
	auditEventOwnerRevoked  = "owner_revoked"
)

// AuditErrorCode is the stable error identifier carried in audit events.
type AuditErrorCode string

const (
	auditErrInvalidToken    AuditErrorCode = "invalid_token"
	auditErrNotYetExpired   AuditErrorCode = "not_yet_expired"
	auditErrTokenUnknown    AuditErrorCode = "refresh_unknown"
	auditErrTokenExpired    AuditErrorCode = "refresh_expired"
	auditErrTokenReuse      AuditErrorCode = "refresh_reuse"
	auditErrTokenRevoked    AuditErrorCode = "refresh_revoked"
	auditErrBindingMismatch AuditErrorCode = "binding_mismatch"
	auditErrOwnerUnknown    AuditErrorCode = "owner_unknown"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	ownerID string,
	jti string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		OwnerID:   ownerID,
		JTI:       jti,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrNotYetExpired):
		return auditErrNotYetExpired
	case errors.Is(err, ErrUnknownRefreshToken):
		return auditErrTokenUnknown
	case errors.Is(err, ErrRefreshTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrRefreshTokenAlreadyUsed):
		return auditErrTokenReuse
	case errors.Is(err, ErrRefreshTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenBindingMismatch):
		return auditErrBindingMismatch
	case errors.Is(err, ErrUnknownOwner):
		return auditErrOwnerUnknown
	case errors.Is(err, ErrPersistenceFailure):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
