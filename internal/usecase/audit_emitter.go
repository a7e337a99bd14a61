package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"seald/internal/domain"
)

// AuditEmitter appends audit events for state-changing operations. Actor
// identifiers are hashed before they leave the process boundary. Emission is
// best effort: a failed append never fails the operation being audited.
type AuditEmitter struct {
	Events domain.AuditEventRepository
	Now    func() time.Time
}

func (e *AuditEmitter) Emit(ctx context.Context, eventType domain.AuditEventType, actor domain.Principal, targetID, detail string, opErr error) {
	if e == nil || e.Events == nil {
		return
	}
	event := domain.AuditEvent{
		EventType:   eventType,
		ActorRole:   actor.Role,
		ActorIDHash: hashActorID(actor.Subject),
		TargetID:    targetID,
		Detail:      detail,
		Result:      domain.AuditResultSuccess,
		CreatedAt:   e.now(),
	}
	if opErr != nil {
		event.Result = domain.AuditResultFailure
		event.ErrorCode = errorCode(opErr)
	}
	e.Events.Append(ctx, event)
}

func (e *AuditEmitter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func hashActorID(subject string) string {
	if subject == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:])
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return "ledger_unavailable"
	case errors.Is(err, domain.ErrLedgerRejected):
		return "ledger_rejected"
	case errors.Is(err, domain.ErrNotAnchored):
		return "not_anchored"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}
