package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"seald/internal/domain"
)

// DocumentLifecycle drives an invoice document through
// Pending -> Draft -> Approved, plus the Reject and Reset transitions.
// Approve is the only path that writes to the ledger, and it is serialized
// per document id.
type DocumentLifecycle struct {
	Documents domain.DocumentRepository
	Shipments domain.ShipmentRepository
	Ledger    domain.LedgerClient
	Renderer  Renderer
	Bytes     ByteStore
	Digests   Digester
	Audit     *AuditEmitter

	// AllowReanchor permits approving over a differing ledger entry after a
	// reset. Off by default: the ledger entry wins and approval fails.
	AllowReanchor bool
	AnchorTimeout time.Duration
	Now           func() time.Time

	approving keyedMutex
}

type CreateDraftRequest struct {
	DocumentID string
	Actor      domain.Principal
	LineItems  []domain.LineItem
}

type ApproveRequest struct {
	DocumentID string
	Actor      domain.Principal
}

type RejectRequest struct {
	DocumentID string
	Actor      domain.Principal
}

type ResetRequest struct {
	DocumentID string
	Actor      domain.Principal
}

type ApproveResponse struct {
	Document *domain.ShipmentDocument
	// Confirmation is nil when the ledger already held the digest and the
	// approval completed without a new write.
	Confirmation *domain.AnchorConfirmation
}

func (uc *DocumentLifecycle) CreateDraft(ctx context.Context, req CreateDraftRequest) (*domain.ShipmentDocument, error) {
	doc, err := uc.createDraft(ctx, req)
	uc.Audit.Emit(ctx, domain.AuditEventDocumentDrafted, req.Actor, req.DocumentID, "", err)
	return doc, err
}

func (uc *DocumentLifecycle) createDraft(ctx context.Context, req CreateDraftRequest) (*domain.ShipmentDocument, error) {
	if err := validateLineItems(req.LineItems); err != nil {
		return nil, err
	}
	doc, err := uc.Documents.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusPending && doc.Status != domain.StatusDraft {
		return nil, fmt.Errorf("draft requires a pending or draft document, have %s: %w", doc.Status, domain.ErrInvalidState)
	}
	shipment, err := uc.Shipments.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}

	rendered, err := uc.Renderer.Render(*shipment, req.LineItems, false)
	if err != nil {
		return nil, err
	}
	ref, err := uc.Bytes.Put(ctx, draftRef(req.DocumentID), rendered)
	if err != nil {
		return nil, err
	}

	doc.LineItems = append([]domain.LineItem(nil), req.LineItems...)
	doc.ByteRef = ref
	doc.Digest = domain.PendingLock
	doc.Status = domain.StatusDraft
	if err := uc.Documents.SaveDraft(ctx, *doc); err != nil {
		return nil, err
	}
	return uc.Documents.Get(ctx, req.DocumentID)
}

func (uc *DocumentLifecycle) Approve(ctx context.Context, req ApproveRequest) (*ApproveResponse, error) {
	uc.approving.Lock(req.DocumentID)
	defer uc.approving.Unlock(req.DocumentID)

	resp, err := uc.approve(ctx, req.DocumentID)
	uc.Audit.Emit(ctx, domain.AuditEventDocumentApproved, req.Actor, req.DocumentID, "", err)
	return resp, err
}

func (uc *DocumentLifecycle) approve(ctx context.Context, id string) (*ApproveResponse, error) {
	doc, err := uc.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusDraft {
		return nil, fmt.Errorf("approve requires a draft, have %s: %w", doc.Status, domain.ErrInvalidState)
	}
	if len(doc.LineItems) == 0 {
		return nil, fmt.Errorf("draft has no line items: %w", domain.ErrInvalidState)
	}
	shipment, err := uc.Shipments.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	final, err := uc.Renderer.Render(*shipment, doc.LineItems, true)
	if err != nil {
		return nil, err
	}
	sum := uc.Digests.Sum(final)

	// Store the final bytes before touching the ledger. The ref is
	// deterministic, so a failed anchor leaves them in place for a retry.
	ref, err := uc.Bytes.Put(ctx, finalRef(id), final)
	if err != nil {
		return nil, err
	}

	anchored, err := uc.Ledger.Lookup(ctx, id)
	switch {
	case err == nil:
		if uc.Digests.Equal(anchored, sum) {
			// The ledger already holds exactly this digest: either a crash
			// landed between confirmation and the local write, or a reset
			// was re-approved with unchanged content. Complete locally.
			refreshed, err := uc.persistApproved(ctx, id, ref, sum)
			if err != nil {
				return nil, err
			}
			return &ApproveResponse{Document: refreshed}, nil
		}
		if !uc.AllowReanchor {
			return nil, fmt.Errorf("ledger already holds a different digest for %s: %w", id, domain.ErrLedgerRejected)
		}
	case errors.Is(err, domain.ErrNotAnchored):
	default:
		return nil, err
	}

	anchorCtx := ctx
	if uc.AnchorTimeout > 0 {
		var cancel context.CancelFunc
		anchorCtx, cancel = context.WithTimeout(ctx, uc.AnchorTimeout)
		defer cancel()
	}
	conf, err := uc.Ledger.Anchor(anchorCtx, id, sum)
	if err != nil {
		return nil, err
	}

	refreshed, err := uc.persistApproved(ctx, id, ref, sum)
	if err != nil {
		return nil, err
	}
	return &ApproveResponse{Document: refreshed, Confirmation: &conf}, nil
}

func (uc *DocumentLifecycle) persistApproved(ctx context.Context, id, ref, sum string) (*domain.ShipmentDocument, error) {
	err := uc.Documents.MarkApproved(ctx, id, domain.StatusDraft, ref, sum, uc.now())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return nil, fmt.Errorf("document left draft during approval: %w", domain.ErrInvalidState)
		}
		return nil, err
	}
	return uc.Documents.Get(ctx, id)
}

func (uc *DocumentLifecycle) Reject(ctx context.Context, req RejectRequest) (*domain.ShipmentDocument, error) {
	doc, err := uc.reject(ctx, req.DocumentID)
	uc.Audit.Emit(ctx, domain.AuditEventDocumentRejected, req.Actor, req.DocumentID, "", err)
	return doc, err
}

func (uc *DocumentLifecycle) reject(ctx context.Context, id string) (*domain.ShipmentDocument, error) {
	doc, err := uc.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusDraft {
		return nil, fmt.Errorf("reject requires a draft, have %s: %w", doc.Status, domain.ErrInvalidState)
	}
	if err := uc.Documents.SetStatus(ctx, id, domain.StatusPending, domain.PendingLock); err != nil {
		return nil, err
	}
	return uc.Documents.Get(ctx, id)
}

// Reset returns an approved document to Pending. It clears the local digest
// and lock time only. The ledger entry stays, which is what makes the
// AllowReanchor policy matter on the next approval.
func (uc *DocumentLifecycle) Reset(ctx context.Context, req ResetRequest) (*domain.ShipmentDocument, error) {
	doc, err := uc.reset(ctx, req.DocumentID)
	uc.Audit.Emit(ctx, domain.AuditEventDocumentReset, req.Actor, req.DocumentID, "", err)
	return doc, err
}

func (uc *DocumentLifecycle) reset(ctx context.Context, id string) (*domain.ShipmentDocument, error) {
	doc, err := uc.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusApproved {
		return nil, fmt.Errorf("reset requires an approved document, have %s: %w", doc.Status, domain.ErrInvalidState)
	}
	if err := uc.Documents.SetStatus(ctx, id, domain.StatusPending, domain.PendingLock); err != nil {
		return nil, err
	}
	return uc.Documents.Get(ctx, id)
}

func (uc *DocumentLifecycle) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now().UTC()
}

func validateLineItems(items []domain.LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("at least one line item is required: %w", domain.ErrInvalidInput)
	}
	for i, item := range items {
		if strings.TrimSpace(item.Grade) == "" {
			return fmt.Errorf("line item %d: grade is required: %w", i, domain.ErrInvalidInput)
		}
		if item.Qty <= 0 {
			return fmt.Errorf("line item %d: qty must be positive: %w", i, domain.ErrInvalidInput)
		}
		if item.WeightKg <= 0 {
			return fmt.Errorf("line item %d: weight_kg must be positive: %w", i, domain.ErrInvalidInput)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("line item %d: unit_price must not be negative: %w", i, domain.ErrInvalidInput)
		}
	}
	return nil
}

func draftRef(id string) string { return id + "-draft.json" }
func finalRef(id string) string { return id + "-final.json" }
