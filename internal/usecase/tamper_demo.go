package usecase

import (
	"context"
	"fmt"

	"seald/internal/domain"
)

// tamperMarker is appended to the approved bytes to produce a visibly
// altered copy. Any change would do; this one is easy to spot in the file.
const tamperMarker = "\n# altered after approval\n"

// TamperDemo manufactures a provably tampered copy of an approved document
// for demonstrations. It never touches the approved bytes or the ledger.
type TamperDemo struct {
	Documents domain.DocumentRepository
	Bytes     ByteStore
	Digests   Digester
	Audit     *AuditEmitter
}

type TamperRequest struct {
	DocumentID string
	Actor      domain.Principal
}

type TamperResult struct {
	DocumentID     string
	TamperedRef    string
	AnchoredDigest string
	TamperedDigest string
}

func (uc *TamperDemo) Tamper(ctx context.Context, req TamperRequest) (*TamperResult, error) {
	result, err := uc.tamper(ctx, req.DocumentID)
	uc.Audit.Emit(ctx, domain.AuditEventDemoTampered, req.Actor, req.DocumentID, "", err)
	return result, err
}

func (uc *TamperDemo) tamper(ctx context.Context, id string) (*TamperResult, error) {
	doc, err := uc.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusApproved {
		return nil, fmt.Errorf("tamper demo requires an approved document, have %s: %w", doc.Status, domain.ErrInvalidState)
	}
	original, err := uc.Bytes.Get(ctx, doc.ByteRef)
	if err != nil {
		return nil, err
	}
	tampered := append(append([]byte(nil), original...), []byte(tamperMarker)...)
	ref, err := uc.Bytes.Put(ctx, tamperedRef(id), tampered)
	if err != nil {
		return nil, err
	}
	return &TamperResult{
		DocumentID:     id,
		TamperedRef:    ref,
		AnchoredDigest: doc.Digest,
		TamperedDigest: uc.Digests.Sum(tampered),
	}, nil
}

// Restore removes the tampered artifact. The approved bytes were never
// modified, so there is nothing else to undo.
func (uc *TamperDemo) Restore(ctx context.Context, req TamperRequest) error {
	err := uc.restore(ctx, req.DocumentID)
	uc.Audit.Emit(ctx, domain.AuditEventDemoRestored, req.Actor, req.DocumentID, "", err)
	return err
}

func (uc *TamperDemo) restore(ctx context.Context, id string) error {
	if _, err := uc.Documents.Get(ctx, id); err != nil {
		return err
	}
	return uc.Bytes.Delete(ctx, tamperedRef(id))
}

// TamperedBytes returns the altered copy, for verifying it against the
// ledger through the usual verification path.
func (uc *TamperDemo) TamperedBytes(ctx context.Context, id string) ([]byte, error) {
	return uc.Bytes.Get(ctx, tamperedRef(id))
}

func tamperedRef(id string) string { return id + "-tampered.json" }
