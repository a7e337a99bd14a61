package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seald/internal/domain"
)

// VerifyDocument classifies a document's bytes against the ledger. It is
// read only: no locks, no writes, safe under any level of concurrency.
type VerifyDocument struct {
	Documents domain.DocumentRepository
	Bytes     ByteStore
	Ledger    domain.LedgerClient
	Digests   Digester
	Now       func() time.Time
}

// Execute verifies the bytes the service itself stored for the document.
func (uc *VerifyDocument) Execute(ctx context.Context, id string) (*domain.VerificationResult, error) {
	doc, err := uc.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var candidate []byte
	if doc.ByteRef != "" {
		candidate, err = uc.Bytes.Get(ctx, doc.ByteRef)
		if err != nil {
			return nil, err
		}
	}
	return uc.verify(ctx, id, candidate, doc.ByteRef != "")
}

// ExecuteBytes verifies caller-supplied bytes, the independent-file path:
// the caller got a document out of band and wants to know whether it is the
// one that was anchored.
func (uc *VerifyDocument) ExecuteBytes(ctx context.Context, id string, candidate []byte) (*domain.VerificationResult, error) {
	if _, err := uc.Documents.Get(ctx, id); err != nil {
		return nil, err
	}
	return uc.verify(ctx, id, candidate, true)
}

func (uc *VerifyDocument) verify(ctx context.Context, id string, candidate []byte, haveBytes bool) (*domain.VerificationResult, error) {
	result := &domain.VerificationResult{
		DocumentID: id,
		CheckedAt:  uc.now(),
	}

	anchored, err := uc.Ledger.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotAnchored) {
			result.Outcome = domain.VerificationNotAnchored
			if haveBytes {
				result.ComputedDigest = uc.Digests.Sum(candidate)
			}
			return result, nil
		}
		return nil, err
	}
	result.AnchoredDigest = anchored

	if !haveBytes {
		return nil, fmt.Errorf("document %s is anchored but has no stored bytes: %w", id, domain.ErrInvalidState)
	}
	result.ComputedDigest = uc.Digests.Sum(candidate)
	if uc.Digests.Equal(anchored, result.ComputedDigest) {
		result.Outcome = domain.VerificationAuthentic
	} else {
		result.Outcome = domain.VerificationTampered
	}
	return result, nil
}

func (uc *VerifyDocument) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now().UTC()
}
