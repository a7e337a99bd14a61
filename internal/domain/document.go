package domain

import (
	"context"
	"time"
)

type InvoiceStatus string

const (
	StatusPending  InvoiceStatus = "Pending"
	StatusDraft    InvoiceStatus = "Draft"
	StatusApproved InvoiceStatus = "Approved"
	StatusRejected InvoiceStatus = "Rejected"
)

// PendingLock is the reserved digest placeholder for documents that have not
// been anchored. It is distinguishable from any valid 0x-prefixed digest.
const PendingLock = "PENDING_LOCK"

type LineItem struct {
	Grade     string  `json:"grade"`
	Qty       int     `json:"qty"`
	WeightKg  float64 `json:"weight_kg"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

// ShipmentDocument is the local record for one shipment's export invoice.
// Digest holds PendingLock exactly while Status != Approved.
type ShipmentDocument struct {
	ID        string
	Status    InvoiceStatus
	LineItems []LineItem
	ByteRef   string
	Digest    string
	LockedAt  *time.Time
	UpdatedAt time.Time
}

type VerificationOutcome string

const (
	VerificationNotAnchored VerificationOutcome = "NOT_ANCHORED"
	VerificationAuthentic   VerificationOutcome = "AUTHENTIC"
	VerificationTampered    VerificationOutcome = "TAMPERED"
)

type VerificationResult struct {
	DocumentID     string
	Outcome        VerificationOutcome
	AnchoredDigest string
	ComputedDigest string
	CheckedAt      time.Time
}

type DocumentRepository interface {
	Get(ctx context.Context, id string) (*ShipmentDocument, error)
	Create(ctx context.Context, doc ShipmentDocument) error
	// SaveDraft persists line items, byteRef and the sentinel digest for a
	// document in Pending or Draft.
	SaveDraft(ctx context.Context, doc ShipmentDocument) error
	// MarkApproved advances Draft -> Approved atomically: it fails with
	// ErrInvalidState when the stored status is no longer fromStatus.
	MarkApproved(ctx context.Context, id string, fromStatus InvoiceStatus, byteRef, digest string, lockedAt time.Time) error
	// SetStatus rewrites status and digest without touching line items.
	SetStatus(ctx context.Context, id string, status InvoiceStatus, digest string) error
}
