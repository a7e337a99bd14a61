package domain

import (
	"context"
	"time"
)

// AnchorConfirmation reports a finalized ledger write. A LedgerClient must
// not return one until the transaction is confirmed, not merely submitted.
type AnchorConfirmation struct {
	TxID        string
	BlockNumber int64
	ChainID     string
	ConfirmedAt time.Time
}

type LedgerClient interface {
	// Anchor registers documentID -> digest on the ledger and blocks until
	// the write is finalized. Failures map to ErrLedgerUnavailable
	// (network, timeout; retryable) or ErrLedgerRejected (refused write).
	Anchor(ctx context.Context, documentID, digest string) (AnchorConfirmation, error)
	// Lookup returns the anchored digest, or ErrNotAnchored for an id the
	// ledger has never seen.
	Lookup(ctx context.Context, documentID string) (string, error)
	// ConfirmDelivery records delivery of a shipment on the ledger.
	ConfirmDelivery(ctx context.Context, shipmentID string) (AnchorConfirmation, error)
}
