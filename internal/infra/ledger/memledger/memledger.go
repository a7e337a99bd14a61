package memledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"seald/internal/domain"
)

// Ledger is the in-memory stand-in used when LEDGER_RPC_URL is unset and in
// tests. Entries are append-only the way the real registry behaves in the
// happy path; Register overwrites only because the contract as deployed
// carries no already-written guard (callers decide re-anchor policy).
type Ledger struct {
	mu        sync.RWMutex
	digests   map[string]string
	delivered map[string]bool
	txSeq     int64
}

func New() *Ledger {
	return &Ledger{
		digests:   make(map[string]string),
		delivered: make(map[string]bool),
	}
}

func (l *Ledger) Anchor(_ context.Context, documentID, digest string) (domain.AnchorConfirmation, error) {
	if documentID == "" || digest == "" {
		return domain.AnchorConfirmation{}, domain.ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txSeq++
	l.digests[documentID] = digest
	return domain.AnchorConfirmation{
		TxID:        fmt.Sprintf("mem-tx-%d", l.txSeq),
		BlockNumber: l.txSeq,
		ChainID:     "memory",
		ConfirmedAt: time.Now().UTC(),
	}, nil
}

func (l *Ledger) Lookup(_ context.Context, documentID string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	digest, ok := l.digests[documentID]
	if !ok {
		return "", domain.ErrNotAnchored
	}
	return digest, nil
}

func (l *Ledger) ConfirmDelivery(_ context.Context, shipmentID string) (domain.AnchorConfirmation, error) {
	if shipmentID == "" {
		return domain.AnchorConfirmation{}, domain.ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txSeq++
	l.delivered[shipmentID] = true
	return domain.AnchorConfirmation{
		TxID:        fmt.Sprintf("mem-tx-%d", l.txSeq),
		BlockNumber: l.txSeq,
		ChainID:     "memory",
		ConfirmedAt: time.Now().UTC(),
	}, nil
}

// Delivered reports whether ConfirmDelivery ran for shipmentID.
func (l *Ledger) Delivered(shipmentID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.delivered[shipmentID]
}
