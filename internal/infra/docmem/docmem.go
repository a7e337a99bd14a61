package docmem

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"seald/internal/domain"
)

// Store keeps shipments, documents and audit events in process memory. It
// backs the service when POSTGRES_DSN is unset and the unit tests.
type Store struct {
	mu        sync.RWMutex
	shipments map[string]domain.Shipment
	documents map[string]domain.ShipmentDocument
	audit     []domain.AuditEvent
	auditSeq  int64
}

func New() *Store {
	return &Store{
		shipments: make(map[string]domain.Shipment),
		documents: make(map[string]domain.ShipmentDocument),
	}
}

func (s *Store) Get(ctx context.Context, id string) (*domain.ShipmentDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneDocument(doc)
	return &out, nil
}

func (s *Store) Create(ctx context.Context, doc domain.ShipmentDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[doc.ID]; exists {
		return domain.ErrInvalidState
	}
	doc.UpdatedAt = time.Now().UTC()
	s.documents[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *Store) SaveDraft(ctx context.Context, doc domain.ShipmentDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.documents[doc.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status != domain.StatusPending && current.Status != domain.StatusDraft {
		return domain.ErrInvalidState
	}
	doc.UpdatedAt = time.Now().UTC()
	s.documents[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *Store) MarkApproved(ctx context.Context, id string, fromStatus domain.InvoiceStatus, byteRef, digest string, lockedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status != fromStatus {
		return domain.ErrInvalidState
	}
	current.Status = domain.StatusApproved
	current.ByteRef = byteRef
	current.Digest = digest
	locked := lockedAt.UTC()
	current.LockedAt = &locked
	current.UpdatedAt = time.Now().UTC()
	s.documents[id] = current
	return nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status domain.InvoiceStatus, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	current.Status = status
	current.Digest = digest
	if status != domain.StatusApproved {
		current.LockedAt = nil
	}
	current.UpdatedAt = time.Now().UTC()
	s.documents[id] = current
	return nil
}

func (s *Store) GetShipment(ctx context.Context, id string) (*domain.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shipment, ok := s.shipments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &shipment, nil
}

func (s *Store) CreateShipment(ctx context.Context, shipment domain.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.shipments[shipment.ID]; exists {
		return domain.ErrInvalidState
	}
	if shipment.CreatedAt.IsZero() {
		shipment.CreatedAt = time.Now().UTC()
	}
	s.shipments[shipment.ID] = shipment
	return nil
}

func (s *Store) ListShipments(ctx context.Context) ([]domain.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Shipment, 0, len(s.shipments))
	for _, shipment := range s.shipments {
		out = append(out, shipment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetTransportStatus(ctx context.Context, id string, status domain.TransportStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	shipment, ok := s.shipments[id]
	if !ok {
		return domain.ErrNotFound
	}
	shipment.TransportStatus = status
	s.shipments[id] = shipment
	return nil
}

func (s *Store) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditSeq++
	if event.ID == "" {
		event.ID = auditID(s.auditSeq)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.audit = append(s.audit, event)
	return event, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEvent, len(s.audit))
	copy(out, s.audit)
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Shipments exposes the store through the shipment repository interface.
// The method names on Store itself would otherwise collide with the
// document repository's.
func (s *Store) Shipments() domain.ShipmentRepository { return shipmentView{s} }

type shipmentView struct{ s *Store }

func (v shipmentView) Get(ctx context.Context, id string) (*domain.Shipment, error) {
	return v.s.GetShipment(ctx, id)
}

func (v shipmentView) Create(ctx context.Context, shipment domain.Shipment) error {
	return v.s.CreateShipment(ctx, shipment)
}

func (v shipmentView) List(ctx context.Context) ([]domain.Shipment, error) {
	return v.s.ListShipments(ctx)
}

func (v shipmentView) SetTransportStatus(ctx context.Context, id string, status domain.TransportStatus) error {
	return v.s.SetTransportStatus(ctx, id, status)
}

func cloneDocument(doc domain.ShipmentDocument) domain.ShipmentDocument {
	out := doc
	out.LineItems = append([]domain.LineItem(nil), doc.LineItems...)
	if doc.LockedAt != nil {
		locked := *doc.LockedAt
		out.LockedAt = &locked
	}
	return out
}

func auditID(seq int64) string {
	return "audit-" + strconv.FormatInt(seq, 10)
}
