package usecase

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"seald/internal/domain"
)

// ShipmentService is the thin plumbing around the document engine: create a
// shipment (which creates its pending invoice document), move it through
// transport states, and record delivery on the ledger.
type ShipmentService struct {
	Shipments domain.ShipmentRepository
	Documents domain.DocumentRepository
	Ledger    domain.LedgerClient
	Audit     *AuditEmitter
	Now       func() time.Time
	NewID     func() string
}

type CreateShipmentRequest struct {
	Actor         domain.Principal
	SenderName    string
	ReceiverName  string
	Origin        string
	Destination   string
	DeclaredValue float64
}

type ShipmentSummary struct {
	Shipment       domain.Shipment
	DocumentStatus domain.InvoiceStatus
	Digest         string
}

func (s *ShipmentService) Create(ctx context.Context, req CreateShipmentRequest) (*domain.Shipment, error) {
	shipment, err := s.create(ctx, req)
	targetID := ""
	if shipment != nil {
		targetID = shipment.ID
	}
	s.Audit.Emit(ctx, domain.AuditEventShipmentCreated, req.Actor, targetID, "", err)
	return shipment, err
}

func (s *ShipmentService) create(ctx context.Context, req CreateShipmentRequest) (*domain.Shipment, error) {
	if strings.TrimSpace(req.SenderName) == "" || strings.TrimSpace(req.ReceiverName) == "" {
		return nil, fmt.Errorf("sender and receiver are required: %w", domain.ErrInvalidInput)
	}
	if req.DeclaredValue < 0 {
		return nil, fmt.Errorf("declared value must not be negative: %w", domain.ErrInvalidInput)
	}

	shipment := domain.Shipment{
		ID:              s.newID(),
		TrackingNumber:  trackingNumber(),
		SenderName:      req.SenderName,
		ReceiverName:    req.ReceiverName,
		Origin:          req.Origin,
		Destination:     req.Destination,
		DeclaredValue:   req.DeclaredValue,
		TransportStatus: domain.TransportCreated,
		CreatedAt:       s.now(),
	}
	if err := s.Shipments.Create(ctx, shipment); err != nil {
		return nil, err
	}
	doc := domain.ShipmentDocument{
		ID:     shipment.ID,
		Status: domain.StatusPending,
		Digest: domain.PendingLock,
	}
	if err := s.Documents.Create(ctx, doc); err != nil {
		return nil, err
	}
	return &shipment, nil
}

// List joins every shipment with its invoice document's status and digest.
func (s *ShipmentService) List(ctx context.Context) ([]ShipmentSummary, error) {
	shipments, err := s.Shipments.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ShipmentSummary, 0, len(shipments))
	for _, shipment := range shipments {
		summary := ShipmentSummary{Shipment: shipment}
		if doc, err := s.Documents.Get(ctx, shipment.ID); err == nil {
			summary.DocumentStatus = doc.Status
			summary.Digest = doc.Digest
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *ShipmentService) Get(ctx context.Context, id string) (*domain.Shipment, error) {
	return s.Shipments.Get(ctx, id)
}

func (s *ShipmentService) Dispatch(ctx context.Context, id string, actor domain.Principal) (*domain.Shipment, error) {
	shipment, err := s.dispatch(ctx, id)
	s.Audit.Emit(ctx, domain.AuditEventShipmentDispatched, actor, id, "", err)
	return shipment, err
}

func (s *ShipmentService) dispatch(ctx context.Context, id string) (*domain.Shipment, error) {
	shipment, err := s.Shipments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipment.TransportStatus != domain.TransportCreated {
		return nil, fmt.Errorf("dispatch requires a created shipment, have %s: %w", shipment.TransportStatus, domain.ErrInvalidState)
	}
	if err := s.Shipments.SetTransportStatus(ctx, id, domain.TransportInTransit); err != nil {
		return nil, err
	}
	return s.Shipments.Get(ctx, id)
}

// ConfirmDelivery records delivery on the ledger first, then locally. A
// ledger failure leaves the shipment In-Transit.
func (s *ShipmentService) ConfirmDelivery(ctx context.Context, id string, actor domain.Principal) (*domain.Shipment, error) {
	shipment, err := s.confirmDelivery(ctx, id)
	s.Audit.Emit(ctx, domain.AuditEventShipmentDelivered, actor, id, "", err)
	return shipment, err
}

func (s *ShipmentService) confirmDelivery(ctx context.Context, id string) (*domain.Shipment, error) {
	shipment, err := s.Shipments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipment.TransportStatus != domain.TransportInTransit {
		return nil, fmt.Errorf("delivery requires an in-transit shipment, have %s: %w", shipment.TransportStatus, domain.ErrInvalidState)
	}
	if _, err := s.Ledger.ConfirmDelivery(ctx, id); err != nil {
		return nil, err
	}
	if err := s.Shipments.SetTransportStatus(ctx, id, domain.TransportDelivered); err != nil {
		return nil, err
	}
	return s.Shipments.Get(ctx, id)
}

func (s *ShipmentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *ShipmentService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return randomUUID()
}

func randomUUID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

func trackingNumber() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	n := binary.BigEndian.Uint32(b[:]) % 1000000
	return fmt.Sprintf("TRK-%06d", n)
}
