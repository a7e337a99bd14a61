package domain

import (
	"context"
	"time"
)

type AuditEventType string

const (
	AuditEventShipmentCreated    AuditEventType = "shipment_created"
	AuditEventShipmentDispatched AuditEventType = "shipment_dispatched"
	AuditEventShipmentDelivered  AuditEventType = "shipment_delivered"
	AuditEventDocumentDrafted    AuditEventType = "document_drafted"
	AuditEventDocumentApproved   AuditEventType = "document_approved"
	AuditEventDocumentRejected   AuditEventType = "document_rejected"
	AuditEventDocumentReset      AuditEventType = "document_reset"
	AuditEventDemoTampered       AuditEventType = "demo_tampered"
	AuditEventDemoRestored       AuditEventType = "demo_restored"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

type AuditEvent struct {
	ID          string
	EventType   AuditEventType
	ActorRole   string
	ActorIDHash string
	TargetID    string
	Detail      string
	Result      AuditResult
	ErrorCode   string
	CreatedAt   time.Time
}

type AuditEventRepository interface {
	Append(ctx context.Context, event AuditEvent) (AuditEvent, error)
	List(ctx context.Context, limit int) ([]AuditEvent, error)
}
