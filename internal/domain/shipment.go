package domain

import (
	"context"
	"time"
)

type TransportStatus string

const (
	TransportCreated   TransportStatus = "Created"
	TransportInTransit TransportStatus = "In-Transit"
	TransportDelivered TransportStatus = "Delivered"
)

type Shipment struct {
	ID              string
	TrackingNumber  string
	SenderName      string
	ReceiverName    string
	Origin          string
	Destination     string
	DeclaredValue   float64
	TransportStatus TransportStatus
	CreatedAt       time.Time
}

type ShipmentRepository interface {
	Get(ctx context.Context, id string) (*Shipment, error)
	Create(ctx context.Context, shipment Shipment) error
	List(ctx context.Context) ([]Shipment, error)
	SetTransportStatus(ctx context.Context, id string, status TransportStatus) error
}
