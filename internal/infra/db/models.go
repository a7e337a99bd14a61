package db

import "time"

type ShipmentModel struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	TrackingNumber  string    `gorm:"uniqueIndex;not null"`
	SenderName      string    `gorm:"not null"`
	ReceiverName    string    `gorm:"not null"`
	Origin          string    `gorm:"not null"`
	Destination     string    `gorm:"not null"`
	DeclaredValue   float64   `gorm:"not null"`
	TransportStatus string    `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (ShipmentModel) TableName() string { return "shipments" }

type DocumentModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Status    string `gorm:"index;not null"`
	LineItems []byte `gorm:"type:jsonb;not null"`
	ByteRef   string
	Digest    string `gorm:"not null"`
	LockedAt  *time.Time
	UpdatedAt time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }

type AuditEventModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	EventType   string    `gorm:"index;not null"`
	ActorRole   string    `gorm:"not null"`
	ActorIDHash string
	TargetID    string `gorm:"index"`
	Detail      string
	Result      string `gorm:"not null"`
	ErrorCode   string
	CreatedAt   time.Time `gorm:"index;not null"`
}

func (AuditEventModel) TableName() string { return "audit_events" }
