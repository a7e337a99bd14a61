package db

import (
	"context"
	"errors"
	"time"

	"seald/internal/domain"

	"gorm.io/gorm"
)

type ShipmentRepository struct {
	db *gorm.DB
}

func NewShipmentRepository(db *gorm.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

func (r *ShipmentRepository) Get(ctx context.Context, id string) (*domain.Shipment, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ShipmentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	shipment := shipmentFromModel(model)
	return &shipment, nil
}

func (r *ShipmentRepository) Create(ctx context.Context, shipment domain.Shipment) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := ShipmentModel{
		ID:              shipment.ID,
		TrackingNumber:  shipment.TrackingNumber,
		SenderName:      shipment.SenderName,
		ReceiverName:    shipment.ReceiverName,
		Origin:          shipment.Origin,
		Destination:     shipment.Destination,
		DeclaredValue:   shipment.DeclaredValue,
		TransportStatus: string(shipment.TransportStatus),
		CreatedAt:       shipment.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ShipmentRepository) List(ctx context.Context) ([]domain.Shipment, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []ShipmentModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Shipment, 0, len(models))
	for _, model := range models {
		out = append(out, shipmentFromModel(model))
	}
	return out, nil
}

func (r *ShipmentRepository) SetTransportStatus(ctx context.Context, id string, status domain.TransportStatus) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).Model(&ShipmentModel{}).
		Where("id = ?", id).
		Update("transport_status", string(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func shipmentFromModel(model ShipmentModel) domain.Shipment {
	return domain.Shipment{
		ID:              model.ID,
		TrackingNumber:  model.TrackingNumber,
		SenderName:      model.SenderName,
		ReceiverName:    model.ReceiverName,
		Origin:          model.Origin,
		Destination:     model.Destination,
		DeclaredValue:   model.DeclaredValue,
		TransportStatus: domain.TransportStatus(model.TransportStatus),
		CreatedAt:       model.CreatedAt,
	}
}
