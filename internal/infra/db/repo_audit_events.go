package db

import (
	"context"
	"errors"
	"time"

	"seald/internal/domain"

	"gorm.io/gorm"
)

type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if event.EventType == "" {
		return domain.AuditEvent{}, errors.New("event_type is required")
	}
	if event.ID == "" {
		id, err := newUUID()
		if err != nil {
			return domain.AuditEvent{}, err
		}
		event.ID = id
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	model := AuditEventModel{
		ID:          event.ID,
		EventType:   string(event.EventType),
		ActorRole:   event.ActorRole,
		ActorIDHash: event.ActorIDHash,
		TargetID:    event.TargetID,
		Detail:      event.Detail,
		Result:      string(event.Result),
		ErrorCode:   event.ErrorCode,
		CreatedAt:   event.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.AuditEvent{}, err
	}
	return event, nil
}

func (r *AuditEventRepository) List(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []AuditEventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		out = append(out, domain.AuditEvent{
			ID:          model.ID,
			EventType:   domain.AuditEventType(model.EventType),
			ActorRole:   model.ActorRole,
			ActorIDHash: model.ActorIDHash,
			TargetID:    model.TargetID,
			Detail:      model.Detail,
			Result:      domain.AuditResult(model.Result),
			ErrorCode:   model.ErrorCode,
			CreatedAt:   model.CreatedAt,
		})
	}
	return out, nil
}
