package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"seald/internal/domain"

	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (*domain.ShipmentDocument, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model DocumentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return documentFromModel(model)
}

func (r *DocumentRepository) Create(ctx context.Context, doc domain.ShipmentDocument) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := documentToModel(doc)
	if err != nil {
		return err
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *DocumentRepository) SaveDraft(ctx context.Context, doc domain.ShipmentDocument) error {
	if r.db == nil {
		return errDBUnavailable
	}
	items, err := json.Marshal(doc.LineItems)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&DocumentModel{}).
		Where("id = ? AND status IN ?", doc.ID, []string{string(domain.StatusPending), string(domain.StatusDraft)}).
		Updates(map[string]any{
			"status":     string(doc.Status),
			"line_items": items,
			"byte_ref":   doc.ByteRef,
			"digest":     doc.Digest,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyMiss(ctx, doc.ID)
	}
	return nil
}

// MarkApproved is the commit point of an approve: a compare-and-set on
// status so two racing approvals cannot both advance the record.
func (r *DocumentRepository) MarkApproved(ctx context.Context, id string, fromStatus domain.InvoiceStatus, byteRef, digest string, lockedAt time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).Model(&DocumentModel{}).
		Where("id = ? AND status = ?", id, string(fromStatus)).
		Updates(map[string]any{
			"status":     string(domain.StatusApproved),
			"byte_ref":   byteRef,
			"digest":     digest,
			"locked_at":  lockedAt.UTC(),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyMiss(ctx, id)
	}
	return nil
}

func (r *DocumentRepository) SetStatus(ctx context.Context, id string, status domain.InvoiceStatus, digest string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	updates := map[string]any{
		"status":     string(status),
		"digest":     digest,
		"updated_at": time.Now().UTC(),
	}
	if status != domain.StatusApproved {
		updates["locked_at"] = nil
	}
	result := r.db.WithContext(ctx).Model(&DocumentModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) classifyMiss(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&DocumentModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidState
}

func documentToModel(doc domain.ShipmentDocument) (DocumentModel, error) {
	items, err := json.Marshal(doc.LineItems)
	if err != nil {
		return DocumentModel{}, err
	}
	return DocumentModel{
		ID:        doc.ID,
		Status:    string(doc.Status),
		LineItems: items,
		ByteRef:   doc.ByteRef,
		Digest:    doc.Digest,
		LockedAt:  doc.LockedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func documentFromModel(model DocumentModel) (*domain.ShipmentDocument, error) {
	var items []domain.LineItem
	if len(model.LineItems) > 0 {
		if err := json.Unmarshal(model.LineItems, &items); err != nil {
			return nil, err
		}
	}
	return &domain.ShipmentDocument{
		ID:        model.ID,
		Status:    domain.InvoiceStatus(model.Status),
		LineItems: items,
		ByteRef:   model.ByteRef,
		Digest:    model.Digest,
		LockedAt:  model.LockedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}
