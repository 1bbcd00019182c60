package sql

import (
	"context"
	"fmt"
	"strings"

	"glamshot/internal/entity"

	"gorm.io/gorm"
)

const maxListLimit = 50

// CreateGeneratedImage persists a new ledger entry.
func (r *GormRepository) CreateGeneratedImage(ctx context.Context, record *entity.DbGeneratedImage) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("record id is empty")
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// ListGeneratedImages returns the most recent ledger entries for an owner,
// newest first. The limit is clamped to a bounded window.
func (r *GormRepository) ListGeneratedImages(ctx context.Context, ownerID string, limit int) ([]entity.DbGeneratedImage, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(ownerID)
	if trimmed == "" {
		return nil, fmt.Errorf("owner id is empty")
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var records []entity.DbGeneratedImage
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", trimmed).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteGeneratedImage removes a ledger entry scoped to its owner.
func (r *GormRepository) DeleteGeneratedImage(ctx context.Context, id, ownerID string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("record id is empty")
	}
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", strings.TrimSpace(id), strings.TrimSpace(ownerID)).
		Delete(&entity.DbGeneratedImage{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
