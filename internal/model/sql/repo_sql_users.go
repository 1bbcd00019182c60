package sql

import (
	"context"
	"fmt"
	"strings"

	"glamshot/internal/entity"

	"gorm.io/gorm"
)

// CreateUser persists a new user row with its starting credit balance.
func (r *GormRepository) CreateUser(ctx context.Context, user *entity.DbUser) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is empty")
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUserByID loads a user by ID.
func (r *GormRepository) GetUserByID(ctx context.Context, id string) (*entity.DbUser, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, fmt.Errorf("user id is empty")
	}
	var user entity.DbUser
	if err := r.db.WithContext(ctx).Where("id = ?", trimmed).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserCredits writes the new credit balance for a user.
func (r *GormRepository) UpdateUserCredits(ctx context.Context, id string, credits int) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("user id is empty")
	}
	if credits < 0 {
		return fmt.Errorf("credits must not be negative")
	}
	result := r.db.WithContext(ctx).
		Model(&entity.DbUser{}).
		Where("id = ?", trimmed).
		Update("credits", credits)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteUser removes a user row, used only by full account deletion.
func (r *GormRepository) DeleteUser(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("user id is empty")
	}
	result := r.db.WithContext(ctx).Where("id = ?", trimmed).Delete(&entity.DbUser{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
