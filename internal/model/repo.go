package model

import (
	"context"

	"glamshot/internal/entity"
)

// Repository 定义云端账本的数据库操作接口
type Repository interface {
	// 生成记录账本
	CreateGeneratedImage(ctx context.Context, record *entity.DbGeneratedImage) error
	ListGeneratedImages(ctx context.Context, ownerID string, limit int) ([]entity.DbGeneratedImage, error)
	DeleteGeneratedImage(ctx context.Context, id, ownerID string) error

	// 用户与积分
	CreateUser(ctx context.Context, user *entity.DbUser) error
	GetUserByID(ctx context.Context, id string) (*entity.DbUser, error)
	UpdateUserCredits(ctx context.Context, id string, credits int) error
	DeleteUser(ctx context.Context, id string) error
}
