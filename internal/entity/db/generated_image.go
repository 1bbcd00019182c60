package db

import "time"

// GeneratedImage 是云端账本中的一条生成记录元数据。
//
// ObjectKey 指向对象存储里的持久 blob，与任何限时签名 URL 无关；
// 客户端同步时以它为准补齐本地缓存缺失的记录。
type GeneratedImage struct {
	ID        string    `gorm:"column:id;type:varchar(64);primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID   string `gorm:"column:owner_id;type:varchar(128);index;not null" json:"owner_id"`
	ObjectKey string `gorm:"column:image_url;type:varchar(512);not null" json:"image_url"`
	Prompt    string `gorm:"column:prompt;type:text" json:"prompt"`
}

// TableName 指定表名。
func (GeneratedImage) TableName() string {
	return "generated_images"
}
