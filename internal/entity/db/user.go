package db

import "time"

// User 表示远端账本中的用户行，积分余额挂在这里。
//
// ID 来自认证服务的用户标识（字符串），不是自增主键。
// Credits 首次访问时以默认值惰性创建，扣减前必须重读最新值。
type User struct {
	ID        string    `gorm:"column:id;type:varchar(128);primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Email     string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	Credits   int       `gorm:"column:credits;not null;default:0" json:"credits"`
}

// TableName 指定表名。
func (User) TableName() string {
	return "users"
}
