package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统用户。
type User struct {
	ID              string                              `gorm:"type:varchar(36);primaryKey" json:"id"`               // 用户 ID (UUID)
	Email           string                              `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"` // 邮箱（唯一，小写）
	Password        string                              `gorm:"not null" json:"-"`                                   // bcrypt 哈希
	FirstName       string                              `gorm:"type:varchar(50);not null" json:"firstName"`          // 名
	LastName        string                              `gorm:"type:varchar(50);not null" json:"lastName"`           // 姓
	Avatar          string                              `gorm:"type:varchar(500)" json:"avatar,omitempty"`           // 头像 URL
	IsEmailVerified bool                                `gorm:"not null;default:false" json:"isEmailVerified"`       // 邮箱是否已验证
	IsActive        bool                                `gorm:"not null;default:true" json:"isActive"`               // 是否启用
	Preferences     datatypes.JSONType[UserPreferences] `json:"preferences"`                                         // 偏好设置
	LastLoginAt     *time.Time                          `json:"lastLoginAt,omitempty"`                               // 最近登录时间
	CreatedAt       time.Time                           `json:"createdAt"`
	UpdatedAt       time.Time                           `json:"updatedAt"`
}

// UserPreferences 用户偏好。
type UserPreferences struct {
	Theme         string                  `json:"theme"`
	Notifications NotificationPreferences `json:"notifications"`
	Language      string                  `json:"language"`
}

// NotificationPreferences 控制各类通知是否发送。
type NotificationPreferences struct {
	Email        bool `json:"email"`
	Push         bool `json:"push"`
	CardAssigned bool `json:"cardAssigned"`
	CardDue      bool `json:"cardDue"`
	BoardInvite  bool `json:"boardInvite"`
}

// DefaultPreferences 新用户的默认偏好。
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		Theme: "light",
		Notifications: NotificationPreferences{
			Email:        true,
			Push:         true,
			CardAssigned: true,
			CardDue:      true,
			BoardInvite:  true,
		},
		Language: "en",
	}
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// FullName 返回 "名 姓"。
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NormalizeEmail 统一邮箱格式。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
