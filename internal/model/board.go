package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultBoardColor  = "#3B82F6"
	DefaultColumnColor = "#6B7280"
)

// Board 看板，拥有若干列。
//
// 删除为软删除（IsArchived），所有者由 OwnerID 决定。
type Board struct {
	ID              string                            `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name            string                            `gorm:"type:varchar(100);not null" json:"name"`
	Description     string                            `gorm:"type:text" json:"description"`
	Color           string                            `gorm:"type:varchar(7);not null" json:"color"`
	BackgroundImage string                            `gorm:"type:varchar(500)" json:"backgroundImage,omitempty"`
	IsPublic        bool                              `gorm:"not null;default:false" json:"isPublic"`
	IsArchived      bool                              `gorm:"not null;default:false;index" json:"isArchived"`
	Settings        datatypes.JSONType[BoardSettings] `json:"settings"`
	Position        int                               `gorm:"not null;default:0" json:"position"` // 在用户看板列表中的顺序
	OwnerID         string                            `gorm:"type:varchar(36);not null;index" json:"ownerId"`
	LastActivityAt  *time.Time                        `json:"lastActivityAt,omitempty"`
	CreatedAt       time.Time                         `json:"createdAt"`
	UpdatedAt       time.Time                         `json:"updatedAt"`

	Owner   *User    `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Columns []Column `gorm:"foreignKey:BoardID" json:"columns,omitempty"`
}

// BoardSettings 看板功能开关。
type BoardSettings struct {
	AllowComments    bool `json:"allowComments"`
	AllowAttachments bool `json:"allowAttachments"`
	AllowLabels      bool `json:"allowLabels"`
	AllowChecklists  bool `json:"allowChecklists"`
	AllowDueDates    bool `json:"allowDueDates"`
	AllowVoting      bool `json:"allowVoting"`
	CardCover        bool `json:"cardCover"`
	CardNumbering    bool `json:"cardNumbering"`
	AutoArchive      bool `json:"autoArchive"`
	AutoArchiveDays  int  `json:"autoArchiveDays"`
}

// DefaultBoardSettings 新看板的默认设置。
func DefaultBoardSettings() BoardSettings {
	return BoardSettings{
		AllowComments:    true,
		AllowAttachments: true,
		AllowLabels:      true,
		AllowChecklists:  true,
		AllowDueDates:    true,
		CardCover:        true,
		AutoArchiveDays:  30,
	}
}

func (b *Board) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Color == "" {
		b.Color = DefaultBoardColor
	}
	return nil
}

// BoardMember 用户与看板的成员关系，(board_id, user_id) 唯一。
type BoardMember struct {
	ID          string                          `gorm:"type:varchar(36);primaryKey" json:"id"`
	BoardID     string                          `gorm:"type:varchar(36);not null;uniqueIndex:idx_board_user" json:"boardId"`
	UserID      string                          `gorm:"type:varchar(36);not null;uniqueIndex:idx_board_user;index" json:"userId"`
	Role        Role                            `gorm:"type:varchar(16);not null;default:member" json:"role"`
	Permissions datatypes.JSONType[Permissions] `json:"permissions"`
	JoinedAt    time.Time                       `json:"joinedAt"`
	IsActive    bool                            `gorm:"not null;default:true" json:"isActive"`
	LastSeenAt  *time.Time                      `json:"lastSeenAt,omitempty"`
	InvitedByID *string                         `gorm:"type:varchar(36)" json:"invitedById,omitempty"`
	CreatedAt   time.Time                       `json:"createdAt"`
	UpdatedAt   time.Time                       `json:"updatedAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (m *BoardMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	return nil
}

// Can 判断成员是否具备能力 c，owner/admin 角色不查表。
func (m *BoardMember) Can(c Capability) bool {
	if m == nil || !m.IsActive {
		return false
	}
	if m.Role.Wildcard() {
		return true
	}
	return m.Permissions.Data().Allows(c)
}
