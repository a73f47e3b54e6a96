package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Column 看板中的列，Position 为同一看板内的排序键。
type Column struct {
	ID          string                             `gorm:"type:varchar(36);primaryKey" json:"id"`
	BoardID     string                             `gorm:"type:varchar(36);not null;index" json:"boardId"`
	Name        string                             `gorm:"type:varchar(100);not null" json:"name"`
	Description string                             `gorm:"type:text" json:"description"`
	Color       string                             `gorm:"type:varchar(7);not null" json:"color"`
	Position    int                                `gorm:"not null;default:0;index" json:"position"`
	IsCollapsed bool                               `gorm:"not null;default:false" json:"isCollapsed"`
	CardLimit   *int                               `json:"cardLimit,omitempty"` // nil 表示不限
	Settings    datatypes.JSONType[ColumnSettings] `json:"settings"`
	IsArchived  bool                               `gorm:"not null;default:false;index" json:"isArchived"`
	CreatedAt   time.Time                          `json:"createdAt"`
	UpdatedAt   time.Time                          `json:"updatedAt"`

	Cards []Card `gorm:"foreignKey:ColumnID" json:"cards,omitempty"`
}

// TableName columns 是 MySQL 关键字，使用 board_columns。
func (Column) TableName() string {
	return "board_columns"
}

// ColumnSettings 列配置。
type ColumnSettings struct {
	AllowNewCards     bool `json:"allowNewCards"`
	AllowCardMovement bool `json:"allowCardMovement"`
	AllowCardDeletion bool `json:"allowCardDeletion"`
	ShowCardCount     bool `json:"showCardCount"`
	ShowProgress      bool `json:"showProgress"`
	AutoArchive       bool `json:"autoArchive"`
	AutoArchiveDays   int  `json:"autoArchiveDays"`
}

// DefaultColumnSettings 新列的默认设置。
func DefaultColumnSettings() ColumnSettings {
	return ColumnSettings{
		AllowNewCards:     true,
		AllowCardMovement: true,
		AllowCardDeletion: true,
		ShowCardCount:     true,
		AutoArchiveDays:   30,
	}
}

func (c *Column) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Color == "" {
		c.Color = DefaultColumnColor
	}
	return nil
}

// AcceptsCard 判断在已有 current 张卡片时能否再新增一张。
func (c *Column) AcceptsCard(current int64) bool {
	if !c.Settings.Data().AllowNewCards {
		return false
	}
	if c.CardLimit != nil && current >= int64(*c.CardLimit) {
		return false
	}
	return true
}
