package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Priority 卡片优先级。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Card 列中的卡片。
//
// BoardID 冗余保存，必须始终等于所属列的 BoardID。
type Card struct {
	ID          string                           `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title       string                           `gorm:"type:varchar(200);not null" json:"title"`
	Description string                           `gorm:"type:text" json:"description"`
	Position    int                              `gorm:"not null;default:0;index" json:"position"`
	CoverImage  string                           `gorm:"type:varchar(500)" json:"coverImage,omitempty"`
	CoverColor  string                           `gorm:"type:varchar(7)" json:"coverColor,omitempty"`
	DueDate     *time.Time                       `gorm:"index" json:"dueDate,omitempty"`
	IsCompleted bool                             `gorm:"not null;default:false" json:"isCompleted"`
	CompletedAt *time.Time                       `json:"completedAt,omitempty"`
	IsArchived  bool                             `gorm:"not null;default:false;index" json:"isArchived"`
	Priority    Priority                         `gorm:"type:varchar(16);not null;default:medium" json:"priority"`
	Labels      datatypes.JSONSlice[Label]       `json:"labels"`
	Attachments datatypes.JSONSlice[Attachment]  `json:"attachments"`
	Checklists  datatypes.JSONSlice[Checklist]   `json:"checklists"`
	Votes       datatypes.JSONType[Votes]        `json:"votes"`
	Comments    datatypes.JSONSlice[Comment]     `json:"comments"`
	Watchers    datatypes.JSONSlice[string]      `json:"watchers"`
	Metadata    datatypes.JSONType[CardMetadata] `json:"metadata"`
	ColumnID    string                           `gorm:"type:varchar(36);not null;index" json:"columnId"`
	BoardID     string                           `gorm:"type:varchar(36);not null;index" json:"boardId"`
	CreatedAt   time.Time                        `json:"createdAt"`
	UpdatedAt   time.Time                        `json:"updatedAt"`

	Assignments []CardAssignment `gorm:"foreignKey:CardID" json:"assignees,omitempty"`
}

// Label 卡片标签。
type Label struct {
	ID    string `json:"id" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Color string `json:"color" binding:"required,hexcolor6"`
}

// Attachment 卡片附件（只保存元信息）。
type Attachment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	UploadedBy string    `json:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Checklist 检查清单。
type Checklist struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Items []ChecklistItem `json:"items"`
}

type ChecklistItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Votes 投票计数与投票人。
type Votes struct {
	Count  int      `json:"count"`
	Voters []string `json:"voters"`
}

// Comment 内嵌评论。
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// CardMetadata 卡片附加信息。
type CardMetadata struct {
	TimeSpent     int            `json:"timeSpent"`
	EstimatedTime int            `json:"estimatedTime"`
	StoryPoints   *int           `json:"storyPoints"`
	Tags          []string       `json:"tags"`
	CustomFields  map[string]any `json:"customFields"`
}

func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
	if c.Labels == nil {
		c.Labels = datatypes.JSONSlice[Label]{}
	}
	if c.Attachments == nil {
		c.Attachments = datatypes.JSONSlice[Attachment]{}
	}
	if c.Checklists == nil {
		c.Checklists = datatypes.JSONSlice[Checklist]{}
	}
	if c.Comments == nil {
		c.Comments = datatypes.JSONSlice[Comment]{}
	}
	if c.Watchers == nil {
		c.Watchers = datatypes.JSONSlice[string]{}
	}
	votes := c.Votes.Data()
	if votes.Voters == nil {
		votes.Voters = []string{}
		c.Votes = datatypes.NewJSONType(votes)
	}
	meta := c.Metadata.Data()
	if meta.Tags == nil || meta.CustomFields == nil {
		if meta.Tags == nil {
			meta.Tags = []string{}
		}
		if meta.CustomFields == nil {
			meta.CustomFields = map[string]any{}
		}
		c.Metadata = datatypes.NewJSONType(meta)
	}
	return nil
}

// IsOverdue 截止日期已过且未完成。
func (c *Card) IsOverdue(now time.Time) bool {
	return c.DueDate != nil && !c.IsCompleted && c.DueDate.Before(now)
}

// AssignmentRole 卡片分配角色。
type AssignmentRole string

const (
	AssignmentAssignee AssignmentRole = "assignee"
	AssignmentReviewer AssignmentRole = "reviewer"
	AssignmentWatcher  AssignmentRole = "watcher"
)

// CardAssignment 用户与卡片的分配关系，(card_id, user_id, role) 唯一。
type CardAssignment struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CardID       string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_card_user_role" json:"cardId"`
	UserID       string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_card_user_role;index" json:"userId"`
	Role         AssignmentRole `gorm:"type:varchar(16);not null;default:assignee;uniqueIndex:idx_card_user_role" json:"role"`
	AssignedAt   time.Time      `json:"assignedAt"`
	AssignedByID *string        `gorm:"type:varchar(36)" json:"assignedById,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (a *CardAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Role == "" {
		a.Role = AssignmentAssignee
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now()
	}
	return nil
}
