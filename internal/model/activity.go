package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityType 活动类型（封闭集合）。
type ActivityType string

const (
	ActivityBoardCreated      ActivityType = "board_created"
	ActivityBoardUpdated      ActivityType = "board_updated"
	ActivityBoardArchived     ActivityType = "board_archived"
	ActivityBoardRestored     ActivityType = "board_restored"
	ActivityBoardDeleted      ActivityType = "board_deleted"
	ActivityColumnCreated     ActivityType = "column_created"
	ActivityColumnUpdated     ActivityType = "column_updated"
	ActivityColumnArchived    ActivityType = "column_archived"
	ActivityColumnRestored    ActivityType = "column_restored"
	ActivityColumnDeleted     ActivityType = "column_deleted"
	ActivityCardCreated       ActivityType = "card_created"
	ActivityCardUpdated       ActivityType = "card_updated"
	ActivityCardMoved         ActivityType = "card_moved"
	ActivityCardArchived      ActivityType = "card_archived"
	ActivityCardRestored      ActivityType = "card_restored"
	ActivityCardDeleted       ActivityType = "card_deleted"
	ActivityCardAssigned      ActivityType = "card_assigned"
	ActivityCardUnassigned    ActivityType = "card_unassigned"
	ActivityCardCompleted     ActivityType = "card_completed"
	ActivityCardReopened      ActivityType = "card_reopened"
	ActivityCommentAdded      ActivityType = "comment_added"
	ActivityCommentUpdated    ActivityType = "comment_updated"
	ActivityCommentDeleted    ActivityType = "comment_deleted"
	ActivityAttachmentAdded   ActivityType = "attachment_added"
	ActivityAttachmentRemoved ActivityType = "attachment_removed"
	ActivityChecklistAdded    ActivityType = "checklist_added"
	ActivityChecklistUpdated  ActivityType = "checklist_updated"
	ActivityChecklistDeleted  ActivityType = "checklist_deleted"
	ActivityLabelAdded        ActivityType = "label_added"
	ActivityLabelRemoved      ActivityType = "label_removed"
	ActivityVoteAdded         ActivityType = "vote_added"
	ActivityVoteRemoved       ActivityType = "vote_removed"
	ActivityMemberAdded       ActivityType = "member_added"
	ActivityMemberRemoved     ActivityType = "member_removed"
	ActivityMemberRoleChanged ActivityType = "member_role_changed"
	ActivityDueDateSet        ActivityType = "due_date_set"
	ActivityDueDateUpdated    ActivityType = "due_date_updated"
	ActivityDueDateRemoved    ActivityType = "due_date_removed"
)

var activityTypes = map[ActivityType]struct{}{
	ActivityBoardCreated: {}, ActivityBoardUpdated: {}, ActivityBoardArchived: {}, ActivityBoardRestored: {}, ActivityBoardDeleted: {},
	ActivityColumnCreated: {}, ActivityColumnUpdated: {}, ActivityColumnArchived: {}, ActivityColumnRestored: {}, ActivityColumnDeleted: {},
	ActivityCardCreated: {}, ActivityCardUpdated: {}, ActivityCardMoved: {}, ActivityCardArchived: {}, ActivityCardRestored: {},
	ActivityCardDeleted: {}, ActivityCardAssigned: {}, ActivityCardUnassigned: {}, ActivityCardCompleted: {}, ActivityCardReopened: {},
	ActivityCommentAdded: {}, ActivityCommentUpdated: {}, ActivityCommentDeleted: {},
	ActivityAttachmentAdded: {}, ActivityAttachmentRemoved: {},
	ActivityChecklistAdded: {}, ActivityChecklistUpdated: {}, ActivityChecklistDeleted: {},
	ActivityLabelAdded: {}, ActivityLabelRemoved: {},
	ActivityVoteAdded: {}, ActivityVoteRemoved: {},
	ActivityMemberAdded: {}, ActivityMemberRemoved: {}, ActivityMemberRoleChanged: {},
	ActivityDueDateSet: {}, ActivityDueDateUpdated: {}, ActivityDueDateRemoved: {},
}

// Valid 判断类型是否在封闭集合中。
func (t ActivityType) Valid() bool {
	_, ok := activityTypes[t]
	return ok
}

// ErrActivityImmutable 活动日志只允许追加。
var ErrActivityImmutable = errors.New("activity rows are append-only")

// Activity 只追加的审计日志。
//
// 外键均可为空且不级联，父记录删除后日志保留。
type Activity struct {
	ID          string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	Type        ActivityType      `gorm:"type:varchar(40);not null;index" json:"type"`
	Description string            `gorm:"type:text;not null" json:"description"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	IsSystem    bool              `gorm:"not null;default:false" json:"isSystem"`
	IsVisible   bool              `gorm:"not null;default:true" json:"isVisible"`
	UserID      *string           `gorm:"type:varchar(36);index" json:"userId,omitempty"`
	BoardID     *string           `gorm:"type:varchar(36);index" json:"boardId,omitempty"`
	ColumnID    *string           `gorm:"type:varchar(36);index" json:"columnId,omitempty"`
	CardID      *string           `gorm:"type:varchar(36);index" json:"cardId,omitempty"`
	CreatedAt   time.Time         `gorm:"index" json:"createdAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Metadata == nil {
		a.Metadata = datatypes.JSONMap{}
	}
	return nil
}

func (a *Activity) BeforeUpdate(tx *gorm.DB) error {
	return ErrActivityImmutable
}

func (a *Activity) BeforeDelete(tx *gorm.DB) error {
	return ErrActivityImmutable
}
