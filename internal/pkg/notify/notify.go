package notify

import (
	"context"

	"kanbanhub/internal/model"
)

// Notifier 定义通知接口。
type Notifier interface {
	// Welcome 注册成功后的欢迎邮件。
	Welcome(ctx context.Context, user *model.User) error
	// CardAssigned 卡片分配给 Assignee 时通知对方。
	CardAssigned(ctx context.Context, n CardAssignment) error
	// BoardInvitation 被加入看板时通知对方。
	BoardInvitation(ctx context.Context, n BoardInvitation) error
	// DueDateReminder 卡片即将到期提醒。
	DueDateReminder(ctx context.Context, n DueReminder) error
}

// CardAssignment 卡片分配通知。
type CardAssignment struct {
	Assignee   *model.User
	AssignedBy *model.User
	Card       *model.Card
	Board      *model.Board
}

// BoardInvitation 看板邀请通知。
type BoardInvitation struct {
	Invitee   *model.User
	InvitedBy *model.User
	Board     *model.Board
	Role      model.Role
}

// DueReminder 到期提醒。
type DueReminder struct {
	User  *model.User
	Card  *model.Card
	Board *model.Board
}

// Kind 通知类别，用于指标与偏好判断。
type Kind string

const (
	KindWelcome    Kind = "welcome"
	KindAssignment Kind = "card_assigned"
	KindInvitation Kind = "board_invitation"
	KindDueDate    Kind = "due_date"
)

// Wants 判断用户偏好是否允许发送该类邮件。
func Wants(user *model.User, kind Kind) bool {
	if user == nil || user.Email == "" {
		return false
	}
	prefs := user.Preferences.Data().Notifications
	switch kind {
	case KindWelcome:
		return true
	case KindAssignment:
		return prefs.Email && prefs.CardAssigned
	case KindInvitation:
		return prefs.Email && prefs.BoardInvite
	case KindDueDate:
		return prefs.Email && prefs.CardDue
	}
	return false
}

// Nop 不发送任何通知。
type Nop struct{}

func (Nop) Welcome(context.Context, *model.User) error             { return nil }
func (Nop) CardAssigned(context.Context, CardAssignment) error     { return nil }
func (Nop) BoardInvitation(context.Context, BoardInvitation) error { return nil }
func (Nop) DueDateReminder(context.Context, DueReminder) error     { return nil }
