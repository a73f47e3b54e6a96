// Package realtime 把看板变更推送给订阅了该看板房间的 WebSocket 连接。
//
// 推送是尽力而为的：没有确认、没有重放，断线重连的客户端需要重新拉取完整状态。
package realtime

import (
	"context"
	"time"
)

// 服务端推送的事件名。
const (
	EventCardCreated      = "card-created"
	EventCardUpdated      = "card-updated"
	EventCardMoved        = "card-moved"
	EventCardDeleted      = "card-deleted"
	EventColumnCreated    = "column-created"
	EventColumnUpdated    = "column-updated"
	EventColumnDeleted    = "column-deleted"
	EventColumnsReordered = "columns-reordered"
	EventBoardUpdated     = "board-updated"
	EventMemberAdded      = "member-added"
	EventMemberRemoved    = "member-removed"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventPresence         = "presence"
	EventError            = "error"
)

// Actor 触发事件的用户。
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event 推送给客户端的帧。
type Event struct {
	Event     string    `json:"event"`
	BoardID   string    `json:"boardId"`
	Data      any       `json:"data,omitempty"`
	User      *Actor    `json:"user,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent 构造事件，时间戳取当前 UTC 时间。
func NewEvent(name, boardID string, data any, actor *Actor) Event {
	return Event{
		Event:     name,
		BoardID:   boardID,
		Data:      data,
		User:      actor,
		Timestamp: time.Now().UTC(),
	}
}

// Broadcaster 向看板房间广播事件。
type Broadcaster interface {
	Broadcast(ctx context.Context, ev Event)
}

// Nop 丢弃所有事件。
type Nop struct{}

func (Nop) Broadcast(context.Context, Event) {}
