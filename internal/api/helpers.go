package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kanbanhub/internal/activity"
	"kanbanhub/internal/api/middleware"
	"kanbanhub/internal/api/response"
	"kanbanhub/internal/apperr"
	"kanbanhub/internal/model"
	"kanbanhub/internal/permission"
	"kanbanhub/internal/realtime"
	"kanbanhub/internal/store"

	"github.com/gin-gonic/gin"
)

// membershipView 当前用户在看板上的角色与有效权限。
type membershipView struct {
	Role        model.Role        `json:"role"`
	Permissions model.Permissions `json:"permissions"`
	JoinedAt    *time.Time        `json:"joinedAt,omitempty"`
}

func newMembershipView(role model.Role, m *model.BoardMember) *membershipView {
	v := &membershipView{Role: role}
	if m != nil {
		v.Permissions = m.Permissions.Data()
		joined := m.JoinedAt
		v.JoinedAt = &joined
	}
	if role.Wildcard() {
		v.Permissions = model.AllPermissions()
	}
	return v
}

func decisionView(d *permission.Decision) *membershipView {
	if d == nil {
		return nil
	}
	return newMembershipView(d.Role(), d.Membership)
}

// actor 返回广播中携带的操作者。
func actor(c *gin.Context) *realtime.Actor {
	u := middleware.CurrentUser(c)
	if u == nil {
		return nil
	}
	return &realtime.Actor{ID: u.ID, Name: u.FullName()}
}

// record 以当前用户身份记录活动。
func (s *Server) record(c *gin.Context, e activity.Entry) {
	if e.UserID == "" {
		e.UserID = middleware.UserID(c)
	}
	s.activity.Record(c.Request.Context(), e)
}

// broadcast 向看板房间发送事件。
func (s *Server) broadcast(c *gin.Context, name, boardID string, data any) {
	s.events.Broadcast(c.Request.Context(), realtime.NewEvent(name, boardID, data, actor(c)))
}

// touchBoard 更新看板的 lastActivityAt，失败只记日志。
func (s *Server) touchBoard(ctx context.Context, boardID string) {
	if boardID == "" {
		return
	}
	if err := s.store.TouchBoard(ctx, boardID, time.Now()); err != nil {
		s.logger.Warn("touch board failed",
			slog.String("board_id", boardID),
			slog.String("error", err.Error()),
		)
	}
}

// loadCard 加载 cardId 参数对应的卡片。
// 权限中间件未能定位看板时，在这里按卡片所属看板补做检查。
func (s *Server) loadCard(c *gin.Context, capability model.Capability) (*model.Card, *permission.Decision, bool) {
	card, err := s.store.CardByID(c.Request.Context(), c.Param("cardId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("Card not found"))
			return nil, nil, false
		}
		response.Fail(c, fmt.Errorf("load card: %w", err))
		return nil, nil, false
	}

	d, ok := s.authorizeBoard(c, card.BoardID, capability)
	if !ok {
		return nil, nil, false
	}
	return card, d, true
}

// authorizeBoard 确认中间件的结果针对的是 boardID，否则对 boardID 重新检查。
func (s *Server) authorizeBoard(c *gin.Context, boardID string, capability model.Capability) (*permission.Decision, bool) {
	d := middleware.Decision(c)
	if d != nil && !d.Deferred && d.BoardID == boardID {
		return d, true
	}
	d, err := s.resolver.Authorize(c.Request.Context(), middleware.UserID(c), boardID, capability)
	if err != nil {
		response.Fail(c, err)
		return nil, false
	}
	return d, true
}

// loadColumn 加载 columnId 参数对应的列。
func (s *Server) loadColumn(c *gin.Context) (*model.Column, bool) {
	col, err := s.store.ColumnByID(c.Request.Context(), c.Param("columnId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("Column not found"))
			return nil, false
		}
		response.Fail(c, fmt.Errorf("load column: %w", err))
		return nil, false
	}
	return col, true
}

// authorizeRoom 供 websocket 加入房间时校验成员身份。
func (s *Server) authorizeRoom(ctx context.Context, userID, boardID string) error {
	_, err := s.resolver.Authorize(ctx, userID, boardID, model.CapabilityNone)
	return err
}
