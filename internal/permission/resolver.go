// Package permission 解析请求对应的看板并校验成员能力。
package permission

import (
	"context"
	"errors"
	"fmt"

	"kanbanhub/internal/apperr"
	"kanbanhub/internal/model"
	"kanbanhub/internal/store"
)

// Lookup 解析所需的查询，由 store.Store 实现。
type Lookup interface {
	BoardByID(ctx context.Context, id string) (*model.Board, error)
	ColumnByID(ctx context.Context, id string) (*model.Column, error)
	CardByID(ctx context.Context, id string) (*model.Card, error)
	MembershipFor(ctx context.Context, boardID, userID string) (*model.BoardMember, error)
}

// Target 请求中可用于定位看板的全部来源。
type Target struct {
	BoardID  string // 路由参数 boardId
	ColumnID string // 路由参数 columnId
	CardID   string // 路由参数 cardId
	Body     BodyRefs
}

// BodyRefs 请求体中的引用字段。
type BodyRefs struct {
	BoardID        string `json:"boardId"`
	ColumnID       string `json:"columnId"`
	TargetColumnID string `json:"targetColumnId"`
}

// Decision 权限检查结果。
type Decision struct {
	BoardID    string
	Board      *model.Board
	Membership *model.BoardMember // 所有者可能为 nil
	Owner      bool
	Deferred   bool // 未能定位看板，交由 handler 加载卡片后再检查
}

// Role 返回有效角色。
func (d *Decision) Role() model.Role {
	if d.Owner {
		return model.RoleOwner
	}
	if d.Membership != nil {
		return d.Membership.Role
	}
	return ""
}

// Resolver 权限解析器。
type Resolver struct {
	lookup Lookup
}

func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve 按固定顺序定位看板后调用 Authorize。
//
// 顺序：boardId 参数、columnId 参数、body.boardId、body.columnId、body.targetColumnId、cardId 参数。
// 查不到的引用跳到下一个来源。都失败时，有 cardId 参数则返回 Deferred，否则返回 "Board not found"。
func (r *Resolver) Resolve(ctx context.Context, userID string, t Target, capability model.Capability) (*Decision, error) {
	boardID, err := r.ResolveBoardID(ctx, t)
	if err != nil {
		return nil, err
	}
	if boardID == "" {
		if t.CardID != "" {
			return &Decision{Deferred: true}, nil
		}
		return nil, apperr.NotFound("Board not found")
	}
	return r.Authorize(ctx, userID, boardID, capability)
}

// ResolveBoardID 返回第一个能定位到的看板 ID，找不到时返回空串。
func (r *Resolver) ResolveBoardID(ctx context.Context, t Target) (string, error) {
	if t.BoardID != "" {
		return t.BoardID, nil
	}
	steps := []func() (string, error){
		func() (string, error) { return r.columnBoard(ctx, t.ColumnID) },
		func() (string, error) { return t.Body.BoardID, nil },
		func() (string, error) { return r.columnBoard(ctx, t.Body.ColumnID) },
		func() (string, error) { return r.columnBoard(ctx, t.Body.TargetColumnID) },
		func() (string, error) { return r.cardBoard(ctx, t.CardID) },
	}
	for _, step := range steps {
		id, err := step()
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	return "", nil
}

// Authorize 对已知看板做所有者、成员、能力检查。
func (r *Resolver) Authorize(ctx context.Context, userID, boardID string, capability model.Capability) (*Decision, error) {
	board, err := r.lookup.BoardByID(ctx, boardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Board not found")
		}
		return nil, apperr.Internal(fmt.Errorf("load board: %w", err))
	}

	d := &Decision{BoardID: board.ID, Board: board}
	if board.OwnerID == userID {
		d.Owner = true
		// 所有者不受权限表约束，成员行只用于返回角色信息
		if m, err := r.lookup.MembershipFor(ctx, board.ID, userID); err == nil {
			d.Membership = m
		}
		return d, nil
	}

	m, err := r.lookup.MembershipFor(ctx, board.ID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Forbidden("Not a board member")
		}
		return nil, apperr.Internal(fmt.Errorf("load membership: %w", err))
	}
	d.Membership = m

	if !m.Can(capability) {
		return nil, apperr.Forbidden(fmt.Sprintf("Insufficient permissions: %s required", capability))
	}
	return d, nil
}

func (r *Resolver) columnBoard(ctx context.Context, columnID string) (string, error) {
	if columnID == "" {
		return "", nil
	}
	col, err := r.lookup.ColumnByID(ctx, columnID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", apperr.Internal(fmt.Errorf("load column: %w", err))
	}
	return col.BoardID, nil
}

func (r *Resolver) cardBoard(ctx context.Context, cardID string) (string, error) {
	if cardID == "" {
		return "", nil
	}
	card, err := r.lookup.CardByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", apperr.Internal(fmt.Errorf("load card: %w", err))
	}
	return card.BoardID, nil
}
