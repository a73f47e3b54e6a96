package store

import (
	"context"
	"time"

	"kanbanhub/internal/model"

	"gorm.io/gorm"
)

// BoardListing 看板及当前用户在其中的成员关系。
type BoardListing struct {
	Board      model.Board
	Membership *model.BoardMember
}

// CreateBoardWithOwner 在同一事务中创建看板与所有者成员关系。
func (s *Store) CreateBoardWithOwner(ctx context.Context, board *model.Board) (*model.BoardMember, error) {
	var owner *model.BoardMember
	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.WithContext(ctx).Create(board).Error; err != nil {
			return translate(err)
		}
		owner = NewMembership(board.ID, board.OwnerID, model.RoleOwner, nil)
		return translate(tx.db.WithContext(ctx).Create(owner).Error)
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}

func (s *Store) BoardByID(ctx context.Context, id string) (*model.Board, error) {
	var board model.Board
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&board).Error; err != nil {
		return nil, translate(err)
	}
	return &board, nil
}

// BoardContent 加载看板及其未归档的列、卡片、分配人。
func (s *Store) BoardContent(ctx context.Context, id string) (*model.Board, error) {
	var board model.Board
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Preload("Columns", byPosition).
		Preload("Columns.Cards", byPosition).
		Preload("Columns.Cards.Assignments.User").
		Where("id = ?", id).
		First(&board).Error
	if err != nil {
		return nil, translate(err)
	}
	return &board, nil
}

// ListBoardsForUser 返回用户作为活跃成员的未归档看板。
func (s *Store) ListBoardsForUser(ctx context.Context, userID string, page Page) ([]BoardListing, int64, error) {
	page = page.normalized()
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.Board{}).
			Joins("JOIN board_members ON board_members.board_id = boards.id AND board_members.user_id = ? AND board_members.is_active = ?", userID, true).
			Where("boards.is_archived = ?", false)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var boards []model.Board
	err := base().
		Preload("Owner").
		Preload("Columns", byPosition).
		Order(page.orderBy("boards", boardSortColumns, "updated_at")).
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&boards).Error
	if err != nil {
		return nil, 0, err
	}
	if len(boards) == 0 {
		return []BoardListing{}, total, nil
	}

	ids := make([]string, len(boards))
	for i, b := range boards {
		ids[i] = b.ID
	}
	var members []model.BoardMember
	if err := s.db.WithContext(ctx).Where("user_id = ? AND board_id IN ?", userID, ids).Find(&members).Error; err != nil {
		return nil, 0, err
	}
	byBoard := make(map[string]*model.BoardMember, len(members))
	for i := range members {
		byBoard[members[i].BoardID] = &members[i]
	}

	out := make([]BoardListing, len(boards))
	for i, b := range boards {
		out[i] = BoardListing{Board: b, Membership: byBoard[b.ID]}
	}
	return out, total, nil
}

func (s *Store) UpdateBoard(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return translate(s.db.WithContext(ctx).Model(&model.Board{}).Where("id = ?", id).Updates(updates).Error)
}

func (s *Store) SetBoardArchived(ctx context.Context, id string, archived bool) error {
	return s.UpdateBoard(ctx, id, map[string]any{"is_archived": archived})
}

// TouchBoard 更新 last_activity_at，不改变 updated_at。
func (s *Store) TouchBoard(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&model.Board{}).Where("id = ?", id).UpdateColumn("last_activity_at", at).Error
}
