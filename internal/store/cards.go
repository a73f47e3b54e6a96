package store

import (
	"context"
	"database/sql"
	"time"

	"kanbanhub/internal/model"
	"kanbanhub/internal/ordering"

	"gorm.io/gorm"
)

// CardFilter 卡片列表过滤条件。
type CardFilter struct {
	ColumnID        string
	BoardID         string
	IncludeArchived bool
}

func (s *Store) CardByID(ctx context.Context, id string) (*model.Card, error) {
	var card model.Card
	err := s.db.WithContext(ctx).
		Preload("Assignments.User").
		Where("id = ?", id).
		First(&card).Error
	if err != nil {
		return nil, translate(err)
	}
	return &card, nil
}

func (s *Store) CreateCard(ctx context.Context, card *model.Card) error {
	return translate(s.db.WithContext(ctx).Create(card).Error)
}

func (s *Store) UpdateCard(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return translate(s.db.WithContext(ctx).Model(&model.Card{}).Where("id = ?", id).Updates(updates).Error)
}

func (s *Store) SetCardArchived(ctx context.Context, id string, archived bool) error {
	return s.UpdateCard(ctx, id, map[string]any{"is_archived": archived})
}

// CardsByColumn 返回列内未归档卡片（按 position）。
func (s *Store) CardsByColumn(ctx context.Context, columnID string) ([]model.Card, error) {
	var cards []model.Card
	err := byPosition(s.db.WithContext(ctx).Preload("Assignments.User").Where("column_id = ?", columnID)).
		Find(&cards).Error
	return cards, err
}

// ListCards 分页查询卡片。
func (s *Store) ListCards(ctx context.Context, filter CardFilter, page Page) ([]model.Card, int64, error) {
	page = page.normalized()
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.Card{})
		if filter.ColumnID != "" {
			q = q.Where("column_id = ?", filter.ColumnID)
		}
		if filter.BoardID != "" {
			q = q.Where("board_id = ?", filter.BoardID)
		}
		if !filter.IncludeArchived {
			q = notArchived(q)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var cards []model.Card
	err := base().
		Preload("Assignments.User").
		Order(page.orderBy("cards", cardSortColumns, "position")).
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&cards).Error
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// NextCardPosition 返回追加到列末尾时的位置。
func (s *Store) NextCardPosition(ctx context.Context, columnID string) (int, error) {
	var maxPos sql.NullInt64
	err := s.db.WithContext(ctx).Model(&model.Card{}).
		Where("column_id = ? AND is_archived = ?", columnID, false).
		Select("MAX(position)").
		Row().Scan(&maxPos)
	if err != nil {
		return 0, err
	}
	if !maxPos.Valid {
		return 0, nil
	}
	return int(maxPos.Int64) + 1, nil
}

// DueCards 截止日期在 [from, to) 内且未完成、未归档的卡片，带 assignee。
func (s *Store) DueCards(ctx context.Context, from, to time.Time) ([]model.Card, error) {
	var cards []model.Card
	err := s.db.WithContext(ctx).
		Preload("Assignments", "role = ?", model.AssignmentAssignee).
		Preload("Assignments.User").
		Where("due_date >= ? AND due_date < ?", from, to).
		Where("is_completed = ? AND is_archived = ?", false, false).
		Order("due_date ASC").
		Find(&cards).Error
	return cards, err
}

// CardOrder 实现 ordering.Repository，父级为列。
type CardOrder struct {
	s *Store
}

func (s *Store) CardOrder() ordering.Repository {
	return CardOrder{s: s}
}

func (r CardOrder) Siblings(ctx context.Context, columnID, excludeID string) ([]ordering.Sibling, error) {
	var cards []model.Card
	err := byPosition(r.s.db.WithContext(ctx).Select("id", "position").
		Where("column_id = ? AND id <> ?", columnID, excludeID)).
		Find(&cards).Error
	if err != nil {
		return nil, err
	}
	out := make([]ordering.Sibling, len(cards))
	for i, c := range cards {
		out[i] = ordering.Sibling{ID: c.ID, Position: c.Position}
	}
	return out, nil
}

// Place 同时写入 column_id 与 position。
func (r CardOrder) Place(ctx context.Context, id, columnID string, position int) error {
	return r.s.db.WithContext(ctx).Model(&model.Card{}).Where("id = ?", id).
		Updates(map[string]any{"column_id": columnID, "position": position}).Error
}

func (r CardOrder) Renumber(ctx context.Context, id string, position int) error {
	return r.s.db.WithContext(ctx).Model(&model.Card{}).Where("id = ?", id).Update("position", position).Error
}
