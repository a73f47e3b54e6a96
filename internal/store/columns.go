package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kanbanhub/internal/model"
	"kanbanhub/internal/ordering"
)

// ErrColumnBoardMismatch 批量排序中的列不属于指定看板。
var ErrColumnBoardMismatch = errors.New("column does not belong to board")

// ColumnPosition 批量排序的单项。
type ColumnPosition struct {
	ID       string `json:"id" binding:"required"`
	Position int    `json:"position" binding:"min=0"`
}

// ColumnStats 列统计。
type ColumnStats struct {
	TotalCards        int              `json:"totalCards"`
	CompletedCards    int              `json:"completedCards"`
	OverdueCards      int              `json:"overdueCards"`
	Progress          int              `json:"progress"`
	PriorityBreakdown map[string]int   `json:"priorityBreakdown"`
	RecentActivity    []model.Activity `json:"recentActivity"`
}

func (s *Store) ColumnByID(ctx context.Context, id string) (*model.Column, error) {
	var col model.Column
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&col).Error; err != nil {
		return nil, translate(err)
	}
	return &col, nil
}

// ColumnWithCards 加载列及其未归档卡片。
func (s *Store) ColumnWithCards(ctx context.Context, id string) (*model.Column, error) {
	var col model.Column
	err := s.db.WithContext(ctx).
		Preload("Cards", byPosition).
		Preload("Cards.Assignments.User").
		Where("id = ?", id).
		First(&col).Error
	if err != nil {
		return nil, translate(err)
	}
	return &col, nil
}

// ColumnsByBoard 返回看板的未归档列，withCards 为 true 时同时加载卡片。
func (s *Store) ColumnsByBoard(ctx context.Context, boardID string, withCards bool) ([]model.Column, error) {
	q := s.db.WithContext(ctx).Where("board_id = ?", boardID)
	if withCards {
		q = q.Preload("Cards", byPosition).Preload("Cards.Assignments.User")
	}
	var cols []model.Column
	err := byPosition(q).Find(&cols).Error
	return cols, err
}

// NextColumnPosition 返回追加到末尾时的位置。
func (s *Store) NextColumnPosition(ctx context.Context, boardID string) (int, error) {
	var maxPos sql.NullInt64
	err := s.db.WithContext(ctx).Model(&model.Column{}).
		Where("board_id = ? AND is_archived = ?", boardID, false).
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

func (s *Store) CreateColumn(ctx context.Context, col *model.Column) error {
	return translate(s.db.WithContext(ctx).Create(col).Error)
}

func (s *Store) UpdateColumn(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return translate(s.db.WithContext(ctx).Model(&model.Column{}).Where("id = ?", id).Updates(updates).Error)
}

// ArchiveColumn 归档列并级联归档其卡片。
func (s *Store) ArchiveColumn(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.WithContext(ctx).Model(&model.Column{}).Where("id = ?", id).Update("is_archived", true).Error; err != nil {
			return err
		}
		return tx.db.WithContext(ctx).Model(&model.Card{}).Where("column_id = ?", id).Update("is_archived", true).Error
	})
}

// RestoreColumn 只恢复列本身，卡片保持归档状态。
func (s *Store) RestoreColumn(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.Column{}).Where("id = ?", id).Update("is_archived", false).Error
}

// BulkSetColumnPositions 在一个事务中写入全部位置，任一列不属于 boardID 时整体回滚。
func (s *Store) BulkSetColumnPositions(ctx context.Context, boardID string, positions []ColumnPosition) error {
	return s.Transaction(ctx, func(tx *Store) error {
		for _, p := range positions {
			col, err := tx.ColumnByID(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("column %s: %w", p.ID, err)
			}
			if col.BoardID != boardID {
				return fmt.Errorf("column %s: %w", p.ID, ErrColumnBoardMismatch)
			}
			if err := tx.db.WithContext(ctx).Model(&model.Column{}).Where("id = ?", p.ID).Update("position", p.Position).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CountActiveCards(ctx context.Context, columnID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Card{}).
		Where("column_id = ? AND is_archived = ?", columnID, false).
		Count(&count).Error
	return count, err
}

// ColumnStats 统计列内未归档卡片。
func (s *Store) ColumnStats(ctx context.Context, columnID string, now time.Time) (*ColumnStats, error) {
	var cards []model.Card
	err := s.db.WithContext(ctx).
		Select("id", "is_completed", "due_date", "priority").
		Where("column_id = ? AND is_archived = ?", columnID, false).
		Find(&cards).Error
	if err != nil {
		return nil, err
	}

	stats := &ColumnStats{
		TotalCards: len(cards),
		PriorityBreakdown: map[string]int{
			string(model.PriorityLow):    0,
			string(model.PriorityMedium): 0,
			string(model.PriorityHigh):   0,
			string(model.PriorityUrgent): 0,
		},
	}
	for i := range cards {
		c := &cards[i]
		if c.IsCompleted {
			stats.CompletedCards++
		}
		if c.IsOverdue(now) {
			stats.OverdueCards++
		}
		stats.PriorityBreakdown[string(c.Priority)]++
	}
	if stats.TotalCards > 0 {
		stats.Progress = int(float64(stats.CompletedCards)/float64(stats.TotalCards)*100 + 0.5)
	}

	stats.RecentActivity, err = s.ActivitiesByColumn(ctx, columnID, 10)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ColumnOrder 实现 ordering.Repository，父级为看板。
type ColumnOrder struct {
	s *Store
}

func (s *Store) ColumnOrder() ordering.Repository {
	return ColumnOrder{s: s}
}

func (r ColumnOrder) Siblings(ctx context.Context, boardID, excludeID string) ([]ordering.Sibling, error) {
	var cols []model.Column
	err := byPosition(r.s.db.WithContext(ctx).Select("id", "position").
		Where("board_id = ? AND id <> ?", boardID, excludeID)).
		Find(&cols).Error
	if err != nil {
		return nil, err
	}
	out := make([]ordering.Sibling, len(cols))
	for i, c := range cols {
		out[i] = ordering.Sibling{ID: c.ID, Position: c.Position}
	}
	return out, nil
}

// Place 列不支持跨看板移动，只写 position。
func (r ColumnOrder) Place(ctx context.Context, id, boardID string, position int) error {
	return r.s.db.WithContext(ctx).Model(&model.Column{}).
		Where("id = ? AND board_id = ?", id, boardID).
		Update("position", position).Error
}

func (r ColumnOrder) Renumber(ctx context.Context, id string, position int) error {
	return r.s.db.WithContext(ctx).Model(&model.Column{}).Where("id = ?", id).Update("position", position).Error
}
