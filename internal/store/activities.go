package store

import (
	"context"

	"kanbanhub/internal/model"
)

// CreateActivity 只追加，不提供更新与删除。
func (s *Store) CreateActivity(ctx context.Context, a *model.Activity) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *Store) ActivitiesByBoard(ctx context.Context, boardID string, limit int) ([]model.Activity, error) {
	return s.activities(ctx, "board_id = ?", boardID, limit)
}

func (s *Store) ActivitiesByColumn(ctx context.Context, columnID string, limit int) ([]model.Activity, error) {
	return s.activities(ctx, "column_id = ?", columnID, limit)
}

func (s *Store) ActivitiesByCard(ctx context.Context, cardID string, limit int) ([]model.Activity, error) {
	return s.activities(ctx, "card_id = ?", cardID, limit)
}

func (s *Store) activities(ctx context.Context, cond string, id string, limit int) ([]model.Activity, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []model.Activity
	err := s.db.WithContext(ctx).
		Preload("User").
		Where(cond, id).
		Where("is_visible = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
