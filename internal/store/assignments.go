package store

import (
	"context"

	"kanbanhub/internal/model"
)

// CreateAssignment 重复的 (card, user, role) 返回 ErrConflict。
func (s *Store) CreateAssignment(ctx context.Context, a *model.CardAssignment) error {
	return translate(s.db.WithContext(ctx).Create(a).Error)
}

func (s *Store) AssignmentExists(ctx context.Context, cardID, userID string, role model.AssignmentRole) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CardAssignment{}).
		Where("card_id = ? AND user_id = ? AND role = ?", cardID, userID, role).
		Count(&count).Error
	return count > 0, err
}

// DeleteAssignments 删除用户在卡片上的分配，role 为空时删除全部角色。
func (s *Store) DeleteAssignments(ctx context.Context, cardID, userID string, role model.AssignmentRole) (int64, error) {
	q := s.db.WithContext(ctx).Where("card_id = ? AND user_id = ?", cardID, userID)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	res := q.Delete(&model.CardAssignment{})
	return res.RowsAffected, res.Error
}

func (s *Store) AssignmentsForCard(ctx context.Context, cardID string) ([]model.CardAssignment, error) {
	var out []model.CardAssignment
	err := s.db.WithContext(ctx).Preload("User").Where("card_id = ?", cardID).Order("assigned_at ASC").Find(&out).Error
	return out, err
}
