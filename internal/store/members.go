package store

import (
	"context"
	"errors"
	"time"

	"kanbanhub/internal/model"

	"gorm.io/datatypes"
)

// NewMembership 按角色预设构造成员关系，perms 为空时使用默认权限。
func NewMembership(boardID, userID string, role model.Role, perms *model.Permissions) *model.BoardMember {
	p := model.DefaultPermissions(role)
	if perms != nil {
		p = *perms
	}
	return &model.BoardMember{
		BoardID:     boardID,
		UserID:      userID,
		Role:        role,
		Permissions: datatypes.NewJSONType(p),
		JoinedAt:    time.Now(),
		IsActive:    true,
	}
}

// MembershipFor 返回活跃的成员关系。
func (s *Store) MembershipFor(ctx context.Context, boardID, userID string) (*model.BoardMember, error) {
	var m model.BoardMember
	err := s.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ? AND is_active = ?", boardID, userID, true).
		First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// AddMember 新增成员；已停用的成员会被重新激活，活跃成员返回 ErrConflict。
func (s *Store) AddMember(ctx context.Context, m *model.BoardMember) error {
	return s.Transaction(ctx, func(tx *Store) error {
		var existing model.BoardMember
		err := tx.db.WithContext(ctx).Where("board_id = ? AND user_id = ?", m.BoardID, m.UserID).First(&existing).Error
		if err = translate(err); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if errors.Is(err, ErrNotFound) {
			return translate(tx.db.WithContext(ctx).Create(m).Error)
		}
		if existing.IsActive {
			return ErrConflict
		}
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
		return translate(tx.db.WithContext(ctx).Model(&model.BoardMember{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"role":          m.Role,
			"permissions":   m.Permissions,
			"is_active":     true,
			"joined_at":     m.JoinedAt,
			"invited_by_id": m.InvitedByID,
		}).Error)
	})
}

// UpdateMember 修改角色与权限。
func (s *Store) UpdateMember(ctx context.Context, boardID, userID string, role model.Role, perms model.Permissions) error {
	res := s.db.WithContext(ctx).Model(&model.BoardMember{}).
		Where("board_id = ? AND user_id = ? AND is_active = ?", boardID, userID, true).
		Updates(map[string]any{"role": role, "permissions": datatypes.NewJSONType(perms)})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateMember 停用成员关系，行本身保留。
func (s *Store) DeactivateMember(ctx context.Context, boardID, userID string) error {
	res := s.db.WithContext(ctx).Model(&model.BoardMember{}).
		Where("board_id = ? AND user_id = ? AND is_active = ?", boardID, userID, true).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMembers 返回活跃成员及其用户信息。
func (s *Store) ListMembers(ctx context.Context, boardID string) ([]model.BoardMember, error) {
	var members []model.BoardMember
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("board_id = ? AND is_active = ?", boardID, true).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}

// TouchMemberSeen 只更新活跃的成员关系。
func (s *Store) TouchMemberSeen(ctx context.Context, boardID, userID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&model.BoardMember{}).
		Where("board_id = ? AND user_id = ? AND is_active = ?", boardID, userID, true).
		UpdateColumn("last_seen_at", at).Error
}
