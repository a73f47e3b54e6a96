package store

import (
	"context"
	"time"

	"kanbanhub/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UserByEmail 邮箱大小写不敏感。
func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", model.NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", model.NormalizeEmail(email)).Count(&count).Error
	return count > 0, err
}

func (s *Store) TouchLogin(ctx context.Context, userID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).UpdateColumn("last_login_at", at).Error
}

func (s *Store) UpdateUser(ctx context.Context, userID string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return translate(s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error)
}
