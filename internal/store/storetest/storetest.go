// Package storetest 为测试提供内存 SQLite 存储。
package storetest

import (
	"context"
	"testing"

	"kanbanhub/internal/config"
	"kanbanhub/internal/model"
	"kanbanhub/internal/store"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

// New 打开迁移好的内存库，测试结束时关闭。
func New(t testing.TB) *store.Store {
	t.Helper()
	db, err := store.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := store.New(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// User 创建一个密码为 password123 的活跃用户。
func User(t testing.TB, s *store.Store, email, first string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &model.User{
		Email:       email,
		Password:    string(hash),
		FirstName:   first,
		LastName:    "Test",
		IsActive:    true,
		Preferences: datatypes.NewJSONType(model.DefaultPreferences()),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// Board 以 owner 身份创建看板。
func Board(t testing.TB, s *store.Store, owner *model.User, name string) *model.Board {
	t.Helper()
	b := &model.Board{
		Name:     name,
		OwnerID:  owner.ID,
		Settings: datatypes.NewJSONType(model.DefaultBoardSettings()),
	}
	if _, err := s.CreateBoardWithOwner(context.Background(), b); err != nil {
		t.Fatalf("create board: %v", err)
	}
	return b
}

// Columns 按顺序创建列，位置依次为 0..n-1。
func Columns(t testing.TB, s *store.Store, board *model.Board, names ...string) []*model.Column {
	t.Helper()
	out := make([]*model.Column, 0, len(names))
	for i, name := range names {
		c := &model.Column{
			BoardID:  board.ID,
			Name:     name,
			Position: i,
			Settings: datatypes.NewJSONType(model.DefaultColumnSettings()),
		}
		if err := s.CreateColumn(context.Background(), c); err != nil {
			t.Fatalf("create column: %v", err)
		}
		out = append(out, c)
	}
	return out
}

// Cards 在列中按顺序创建卡片。
func Cards(t testing.TB, s *store.Store, col *model.Column, titles ...string) []*model.Card {
	t.Helper()
	out := make([]*model.Card, 0, len(titles))
	for i, title := range titles {
		c := &model.Card{
			Title:    title,
			Position: i,
			ColumnID: col.ID,
			BoardID:  col.BoardID,
		}
		if err := s.CreateCard(context.Background(), c); err != nil {
			t.Fatalf("create card: %v", err)
		}
		out = append(out, c)
	}
	return out
}

// Member 以指定角色把用户加入看板。
func Member(t testing.TB, s *store.Store, board *model.Board, user *model.User, role model.Role) *model.BoardMember {
	t.Helper()
	m := store.NewMembership(board.ID, user.ID, role, nil)
	if err := s.AddMember(context.Background(), m); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return m
}
