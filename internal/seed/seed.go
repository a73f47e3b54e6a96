// Package seed 写入演示数据，重复执行不会产生重复记录。
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kanbanhub/internal/model"
	"kanbanhub/internal/store"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

// DemoPassword 所有演示用户的密码。
const DemoPassword = "password123"

// DemoBoardName 演示看板名称。
const DemoBoardName = "Product Roadmap"

type demoUser struct {
	email, first, last string
	role               model.Role
}

var demoUsers = []demoUser{
	{"john.doe@example.com", "John", "Doe", model.RoleOwner},
	{"jane.smith@example.com", "Jane", "Smith", model.RoleAdmin},
	{"mike.johnson@example.com", "Mike", "Johnson", model.RoleMember},
	{"sarah.wilson@example.com", "Sarah", "Wilson", model.RoleMember},
	{"alex.brown@example.com", "Alex", "Brown", model.RoleViewer},
}

type demoColumn struct {
	name, color string
	cards       []demoCard
}

type demoCard struct {
	title, description string
	priority           model.Priority
	dueIn              time.Duration // 0 表示无截止日期
	labels             []model.Label
	assignee           int // demoUsers 下标，-1 表示不分配
}

var (
	labelFrontend = model.Label{ID: "1", Name: "Frontend", Color: "#3B82F6"}
	labelBackend  = model.Label{ID: "2", Name: "Backend", Color: "#10B981"}
	labelBug      = model.Label{ID: "3", Name: "Bug", Color: "#EF4444"}
	labelFeature  = model.Label{ID: "4", Name: "Feature", Color: "#8B5CF6"}
)

var demoColumns = []demoColumn{
	{"To Do", "#6B7280", []demoCard{
		{"Add dark mode support", "Add dark mode theme support for better user experience", model.PriorityLow, 0, []model.Label{labelFrontend, labelFeature}, 3},
		{"Create admin dashboard", "Create admin dashboard for managing users and content", model.PriorityMedium, 14 * 24 * time.Hour, []model.Label{labelFrontend}, -1},
	}},
	{"In Progress", "#3B82F6", []demoCard{
		{"Implement real-time notifications", "Implement real-time notifications using WebSockets", model.PriorityHigh, 3 * 24 * time.Hour, []model.Label{labelBackend, labelFeature}, 2},
		{"Optimize database queries", "Optimize database queries to improve application performance", model.PriorityMedium, 0, []model.Label{labelBackend}, 1},
	}},
	{"In Review", "#F59E0B", []demoCard{
		{"Fix responsive design issues", "Fix responsive design issues on mobile and tablet devices", model.PriorityUrgent, 20 * time.Hour, []model.Label{labelFrontend, labelBug}, 3},
	}},
	{"Done", "#10B981", []demoCard{
		{"Set up database schema", "Design and implement the database schema for the application", model.PriorityHigh, 0, []model.Label{labelBackend}, 0},
	}},
}

// Demo 创建演示用户与 "Product Roadmap" 看板。看板已存在时只补齐用户。
func Demo(ctx context.Context, st *store.Store, logger *slog.Logger) error {
	users := make([]*model.User, len(demoUsers))
	for i, du := range demoUsers {
		u, err := ensureUser(ctx, st, du)
		if err != nil {
			return err
		}
		users[i] = u
	}

	owner := users[0]
	var existing int64
	if err := st.DB().WithContext(ctx).Model(&model.Board{}).
		Where("owner_id = ? AND name = ?", owner.ID, DemoBoardName).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("check demo board: %w", err)
	}
	if existing > 0 {
		logger.Info("demo data already present", slog.String("owner", owner.Email))
		return nil
	}

	return st.Transaction(ctx, func(tx *store.Store) error {
		board := &model.Board{
			Name:        DemoBoardName,
			Description: "Quarterly roadmap for the product team",
			Color:       model.DefaultBoardColor,
			OwnerID:     owner.ID,
			Settings:    datatypes.NewJSONType(withVoting(model.DefaultBoardSettings())),
		}
		if _, err := tx.CreateBoardWithOwner(ctx, board); err != nil {
			return fmt.Errorf("create demo board: %w", err)
		}
		for i, du := range demoUsers[1:] {
			m := store.NewMembership(board.ID, users[i+1].ID, du.role, nil)
			m.InvitedByID = &owner.ID
			if err := tx.AddMember(ctx, m); err != nil {
				return fmt.Errorf("add demo member %s: %w", du.email, err)
			}
		}

		now := time.Now()
		cardCount := 0
		for pos, dc := range demoColumns {
			col := &model.Column{
				BoardID:  board.ID,
				Name:     dc.name,
				Color:    dc.color,
				Position: pos,
				Settings: datatypes.NewJSONType(model.DefaultColumnSettings()),
			}
			if err := tx.CreateColumn(ctx, col); err != nil {
				return fmt.Errorf("create demo column %s: %w", dc.name, err)
			}
			for cpos, dcard := range dc.cards {
				card := &model.Card{
					Title:       dcard.title,
					Description: dcard.description,
					Position:    cpos,
					Priority:    dcard.priority,
					Labels:      datatypes.JSONSlice[model.Label](dcard.labels),
					ColumnID:    col.ID,
					BoardID:     board.ID,
				}
				if dcard.dueIn > 0 {
					due := now.Add(dcard.dueIn)
					card.DueDate = &due
				}
				if dc.name == "Done" {
					card.IsCompleted = true
					card.CompletedAt = &now
				}
				if err := tx.CreateCard(ctx, card); err != nil {
					return fmt.Errorf("create demo card %s: %w", dcard.title, err)
				}
				cardCount++
				if dcard.assignee < 0 {
					continue
				}
				a := &model.CardAssignment{CardID: card.ID, UserID: users[dcard.assignee].ID, AssignedByID: &owner.ID}
				if err := tx.CreateAssignment(ctx, a); err != nil {
					return fmt.Errorf("assign demo card %s: %w", dcard.title, err)
				}
			}
		}

		if err := tx.CreateActivity(ctx, &model.Activity{
			Type:        model.ActivityBoardCreated,
			Description: fmt.Sprintf("Created board %q", board.Name),
			Metadata:    datatypes.JSONMap{"boardName": board.Name},
			IsVisible:   true,
			UserID:      &owner.ID,
			BoardID:     &board.ID,
		}); err != nil {
			return fmt.Errorf("record demo activity: %w", err)
		}

		logger.Info("demo data seeded",
			slog.String("board_id", board.ID),
			slog.Int("users", len(users)),
			slog.Int("cards", cardCount),
		)
		return nil
	})
}

func ensureUser(ctx context.Context, st *store.Store, du demoUser) (*model.User, error) {
	u, err := st.UserByEmail(ctx, du.email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load demo user %s: %w", du.email, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u = &model.User{
		Email:           du.email,
		Password:        string(hash),
		FirstName:       du.first,
		LastName:        du.last,
		IsEmailVerified: true,
		IsActive:        true,
		Preferences:     datatypes.NewJSONType(model.DefaultPreferences()),
	}
	if err := st.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create demo user %s: %w", du.email, err)
	}
	return u, nil
}

func withVoting(s model.BoardSettings) model.BoardSettings {
	s.AllowVoting = true
	return s
}
