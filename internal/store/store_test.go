package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"kanbanhub/internal/model"
	"kanbanhub/internal/ordering"
	"kanbanhub/internal/store"
	"kanbanhub/internal/store/storetest"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func columnNames(t *testing.T, s *store.Store, boardID string) ([]string, []int) {
	t.Helper()
	cols, err := s.ColumnsByBoard(context.Background(), boardID, false)
	require.NoError(t, err)
	names := make([]string, len(cols))
	positions := make([]int, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		positions[i] = c.Position
	}
	return names, positions
}

func TestDuplicateEmailIsConflict(t *testing.T) {
	s := storetest.New(t)
	storetest.User(t, s, "dup@example.com", "First")

	err := s.CreateUser(context.Background(), &model.User{Email: "DUP@example.com", Password: "x", FirstName: "Second", LastName: "User", IsActive: true})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestCreateBoardCreatesOwnerMembership(t *testing.T) {
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Roadmap")

	m, err := s.MembershipFor(context.Background(), board.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, model.RoleOwner, m.Role)
	require.Equal(t, model.AllPermissions(), m.Permissions.Data())
	require.Equal(t, model.DefaultBoardColor, board.Color)
}

func TestAddMemberKeepsSingleRow(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	bob := storetest.User(t, s, "bob@example.com", "Bob")
	board := storetest.Board(t, s, owner, "Roadmap")

	storetest.Member(t, s, board, bob, model.RoleMember)
	err := s.AddMember(ctx, store.NewMembership(board.ID, bob.ID, model.RoleAdmin, nil))
	require.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.DeactivateMember(ctx, board.ID, bob.ID))
	_, err = s.MembershipFor(ctx, board.ID, bob.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.AddMember(ctx, store.NewMembership(board.ID, bob.ID, model.RoleViewer, nil)))
	m, err := s.MembershipFor(ctx, board.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, model.RoleViewer, m.Role)

	var rows int64
	require.NoError(t, s.DB().Model(&model.BoardMember{}).Where("board_id = ? AND user_id = ?", board.ID, bob.ID).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestListBoardsForUser(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	bob := storetest.User(t, s, "bob@example.com", "Bob")
	shared := storetest.Board(t, s, owner, "Shared")
	storetest.Board(t, s, owner, "Private")
	storetest.Member(t, s, shared, bob, model.RoleViewer)

	listings, total, err := s.ListBoardsForUser(ctx, bob.ID, store.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, listings, 1)
	require.Equal(t, "Shared", listings[0].Board.Name)
	require.Equal(t, model.RoleViewer, listings[0].Membership.Role)

	_, total, err = s.ListBoardsForUser(ctx, owner.ID, store.Page{Page: 1, Limit: 1, SortBy: "name", SortOrder: "ASC"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
}

func TestReorderColumnsToFront(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Roadmap")
	cols := storetest.Columns(t, s, board, "To Do", "Doing", "Done")

	_, err := ordering.NewEngine(s.ColumnOrder()).Move(ctx, cols[2].ID, board.ID, 0)
	require.NoError(t, err)

	names, positions := columnNames(t, s, board.ID)
	require.Equal(t, []string{"Done", "To Do", "Doing"}, names)
	require.Equal(t, []int{0, 1, 2}, positions)
}

func TestReorderFourthColumnToIndexOne(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Roadmap")
	cols := storetest.Columns(t, s, board, "c1", "c2", "c3", "c4")

	pos, err := ordering.NewEngine(s.ColumnOrder()).Move(ctx, cols[3].ID, board.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, pos)

	names, _ := columnNames(t, s, board.ID)
	require.Equal(t, []string{"c1", "c4", "c2", "c3"}, names)
}

func TestMoveCardAcrossColumns(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Roadmap")
	cols := storetest.Columns(t, s, board, "X", "Y")
	x := storetest.Cards(t, s, cols[0], "C", "X2")
	y := storetest.Cards(t, s, cols[1], "Y0", "Y1")

	_, err := ordering.NewEngine(s.CardOrder()).Move(ctx, x[0].ID, cols[1].ID, 1)
	require.NoError(t, err)

	moved, err := s.CardByID(ctx, x[0].ID)
	require.NoError(t, err)
	require.Equal(t, cols[1].ID, moved.ColumnID)
	require.Equal(t, 1, moved.Position)

	shifted, err := s.CardByID(ctx, y[1].ID)
	require.NoError(t, err)
	require.Equal(t, 2, shifted.Position)

	// 源列保留空档
	left, err := s.CardByID(ctx, x[1].ID)
	require.NoError(t, err)
	require.Equal(t, 1, left.Position)
}

func TestMoveCardToFrontOfColumn(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Roadmap")
	cols := storetest.Columns(t, s, board, "A", "B")
	a := storetest.Cards(t, s, cols[0], "moved")
	b := storetest.Cards(t, s, cols[1], "b0", "b1", "b2")

	_, err := ordering.NewEngine(s.CardOrder()).Move(ctx, a[0].ID, cols[1].ID, 0)
	require.NoError(t, err)

	cards, err := s.CardsByColumn(ctx, cols[1].ID)
	require.NoError(t, err)
	require.Equal(t, a[0].ID, cards[0].ID)
	for _, c := range cards[1:] {
		require.Less(t, cards[0].Position, c.Position)
	}
	require.Len(t, cards, len(b)+1)
}

func TestCardLabelsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Roadmap")
	col := storetest.Columns(t, s, board, "To Do")[0]

	labels := []model.Label{{ID: "l1", Name: "bug", Color: "#EF4444"}, {ID: "l2", Name: "ui", Color: "#10B981"}}
	card := &model.Card{Title: "Fix login", ColumnID: col.ID, BoardID: board.ID, Labels: datatypes.JSONSlice[model.Label](labels)}
	require.NoError(t, s.CreateCard(ctx, card))

	loaded, err := s.CardByID(ctx, card.ID)
	require.NoError(t, err)
	require.Equal(t, labels, []model.Label(loaded.Labels))
	require.Equal(t, model.PriorityMedium, loaded.Priority)
	require.NotNil(t, loaded.Comments)
}

func TestBulkColumnPositionsRollsBack(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "One")
	other := storetest.Board(t, s, owner, "Two")
	cols := storetest.Columns(t, s, board, "a", "b")
	foreign := storetest.Columns(t, s, other, "z")

	err := s.BulkSetColumnPositions(ctx, board.ID, []store.ColumnPosition{
		{ID: cols[0].ID, Position: 5},
		{ID: foreign[0].ID, Position: 0},
	})
	require.True(t, errors.Is(err, store.ErrColumnBoardMismatch))

	first, err := s.ColumnByID(ctx, cols[0].ID)
	require.NoError(t, err)
	require.Equal(t, 0, first.Position)

	require.NoError(t, s.BulkSetColumnPositions(ctx, board.ID, []store.ColumnPosition{
		{ID: cols[0].ID, Position: 1},
		{ID: cols[1].ID, Position: 0},
	}))
	names, _ := columnNames(t, s, board.ID)
	require.Equal(t, []string{"b", "a"}, names)
}

func TestArchiveColumnCascadesToCards(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Roadmap")
	col := storetest.Columns(t, s, board, "To Do")[0]
	cards := storetest.Cards(t, s, col, "a", "b")

	require.NoError(t, s.ArchiveColumn(ctx, col.ID))
	for _, c := range cards {
		loaded, err := s.CardByID(ctx, c.ID)
		require.NoError(t, err)
		require.True(t, loaded.IsArchived)
	}
	cols, err := s.ColumnsByBoard(ctx, board.ID, false)
	require.NoError(t, err)
	require.Empty(t, cols)
}

func TestActivitiesAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	boardID := "missing-board"
	a := &model.Activity{Type: model.ActivityBoardCreated, Description: "created", BoardID: &boardID}
	require.NoError(t, s.CreateActivity(ctx, a))

	err := s.DB().Model(a).Update("description", "changed").Error
	require.ErrorIs(t, err, model.ErrActivityImmutable)
	err = s.DB().Delete(a).Error
	require.ErrorIs(t, err, model.ErrActivityImmutable)

	list, err := s.ActivitiesByBoard(ctx, boardID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "created", list[0].Description)
}

func TestColumnStats(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Roadmap")
	col := storetest.Columns(t, s, board, "To Do")[0]
	cards := storetest.Cards(t, s, col, "done", "late", "open")

	now := time.Now()
	past := now.Add(-48 * time.Hour)
	require.NoError(t, s.UpdateCard(ctx, cards[0].ID, map[string]any{"is_completed": true, "completed_at": now}))
	require.NoError(t, s.UpdateCard(ctx, cards[1].ID, map[string]any{"due_date": past, "priority": model.PriorityUrgent}))

	stats, err := s.ColumnStats(ctx, col.ID, now)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalCards)
	require.Equal(t, 1, stats.CompletedCards)
	require.Equal(t, 1, stats.OverdueCards)
	require.Equal(t, 33, stats.Progress)
	require.Equal(t, 1, stats.PriorityBreakdown["urgent"])
	require.Equal(t, 2, stats.PriorityBreakdown["medium"])
}

func TestDueCardsIncludesAssignees(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	board := storetest.Board(t, s, owner, "Roadmap")
	col := storetest.Columns(t, s, board, "To Do")[0]
	cards := storetest.Cards(t, s, col, "soon", "later")

	now := time.Now()
	require.NoError(t, s.UpdateCard(ctx, cards[0].ID, map[string]any{"due_date": now.Add(2 * time.Hour)}))
	require.NoError(t, s.UpdateCard(ctx, cards[1].ID, map[string]any{"due_date": now.Add(72 * time.Hour)}))
	require.NoError(t, s.CreateAssignment(ctx, &model.CardAssignment{CardID: cards[0].ID, UserID: owner.ID, Role: model.AssignmentAssignee}))
	require.ErrorIs(t, s.CreateAssignment(ctx, &model.CardAssignment{CardID: cards[0].ID, UserID: owner.ID, Role: model.AssignmentAssignee}), store.ErrConflict)
	require.NoError(t, s.CreateAssignment(ctx, &model.CardAssignment{CardID: cards[0].ID, UserID: owner.ID, Role: model.AssignmentReviewer}))

	due, err := s.DueCards(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, cards[0].ID, due[0].ID)
	require.Len(t, due[0].Assignments, 1)
	require.Equal(t, owner.Email, due[0].Assignments[0].User.Email)
}

func TestTouchMemberSeenSkipsInactive(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := storetest.User(t, s, "owner@example.com", "Owner")
	bob := storetest.User(t, s, "bob@example.com", "Bob")
	board := storetest.Board(t, s, owner, "Roadmap")
	storetest.Member(t, s, board, bob, model.RoleMember)
	require.NoError(t, s.DeactivateMember(ctx, board.ID, bob.ID))

	require.NoError(t, s.TouchMemberSeen(ctx, board.ID, bob.ID, time.Now()))
	var m model.BoardMember
	require.NoError(t, s.DB().Where("board_id = ? AND user_id = ?", board.ID, bob.ID).First(&m).Error)
	require.Nil(t, m.LastSeenAt)

	require.NoError(t, s.TouchMemberSeen(ctx, board.ID, owner.ID, time.Now()))
	seen, err := s.MembershipFor(ctx, board.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, seen.LastSeenAt)
}
