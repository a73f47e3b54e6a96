package permission

import (
	"context"
	"errors"
	"strings"
	"testing"

	"kanbanhub/internal/apperr"
	"kanbanhub/internal/model"
	"kanbanhub/internal/store"

	"gorm.io/datatypes"
)

type fakeLookup struct {
	boards      map[string]*model.Board
	columns     map[string]*model.Column
	cards       map[string]*model.Card
	members     map[string]*model.BoardMember // key: boardID + "/" + userID
	columnCalls int
	cardCalls   int
	boardErr    error
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		boards:  map[string]*model.Board{},
		columns: map[string]*model.Column{},
		cards:   map[string]*model.Card{},
		members: map[string]*model.BoardMember{},
	}
}

func (f *fakeLookup) BoardByID(ctx context.Context, id string) (*model.Board, error) {
	if f.boardErr != nil {
		return nil, f.boardErr
	}
	if b, ok := f.boards[id]; ok {
		return b, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLookup) ColumnByID(ctx context.Context, id string) (*model.Column, error) {
	f.columnCalls++
	if c, ok := f.columns[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLookup) CardByID(ctx context.Context, id string) (*model.Card, error) {
	f.cardCalls++
	if c, ok := f.cards[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLookup) MembershipFor(ctx context.Context, boardID, userID string) (*model.BoardMember, error) {
	if m, ok := f.members[boardID+"/"+userID]; ok && m.IsActive {
		return m, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLookup) member(boardID, userID string, role model.Role, perms model.Permissions) {
	f.members[boardID+"/"+userID] = &model.BoardMember{
		BoardID:     boardID,
		UserID:      userID,
		Role:        role,
		IsActive:    true,
		Permissions: datatypes.NewJSONType(perms),
	}
}

func seeded() *fakeLookup {
	f := newFakeLookup()
	f.boards["b1"] = &model.Board{ID: "b1", OwnerID: "owner"}
	f.boards["b2"] = &model.Board{ID: "b2", OwnerID: "owner"}
	f.columns["col1"] = &model.Column{ID: "col1", BoardID: "b1"}
	f.columns["col2"] = &model.Column{ID: "col2", BoardID: "b2"}
	f.cards["card1"] = &model.Card{ID: "card1", ColumnID: "col1", BoardID: "b1"}
	return f
}

func expectKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	appErr := apperr.As(err)
	if appErr == nil || appErr.Kind != kind {
		t.Fatalf("expected kind %v, got %v", kind, err)
	}
	return appErr
}

func TestOwnerBypassesPermissionMap(t *testing.T) {
	f := seeded()
	// 即使成员行的权限表被清空，所有者仍然拥有全部能力
	f.member("b1", "owner", model.RoleMember, model.Permissions{})
	r := NewResolver(f)

	d, err := r.Resolve(context.Background(), "owner", Target{BoardID: "b1"}, model.CanDeleteBoard)
	if err != nil {
		t.Fatalf("owner should be allowed: %v", err)
	}
	if !d.Owner || d.Role() != model.RoleOwner {
		t.Fatalf("expected owner decision, got %+v", d)
	}
}

func TestViewerLacksCapability(t *testing.T) {
	f := seeded()
	f.member("b1", "viewer", model.RoleViewer, model.DefaultPermissions(model.RoleViewer))
	r := NewResolver(f)

	_, err := r.Resolve(context.Background(), "viewer", Target{BoardID: "b1"}, model.CanEditBoard)
	appErr := expectKind(t, err, apperr.KindForbidden)
	if !strings.Contains(appErr.Message, "canEditBoard") {
		t.Fatalf("message should name the capability: %q", appErr.Message)
	}

	if _, err := r.Resolve(context.Background(), "viewer", Target{BoardID: "b1"}, model.CapabilityNone); err != nil {
		t.Fatalf("viewer passes membership-only checks: %v", err)
	}
}

func TestAdminIsWildcard(t *testing.T) {
	f := seeded()
	f.member("b1", "admin", model.RoleAdmin, model.Permissions{})
	r := NewResolver(f)

	if _, err := r.Resolve(context.Background(), "admin", Target{BoardID: "b1"}, model.CanDeleteBoard); err != nil {
		t.Fatalf("admin should bypass the map: %v", err)
	}
}

func TestNonMemberForbidden(t *testing.T) {
	r := NewResolver(seeded())
	_, err := r.Resolve(context.Background(), "stranger", Target{BoardID: "b1"}, model.CapabilityNone)
	appErr := expectKind(t, err, apperr.KindForbidden)
	if appErr.Message != "Not a board member" {
		t.Fatalf("unexpected message %q", appErr.Message)
	}
}

func TestResolutionOrder(t *testing.T) {
	f := seeded()
	r := NewResolver(f)
	ctx := context.Background()

	cases := []struct {
		name   string
		target Target
		want   string
	}{
		{"board param wins", Target{BoardID: "b2", ColumnID: "col1"}, "b2"},
		{"column param before body", Target{ColumnID: "col2", Body: BodyRefs{BoardID: "b1"}}, "b2"},
		{"missing column falls through to body board", Target{ColumnID: "nope", Body: BodyRefs{BoardID: "b1"}}, "b1"},
		{"body board before body column", Target{Body: BodyRefs{BoardID: "b1", ColumnID: "col2"}}, "b1"},
		{"body column", Target{Body: BodyRefs{ColumnID: "col2"}}, "b2"},
		{"target column", Target{Body: BodyRefs{ColumnID: "nope", TargetColumnID: "col2"}, CardID: "card1"}, "b2"},
		{"card param last", Target{CardID: "card1"}, "b1"},
		{"nothing", Target{CardID: "missing"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.ResolveBoardID(ctx, tc.target)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDeferredWhenOnlyCardParamPresent(t *testing.T) {
	f := seeded()
	r := NewResolver(f)

	d, err := r.Resolve(context.Background(), "owner", Target{CardID: "missing"}, model.CanEditCards)
	if err != nil {
		t.Fatalf("expected deferral, got %v", err)
	}
	if !d.Deferred {
		t.Fatalf("expected deferred decision")
	}

	_, err = r.Resolve(context.Background(), "owner", Target{ColumnID: "missing"}, model.CanEditCards)
	appErr := expectKind(t, err, apperr.KindNotFound)
	if appErr.Message != "Board not found" {
		t.Fatalf("unexpected message %q", appErr.Message)
	}
}

func TestResolvedBoardMissingIsNotFound(t *testing.T) {
	r := NewResolver(seeded())
	_, err := r.Resolve(context.Background(), "owner", Target{BoardID: "gone"}, model.CapabilityNone)
	expectKind(t, err, apperr.KindNotFound)
}

func TestLookupFailureIsInternal(t *testing.T) {
	f := seeded()
	f.boardErr = errors.New("connection reset")
	r := NewResolver(f)
	_, err := r.Resolve(context.Background(), "owner", Target{BoardID: "b1"}, model.CapabilityNone)
	expectKind(t, err, apperr.KindInternal)
}

func TestBoardParamSkipsLookups(t *testing.T) {
	f := seeded()
	r := NewResolver(f)
	if _, err := r.ResolveBoardID(context.Background(), Target{BoardID: "b1", ColumnID: "col1", CardID: "card1"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if f.columnCalls != 0 || f.cardCalls != 0 {
		t.Fatalf("expected no lookups, got column=%d card=%d", f.columnCalls, f.cardCalls)
	}
}
