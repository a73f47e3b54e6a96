package model

import (
	"encoding/json"
	"testing"

	"gorm.io/datatypes"
)

func TestDefaultPermissionsByRole(t *testing.T) {
	member := DefaultPermissions(RoleMember)
	if member.CanEditBoard || member.CanDeleteBoard || member.CanDeleteCards || member.CanDeleteColumns {
		t.Fatalf("member preset should not include destructive capabilities: %+v", member)
	}
	if !member.CanCreateCards || !member.CanMoveCards || !member.CanComment || !member.CanVote {
		t.Fatalf("member preset missing card capabilities: %+v", member)
	}
	if DefaultPermissions(RoleViewer) != (Permissions{}) {
		t.Fatalf("viewer preset should be empty")
	}
	if DefaultPermissions(RoleAdmin) != AllPermissions() {
		t.Fatalf("admin preset should grant everything")
	}
}

func TestPermissionsAllows(t *testing.T) {
	p := Permissions{CanEditCards: true}
	if !p.Allows(CanEditCards) {
		t.Fatalf("expected canEditCards")
	}
	if p.Allows(CanEditBoard) {
		t.Fatalf("did not expect canEditBoard")
	}
	if !p.Allows(CapabilityNone) {
		t.Fatalf("membership-only check should pass")
	}
	if p.Allows(Capability("canFly")) {
		t.Fatalf("unknown capability must be denied")
	}
}

func TestPermissionsMissingKeysDecodeFalse(t *testing.T) {
	// 早期记录没有 canVote 字段
	var p Permissions
	if err := json.Unmarshal([]byte(`{"canEditBoard":true,"canComment":true,"legacyFlag":true}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.CanEditBoard || !p.CanComment {
		t.Fatalf("expected stored keys to survive: %+v", p)
	}
	if p.CanVote {
		t.Fatalf("missing key should decode as false")
	}
}

func TestMemberCan(t *testing.T) {
	viewer := &BoardMember{Role: RoleViewer, IsActive: true, Permissions: datatypes.NewJSONType(DefaultPermissions(RoleViewer))}
	if viewer.Can(CanEditBoard) {
		t.Fatalf("viewer must not edit the board")
	}
	if !viewer.Can(CapabilityNone) {
		t.Fatalf("viewer is still a member")
	}

	admin := &BoardMember{Role: RoleAdmin, IsActive: true}
	if !admin.Can(CanDeleteBoard) {
		t.Fatalf("admin is a wildcard role")
	}

	inactive := &BoardMember{Role: RoleAdmin, IsActive: false}
	if inactive.Can(CapabilityNone) {
		t.Fatalf("inactive membership grants nothing")
	}
}

func TestColumnAcceptsCard(t *testing.T) {
	limit := 2
	col := &Column{CardLimit: &limit, Settings: datatypes.NewJSONType(DefaultColumnSettings())}
	if !col.AcceptsCard(1) {
		t.Fatalf("expected room for a second card")
	}
	if col.AcceptsCard(2) {
		t.Fatalf("limit reached")
	}

	closed := DefaultColumnSettings()
	closed.AllowNewCards = false
	col = &Column{Settings: datatypes.NewJSONType(closed)}
	if col.AcceptsCard(0) {
		t.Fatalf("column does not allow new cards")
	}
}

func TestActivityTypeClosedSet(t *testing.T) {
	if !ActivityCardMoved.Valid() || !ActivityDueDateRemoved.Valid() {
		t.Fatalf("expected known types to be valid")
	}
	if ActivityType("columns_reordered").Valid() {
		t.Fatalf("columns_reordered is not part of the closed set")
	}
	if len(activityTypes) != 38 {
		t.Fatalf("expected 38 activity types, got %d", len(activityTypes))
	}
}
