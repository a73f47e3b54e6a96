package model

// Role 看板成员角色。
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid 判断角色是否合法。
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Wildcard 表示该角色无需查询权限表。
func (r Role) Wildcard() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Capability 看板上的单项能力，取值与 JSON 字段名一致。
type Capability string

const (
	CanEditBoard     Capability = "canEditBoard"
	CanDeleteBoard   Capability = "canDeleteBoard"
	CanInviteMembers Capability = "canInviteMembers"
	CanRemoveMembers Capability = "canRemoveMembers"
	CanCreateColumns Capability = "canCreateColumns"
	CanEditColumns   Capability = "canEditColumns"
	CanDeleteColumns Capability = "canDeleteColumns"
	CanCreateCards   Capability = "canCreateCards"
	CanEditCards     Capability = "canEditCards"
	CanDeleteCards   Capability = "canDeleteCards"
	CanMoveCards     Capability = "canMoveCards"
	CanAssignCards   Capability = "canAssignCards"
	CanComment       Capability = "canComment"
	CanVote          Capability = "canVote"
	CapabilityNone   Capability = ""
)

// Permissions 成员权限表。
//
// 旧记录缺少的字段在反序列化时为 false。
type Permissions struct {
	CanEditBoard     bool `json:"canEditBoard"`
	CanDeleteBoard   bool `json:"canDeleteBoard"`
	CanInviteMembers bool `json:"canInviteMembers"`
	CanRemoveMembers bool `json:"canRemoveMembers"`
	CanCreateColumns bool `json:"canCreateColumns"`
	CanEditColumns   bool `json:"canEditColumns"`
	CanDeleteColumns bool `json:"canDeleteColumns"`
	CanCreateCards   bool `json:"canCreateCards"`
	CanEditCards     bool `json:"canEditCards"`
	CanDeleteCards   bool `json:"canDeleteCards"`
	CanMoveCards     bool `json:"canMoveCards"`
	CanAssignCards   bool `json:"canAssignCards"`
	CanComment       bool `json:"canComment"`
	CanVote          bool `json:"canVote"`
}

// Allows 判断权限表是否包含 c。CapabilityNone 总是返回 true。
func (p Permissions) Allows(c Capability) bool {
	switch c {
	case CapabilityNone:
		return true
	case CanEditBoard:
		return p.CanEditBoard
	case CanDeleteBoard:
		return p.CanDeleteBoard
	case CanInviteMembers:
		return p.CanInviteMembers
	case CanRemoveMembers:
		return p.CanRemoveMembers
	case CanCreateColumns:
		return p.CanCreateColumns
	case CanEditColumns:
		return p.CanEditColumns
	case CanDeleteColumns:
		return p.CanDeleteColumns
	case CanCreateCards:
		return p.CanCreateCards
	case CanEditCards:
		return p.CanEditCards
	case CanDeleteCards:
		return p.CanDeleteCards
	case CanMoveCards:
		return p.CanMoveCards
	case CanAssignCards:
		return p.CanAssignCards
	case CanComment:
		return p.CanComment
	case CanVote:
		return p.CanVote
	}
	return false
}

// Capabilities 全部能力，顺序与 Permissions 字段一致。
var Capabilities = []Capability{
	CanEditBoard, CanDeleteBoard, CanInviteMembers, CanRemoveMembers,
	CanCreateColumns, CanEditColumns, CanDeleteColumns,
	CanCreateCards, CanEditCards, CanDeleteCards, CanMoveCards, CanAssignCards,
	CanComment, CanVote,
}

// Covers 判断 q 中的每项能力 p 都具备。
func (p Permissions) Covers(q Permissions) bool {
	for _, c := range Capabilities {
		if q.Allows(c) && !p.Allows(c) {
			return false
		}
	}
	return true
}

// AllPermissions 全部能力为 true。
func AllPermissions() Permissions {
	return Permissions{
		CanEditBoard:     true,
		CanDeleteBoard:   true,
		CanInviteMembers: true,
		CanRemoveMembers: true,
		CanCreateColumns: true,
		CanEditColumns:   true,
		CanDeleteColumns: true,
		CanCreateCards:   true,
		CanEditCards:     true,
		CanDeleteCards:   true,
		CanMoveCards:     true,
		CanAssignCards:   true,
		CanComment:       true,
		CanVote:          true,
	}
}

// DefaultPermissions 返回角色的预设权限。
func DefaultPermissions(role Role) Permissions {
	switch role {
	case RoleOwner, RoleAdmin:
		return AllPermissions()
	case RoleMember:
		return Permissions{
			CanCreateColumns: true,
			CanEditColumns:   true,
			CanCreateCards:   true,
			CanEditCards:     true,
			CanMoveCards:     true,
			CanAssignCards:   true,
			CanComment:       true,
			CanVote:          true,
		}
	default:
		return Permissions{}
	}
}
