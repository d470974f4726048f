// Package rbac resolves workspace roles to capability sets. Roles rank
// privilege, but neither capability table is a strict total order, so both
// are kept as immutable data rather than rank comparisons.
package rbac

type Role string
type Capability string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

// Page-scope capabilities.
const (
	PageView    Capability = "view"
	PageComment Capability = "comment"
	PageEdit    Capability = "edit"
	PageDelete  Capability = "delete"
	PageArchive Capability = "archive"
	PageMove    Capability = "move"
)

// Workspace-scope capabilities.
const (
	WorkspaceView              Capability = "view"
	WorkspaceComment           Capability = "comment"
	WorkspaceEdit              Capability = "edit"
	WorkspaceDelete            Capability = "delete"
	WorkspaceInvite            Capability = "invite"
	WorkspaceManageMembers     Capability = "manage_members"
	WorkspaceEditSettings      Capability = "edit_settings"
	WorkspaceDeleteWorkspace   Capability = "delete_workspace"
	WorkspaceTransferOwnership Capability = "transfer_ownership"
)

type capabilitySet map[Capability]bool

var pagePermissions = map[Role]capabilitySet{
	RoleOwner: {
		PageView: true, PageComment: true, PageEdit: true,
		PageDelete: true, PageArchive: true, PageMove: true,
	},
	RoleAdmin: {
		PageView: true, PageComment: true, PageEdit: true,
		PageDelete: true, PageArchive: true, PageMove: true,
	},
	RoleMember: {
		PageView: true, PageComment: true, PageEdit: true,
		PageDelete: false, PageArchive: false, PageMove: true,
	},
	RoleGuest: {
		PageView: true, PageComment: true, PageEdit: false,
		PageDelete: false, PageArchive: false, PageMove: false,
	},
}

var workspacePermissions = map[Role]capabilitySet{
	RoleOwner: {
		WorkspaceView: true, WorkspaceComment: true, WorkspaceEdit: true,
		WorkspaceDelete: true, WorkspaceInvite: true, WorkspaceManageMembers: true,
		WorkspaceEditSettings: true, WorkspaceDeleteWorkspace: true, WorkspaceTransferOwnership: true,
	},
	RoleAdmin: {
		WorkspaceView: true, WorkspaceComment: true, WorkspaceEdit: true,
		WorkspaceDelete: true, WorkspaceInvite: true, WorkspaceManageMembers: true,
		WorkspaceEditSettings: true, WorkspaceDeleteWorkspace: false, WorkspaceTransferOwnership: false,
	},
	RoleMember: {
		WorkspaceView: true, WorkspaceComment: true, WorkspaceEdit: true,
		WorkspaceDelete: false, WorkspaceInvite: false, WorkspaceManageMembers: false,
		WorkspaceEditSettings: false, WorkspaceDeleteWorkspace: false, WorkspaceTransferOwnership: false,
	},
	RoleGuest: {
		WorkspaceView: true, WorkspaceComment: true, WorkspaceEdit: false,
		WorkspaceDelete: false, WorkspaceInvite: false, WorkspaceManageMembers: false,
		WorkspaceEditSettings: false, WorkspaceDeleteWorkspace: false, WorkspaceTransferOwnership: false,
	},
}

// Normalize maps an unrecognized role to guest. Unknown roles fail closed.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleOwner, RoleAdmin, RoleMember, RoleGuest:
		return Role(role)
	default:
		return RoleGuest
	}
}

// PageCan reports whether the role holds a page-scope capability.
func PageCan(role string, capability Capability) bool {
	return pagePermissions[Normalize(role)][capability]
}

// WorkspaceCan reports whether the role holds a workspace-scope capability.
func WorkspaceCan(role string, capability Capability) bool {
	return workspacePermissions[Normalize(role)][capability]
}

func IsValidRole(role string) bool {
	_, ok := pagePermissions[Role(role)]
	return ok
}
