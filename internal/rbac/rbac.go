package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionLinkWrite      Action = "link:write"
	ActionCategoryManage Action = "category:manage"
	ActionUserManage     Action = "user:manage"
	ActionUserImport     Action = "user:import"
	ActionFolderCreate   Action = "folder:create"
	ActionDashboardStats Action = "dashboard:stats"
	ActionChatContactAny Action = "chat:contact-any"
	ActionArchiveReadAll Action = "archive:read-all"
)

// policy lists the global actions each role may perform. Admin is implicit.
var policy = map[Role]map[Action]bool{
	RoleEditor: {
		ActionLinkWrite:    true,
		ActionFolderCreate: true,
	},
	RoleViewer: {
		ActionFolderCreate: true,
	},
}

// Can reports whether the policy table grants action to role.
func Can(role Role, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	return policy[role][action]
}

// Normalize maps unknown role names to viewer.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
