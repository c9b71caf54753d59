package rbac

// Principal is the authenticated caller as seen by the access predicate.
type Principal struct {
	UserID int64
	Role   Role
}

// Resource describes ownership of a folder or archive. ContainerOwnerID is
// the owner of the enclosing folder for archives and zero otherwise.
type Resource struct {
	OwnerID          int64
	ContainerOwnerID int64
	SharedWith       []int64
}

type Access int

const (
	AccessRead Access = iota
	AccessUpdate
	AccessDelete
	AccessShare
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessUpdate:
		return "update"
	case AccessDelete:
		return "delete"
	case AccessShare:
		return "share"
	default:
		return "unknown"
	}
}

// CanAccess decides resource-scoped permissions: admin always, the owner for
// everything, the container owner for read and delete, shared users for read.
func CanAccess(p Principal, r Resource, a Access) bool {
	if p.UserID == 0 {
		return false
	}
	if p.Role == RoleAdmin {
		return true
	}
	if r.OwnerID == p.UserID {
		return true
	}
	if r.ContainerOwnerID != 0 && r.ContainerOwnerID == p.UserID {
		return a == AccessRead || a == AccessDelete
	}
	if a != AccessRead {
		return false
	}
	return contains(r.SharedWith, p.UserID)
}
