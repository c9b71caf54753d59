package rbac

import "sikap/api/internal/store"

// VisibleArchives filters a folder's archives for the requester. The folder
// owner and admins see everything; other users see what they uploaded and
// what was shared with them directly. Input order is kept and share lists
// are stripped from the result.
func VisibleArchives(folder store.Folder, archives []store.Archive, p Principal) []store.Archive {
	seeAll := p.Role == RoleAdmin || folder.OwnerID == p.UserID
	visible := make([]store.Archive, 0, len(archives))
	for _, archive := range archives {
		if !seeAll && archive.UploaderID != p.UserID && !contains(archive.SharedWith, p.UserID) {
			continue
		}
		archive.SharedWith = nil
		visible = append(visible, archive)
	}
	return visible
}

func contains(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
