package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"
)

type refreshSession struct {
	userID    int64
	expiresAt time.Time
	revoked   bool
}

// MemoryStore keeps every record in process memory. It follows the same
// constraint rules as the Postgres schema: unique emails, cascading deletes
// for users and folders, and RESTRICT on categories that still have links.
type MemoryStore struct {
	mu sync.RWMutex

	// Now stamps created rows and evaluates expiries.
	Now func() time.Time

	nextID int64

	roles         map[int64]Role
	users         map[int64]User
	folders       map[int64]Folder
	folderShares  map[int64]map[int64]struct{}
	archives      map[int64]Archive
	archiveShares map[int64]map[int64]struct{}
	categories    map[int64]Category
	links         map[int64]Link
	messages      map[int64]Message
	notifications map[int64]Notification
	refresh       map[string]refreshSession
	revoked       map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:           func() time.Time { return time.Now().UTC() },
		roles:         map[int64]Role{},
		users:         map[int64]User{},
		folders:       map[int64]Folder{},
		folderShares:  map[int64]map[int64]struct{}{},
		archives:      map[int64]Archive{},
		archiveShares: map[int64]map[int64]struct{}{},
		categories:    map[int64]Category{},
		links:         map[int64]Link{},
		messages:      map[int64]Message{},
		notifications: map[int64]Notification{},
		refresh:       map[string]refreshSession{},
		revoked:       map[string]time.Time{},
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func containsFold(value, search string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(strings.TrimSpace(search)))
}

func page[T any](items []T, params ListParams) []T {
	params = params.Normalize()
	start := params.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + params.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func shareList(shares map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(shares))
	for id := range shares {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func newestFirst(a, b time.Time, idA, idB int64) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return idA > idB
}

// Roles

func (s *MemoryStore) EnsureRole(_ context.Context, name string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.Name == name {
			return role, nil
		}
	}
	role := Role{ID: s.id(), Name: name}
	s.roles[role.ID] = role
	return role, nil
}

func (s *MemoryStore) GetRoleByName(_ context.Context, name string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if strings.EqualFold(role.Name, strings.TrimSpace(name)) {
			return role, nil
		}
	}
	return Role{}, sql.ErrNoRows
}

func (s *MemoryStore) GetRoleByID(_ context.Context, id int64) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return Role{}, sql.ErrNoRows
	}
	return role, nil
}

func (s *MemoryStore) ListRoles(context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		items = append(items, role)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *MemoryStore) Stats(context.Context) (DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := DashboardStats{TotalUsers: len(s.users), TotalCategories: len(s.categories)}
	for _, link := range s.links {
		if link.IsActive {
			stats.ActiveLinks++
		} else {
			stats.InactiveLinks++
		}
	}
	return stats, nil
}

// Sessions

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = refreshSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.refresh[tokenHash]; ok {
		session.revoked = true
		s.refresh[tokenHash] = session
	}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.refresh[tokenHash]
	if !ok || session.revoked || !session.expiresAt.After(s.Now()) {
		return 0, sql.ErrNoRows
	}
	return session.userID, nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = expiresAt
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiresAt, ok := s.revoked[jti]
	return ok && expiresAt.After(s.Now()), nil
}

// Users

func (s *MemoryStore) withRole(user User) User {
	user.Role = s.roles[user.RoleID].Name
	return user
}

func (s *MemoryStore) emailTaken(email string, except int64) bool {
	for _, user := range s.users {
		if user.ID != except && strings.EqualFold(user.Email, email) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if s.emailTaken(user.Email, 0) {
		return User{}, ErrDuplicate
	}
	if _, ok := s.roles[user.RoleID]; !ok {
		return User{}, ErrReferenced
	}
	now := s.Now()
	user.ID = s.id()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.ResetToken = ""
	user.ResetTokenExpiry = nil
	s.users[user.ID] = user
	return s.withRole(user), nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return s.withRole(user), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return s.withRole(user), nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (s *MemoryStore) GetUserByResetToken(_ context.Context, token string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if token != "" && user.ResetToken == token && user.ResetTokenExpiry != nil && user.ResetTokenExpiry.After(s.Now()) {
			return s.withRole(user), nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (s *MemoryStore) sortedUsers(match func(User) bool) []User {
	items := make([]User, 0)
	for _, user := range s.users {
		if match(user) {
			items = append(items, s.withRole(user))
		}
	}
	return items
}

func (s *MemoryStore) ListUsers(_ context.Context, params ListParams) ([]User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.sortedUsers(func(u User) bool {
		return params.Search == "" || containsFold(u.Name, params.Search) || containsFold(u.Email, params.Search)
	})
	sort.Slice(items, func(i, j int) bool {
		return newestFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return page(items, params), len(items), nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if s.emailTaken(email, user.ID) {
		return ErrDuplicate
	}
	if _, ok := s.roles[user.RoleID]; !ok {
		return ErrReferenced
	}
	current.Name = user.Name
	current.Email = email
	current.RoleID = user.RoleID
	current.IsActive = user.IsActive
	current.UpdatedAt = s.Now()
	s.users[user.ID] = current
	return nil
}

func (s *MemoryStore) UpdateUserProfile(_ context.Context, id int64, name, email, photo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if s.emailTaken(email, id) {
		return ErrDuplicate
	}
	current.Name = name
	current.Email = email
	current.Photo = photo
	current.UpdatedAt = s.Now()
	s.users[id] = current
	return nil
}

func (s *MemoryStore) UpdateUserPassword(_ context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	current.PasswordHash = passwordHash
	current.ResetToken = ""
	current.ResetTokenExpiry = nil
	current.UpdatedAt = s.Now()
	s.users[id] = current
	return nil
}

func (s *MemoryStore) SetPasswordResetToken(_ context.Context, id int64, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	current.ResetToken = token
	current.ResetTokenExpiry = &expiresAt
	current.UpdatedAt = s.Now()
	s.users[id] = current
	return nil
}

func (s *MemoryStore) DeleteUsers(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if _, ok := s.users[id]; !ok {
			continue
		}
		delete(s.users, id)
		deleted++

		owned := make([]int64, 0)
		for _, folder := range s.folders {
			if folder.OwnerID == id {
				owned = append(owned, folder.ID)
			}
		}
		s.deleteFolderTrees(owned)
		for archiveID, archive := range s.archives {
			if archive.UploaderID == id {
				s.deleteArchive(archiveID)
			}
		}
		for _, shares := range s.folderShares {
			delete(shares, id)
		}
		for _, shares := range s.archiveShares {
			delete(shares, id)
		}
		for categoryID, category := range s.categories {
			if category.InChargeID != nil && *category.InChargeID == id {
				category.InChargeID = nil
				s.categories[categoryID] = category
			}
		}
		for messageID, msg := range s.messages {
			if msg.SenderID == id || msg.ReceiverID == id {
				s.deleteMessage(messageID)
			}
		}
		for notificationID, n := range s.notifications {
			if n.UserID == id {
				delete(s.notifications, notificationID)
			}
		}
		for hash, session := range s.refresh {
			if session.userID == id {
				delete(s.refresh, hash)
			}
		}
	}
	return deleted, nil
}

func (s *MemoryStore) SearchContacts(_ context.Context, q ContactQuery) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	items := s.sortedUsers(func(u User) bool {
		if !u.IsActive || u.ID == q.SelfID {
			return false
		}
		if q.AdminsOnly && s.roles[u.RoleID].Name != "admin" {
			return false
		}
		return q.Search == "" || containsFold(u.Name, q.Search) || containsFold(u.Email, q.Search)
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) ListAdmins(context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.sortedUsers(func(u User) bool { return u.IsActive && s.roles[u.RoleID].Name == "admin" })
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// Folders

func (s *MemoryStore) hydrateFolder(folder Folder) Folder {
	folder.OwnerName = s.users[folder.OwnerID].Name
	folder.ArchiveCount = 0
	for _, archive := range s.archives {
		if archive.FolderID == folder.ID {
			folder.ArchiveCount++
		}
	}
	folder.SharedWith = shareList(s.folderShares[folder.ID])
	return folder
}

func (s *MemoryStore) CreateFolder(_ context.Context, folder Folder) (Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[folder.OwnerID]; !ok {
		return Folder{}, ErrReferenced
	}
	if folder.ParentID != nil {
		if _, ok := s.folders[*folder.ParentID]; !ok {
			return Folder{}, ErrReferenced
		}
	}
	folder.ID = s.id()
	folder.CreatedAt = s.Now()
	folder.SharedWith = nil
	s.folders[folder.ID] = folder
	return s.hydrateFolder(folder), nil
}

func (s *MemoryStore) GetFolder(_ context.Context, id int64) (Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	folder, ok := s.folders[id]
	if !ok {
		return Folder{}, sql.ErrNoRows
	}
	return s.hydrateFolder(folder), nil
}

func (s *MemoryStore) ListFolders(_ context.Context, filter FolderFilter) ([]Folder, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Folder, 0)
	for _, folder := range s.folders {
		if !filter.All {
			_, shared := s.folderShares[folder.ID][filter.ViewerID]
			if folder.OwnerID != filter.ViewerID && !shared {
				continue
			}
		}
		if filter.Search != "" && !containsFold(folder.Name, filter.Search) {
			continue
		}
		switch {
		case filter.ParentID != nil:
			if folder.ParentID == nil || *folder.ParentID != *filter.ParentID {
				continue
			}
		case filter.RootOnly:
			if folder.ParentID != nil {
				continue
			}
		}
		hydrated := s.hydrateFolder(folder)
		hydrated.SharedWith = nil
		items = append(items, hydrated)
	}
	sort.Slice(items, func(i, j int) bool {
		return newestFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return page(items, filter.ListParams), len(items), nil
}

func (s *MemoryStore) ListSubfolders(_ context.Context, parentID int64) ([]Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Folder, 0)
	for _, folder := range s.folders {
		if folder.ParentID != nil && *folder.ParentID == parentID {
			items = append(items, s.hydrateFolder(folder))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return newestFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return items, nil
}

func (s *MemoryStore) RenameFolder(_ context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder, ok := s.folders[id]
	if !ok {
		return sql.ErrNoRows
	}
	folder.Name = name
	s.folders[id] = folder
	return nil
}

// deleteFolderTrees removes folders, their descendants and archives and
// returns the stored file paths of the removed archives.
func (s *MemoryStore) deleteFolderTrees(ids []int64) []string {
	tree := map[int64]struct{}{}
	queue := append([]int64(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := tree[id]; seen {
			continue
		}
		if _, ok := s.folders[id]; !ok {
			continue
		}
		tree[id] = struct{}{}
		for _, folder := range s.folders {
			if folder.ParentID != nil && *folder.ParentID == id {
				queue = append(queue, folder.ID)
			}
		}
	}

	paths := make([]string, 0)
	for archiveID, archive := range s.archives {
		if _, ok := tree[archive.FolderID]; ok {
			paths = append(paths, archive.FilePath)
			s.deleteArchive(archiveID)
		}
	}
	for id := range tree {
		delete(s.folders, id)
		delete(s.folderShares, id)
	}
	sort.Strings(paths)
	return paths
}

func (s *MemoryStore) DeleteFolders(_ context.Context, ids []int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteFolderTrees(ids), nil
}

func (s *MemoryStore) replaceShares(shares map[int64]map[int64]struct{}, key int64, userIDs []int64) error {
	for _, userID := range userIDs {
		if _, ok := s.users[userID]; !ok {
			return ErrReferenced
		}
	}
	next := make(map[int64]struct{}, len(userIDs))
	for _, userID := range userIDs {
		next[userID] = struct{}{}
	}
	shares[key] = next
	return nil
}

func (s *MemoryStore) ReplaceFolderShares(_ context.Context, folderID int64, userIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[folderID]; !ok {
		return ErrReferenced
	}
	return s.replaceShares(s.folderShares, folderID, userIDs)
}

func (s *MemoryStore) usersByID(ids []int64) []User {
	items := make([]User, 0, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			items = append(items, s.withRole(user))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

func (s *MemoryStore) ListFolderShares(_ context.Context, folderID int64) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usersByID(shareList(s.folderShares[folderID])), nil
}

// Archives

func (s *MemoryStore) hydrateArchive(archive Archive) Archive {
	archive.FolderOwnerID = s.folders[archive.FolderID].OwnerID
	archive.UploaderName = s.users[archive.UploaderID].Name
	archive.SharedWith = shareList(s.archiveShares[archive.ID])
	return archive
}

func (s *MemoryStore) sortedArchives(match func(Archive) bool) []Archive {
	items := make([]Archive, 0)
	for _, archive := range s.archives {
		if match(archive) {
			items = append(items, s.hydrateArchive(archive))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return newestFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return items
}

func (s *MemoryStore) CreateArchive(_ context.Context, archive Archive) (Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[archive.FolderID]; !ok {
		return Archive{}, ErrReferenced
	}
	if _, ok := s.users[archive.UploaderID]; !ok {
		return Archive{}, ErrReferenced
	}
	archive.ID = s.id()
	archive.CreatedAt = s.Now()
	archive.SharedWith = nil
	s.archives[archive.ID] = archive
	return s.hydrateArchive(archive), nil
}

func (s *MemoryStore) GetArchive(_ context.Context, id int64) (Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	archive, ok := s.archives[id]
	if !ok {
		return Archive{}, sql.ErrNoRows
	}
	return s.hydrateArchive(archive), nil
}

func (s *MemoryStore) GetArchives(_ context.Context, ids []int64) ([]Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return s.sortedArchives(func(a Archive) bool {
		_, ok := want[a.ID]
		return ok
	}), nil
}

func (s *MemoryStore) ListFolderArchives(_ context.Context, folderID int64) ([]Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedArchives(func(a Archive) bool { return a.FolderID == folderID }), nil
}

func (s *MemoryStore) deleteArchive(id int64) {
	delete(s.archives, id)
	delete(s.archiveShares, id)
}

func (s *MemoryStore) DeleteArchives(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if _, ok := s.archives[id]; ok {
			s.deleteArchive(id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) ReplaceArchiveShares(_ context.Context, archiveID int64, userIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.archives[archiveID]; !ok {
		return ErrReferenced
	}
	return s.replaceShares(s.archiveShares, archiveID, userIDs)
}

func (s *MemoryStore) ListArchiveShares(_ context.Context, archiveID int64) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usersByID(shareList(s.archiveShares[archiveID])), nil
}

func (s *MemoryStore) SearchArchives(_ context.Context, q ArchiveQuery) ([]Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	items := s.sortedArchives(func(a Archive) bool {
		if q.Text != "" && !containsFold(a.Title, q.Text) && !containsFold(a.FileName, q.Text) {
			return false
		}
		if q.FolderID != nil && a.FolderID != *q.FolderID {
			return false
		}
		if q.All {
			return true
		}
		_, shared := s.archiveShares[a.ID][q.ViewerID]
		return a.UploaderID == q.ViewerID || s.folders[a.FolderID].OwnerID == q.ViewerID || shared
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Categories

func (s *MemoryStore) hydrateCategory(category Category) Category {
	category.InChargeName = ""
	if category.InChargeID != nil {
		category.InChargeName = s.users[*category.InChargeID].Name
	}
	category.LinkCount = 0
	for _, link := range s.links {
		if link.CategoryID == category.ID {
			category.LinkCount++
		}
	}
	return category
}

func (s *MemoryStore) sortedCategories(match func(Category) bool) []Category {
	items := make([]Category, 0)
	for _, category := range s.categories {
		if match(category) {
			items = append(items, s.hydrateCategory(category))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func (s *MemoryStore) ListCategories(_ context.Context, params ListParams) ([]Category, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.sortedCategories(func(c Category) bool {
		return params.Search == "" || containsFold(c.Name, params.Search)
	})
	return page(items, params), len(items), nil
}

func (s *MemoryStore) ListAllCategories(context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedCategories(func(Category) bool { return true }), nil
}

func (s *MemoryStore) GetCategory(_ context.Context, id int64) (Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	category, ok := s.categories[id]
	if !ok {
		return Category{}, sql.ErrNoRows
	}
	return s.hydrateCategory(category), nil
}

func (s *MemoryStore) GetCategoryByName(_ context.Context, name string) (Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.sortedCategories(func(c Category) bool { return c.Name == name })
	if len(items) == 0 {
		return Category{}, sql.ErrNoRows
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items[0], nil
}

func (s *MemoryStore) CreateCategory(_ context.Context, category Category) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category.InChargeID != nil {
		if _, ok := s.users[*category.InChargeID]; !ok {
			return Category{}, ErrReferenced
		}
	}
	category.ID = s.id()
	s.categories[category.ID] = category
	return s.hydrateCategory(category), nil
}

func (s *MemoryStore) UpdateCategory(_ context.Context, category Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.categories[category.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if category.InChargeID != nil {
		if _, ok := s.users[*category.InChargeID]; !ok {
			return ErrReferenced
		}
	}
	current.Name = category.Name
	current.InChargeID = category.InChargeID
	s.categories[category.ID] = current
	return nil
}

func (s *MemoryStore) DeleteCategories(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		for _, link := range s.links {
			if link.CategoryID == id {
				return 0, ErrReferenced
			}
		}
	}
	var deleted int64
	for _, id := range ids {
		if _, ok := s.categories[id]; ok {
			delete(s.categories, id)
			deleted++
		}
	}
	return deleted, nil
}

// Links

func (s *MemoryStore) hydrateLink(link Link) Link {
	link.CategoryName = s.categories[link.CategoryID].Name
	return link
}

func (s *MemoryStore) ListLinks(_ context.Context, filter LinkFilter) ([]Link, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Link, 0)
	for _, link := range s.links {
		if filter.Search != "" && !containsFold(link.Title, filter.Search) && !containsFold(link.URL, filter.Search) {
			continue
		}
		if filter.CategoryID != nil && link.CategoryID != *filter.CategoryID {
			continue
		}
		if filter.Active != nil && link.IsActive != *filter.Active {
			continue
		}
		items = append(items, s.hydrateLink(link))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return page(items, filter.ListParams), len(items), nil
}

func (s *MemoryStore) ListActiveLinks(context.Context) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Link, 0)
	for _, link := range s.links {
		if link.IsActive {
			items = append(items, s.hydrateLink(link))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.CategoryName != b.CategoryName {
			return a.CategoryName < b.CategoryName
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
	return items, nil
}

func (s *MemoryStore) GetLink(_ context.Context, id int64) (Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[id]
	if !ok {
		return Link{}, sql.ErrNoRows
	}
	return s.hydrateLink(link), nil
}

func (s *MemoryStore) CreateLink(_ context.Context, link Link) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[link.CategoryID]; !ok {
		return Link{}, ErrReferenced
	}
	link.ID = s.id()
	link.CreatedAt = s.Now()
	s.links[link.ID] = link
	return s.hydrateLink(link), nil
}

func (s *MemoryStore) UpdateLink(_ context.Context, link Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.links[link.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if _, ok := s.categories[link.CategoryID]; !ok {
		return ErrReferenced
	}
	current.Title = link.Title
	current.URL = link.URL
	current.CategoryID = link.CategoryID
	current.IsActive = link.IsActive
	s.links[link.ID] = current
	return nil
}

func (s *MemoryStore) DeleteLinks(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if _, ok := s.links[id]; ok {
			delete(s.links, id)
			deleted++
		}
	}
	return deleted, nil
}

// Messages

func (s *MemoryStore) hydrateMessage(msg Message) Message {
	msg.SenderName = s.users[msg.SenderID].Name
	msg.ReceiverName = s.users[msg.ReceiverID].Name
	msg.ReplyTo = nil
	if msg.ReplyToID != nil {
		if quoted, ok := s.messages[*msg.ReplyToID]; ok {
			msg.ReplyTo = &MessageRef{
				ID:         quoted.ID,
				SenderID:   quoted.SenderID,
				SenderName: s.users[quoted.SenderID].Name,
				Content:    quoted.Content,
			}
		}
	}
	return msg
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[msg.SenderID]; !ok {
		return Message{}, ErrReferenced
	}
	if _, ok := s.users[msg.ReceiverID]; !ok {
		return Message{}, ErrReferenced
	}
	if msg.ReplyToID != nil {
		if _, ok := s.messages[*msg.ReplyToID]; !ok {
			return Message{}, ErrReferenced
		}
	}
	msg.ID = s.id()
	msg.IsRead = false
	msg.CreatedAt = s.Now()
	s.messages[msg.ID] = msg
	return s.hydrateMessage(msg), nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id int64) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return Message{}, sql.ErrNoRows
	}
	return s.hydrateMessage(msg), nil
}

func (s *MemoryStore) filterMessages(match func(Message) bool) []Message {
	items := make([]Message, 0)
	for _, msg := range s.messages {
		if match(msg) {
			items = append(items, s.hydrateMessage(msg))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return newestFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return items
}

func (s *MemoryStore) ListMessagesBetween(_ context.Context, userID, partnerID int64) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.filterMessages(func(m Message) bool {
		return (m.SenderID == userID && m.ReceiverID == partnerID) || (m.SenderID == partnerID && m.ReceiverID == userID)
	})
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *MemoryStore) ListMessagesFor(_ context.Context, userID int64) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterMessages(func(m Message) bool { return m.SenderID == userID || m.ReceiverID == userID }), nil
}

func (s *MemoryStore) MarkMessagesRead(_ context.Context, senderID, receiverID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for id, msg := range s.messages {
		if msg.SenderID == senderID && msg.ReceiverID == receiverID && !msg.IsRead {
			msg.IsRead = true
			s.messages[id] = msg
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) deleteMessage(id int64) {
	delete(s.messages, id)
	for otherID, msg := range s.messages {
		if msg.ReplyToID != nil && *msg.ReplyToID == id {
			msg.ReplyToID = nil
			s.messages[otherID] = msg
		}
	}
}

func (s *MemoryStore) DeleteMessage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return sql.ErrNoRows
	}
	s.deleteMessage(id)
	return nil
}

// Notifications

func (s *MemoryStore) CreateNotification(_ context.Context, n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[n.UserID]; !ok {
		return Notification{}, ErrReferenced
	}
	n.ID = s.id()
	n.IsRead = false
	n.CreatedAt = s.Now()
	s.notifications[n.ID] = n
	return n, nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID int64, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Notification, 0)
	for _, n := range s.notifications {
		if n.UserID == userID {
			items = append(items, n)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return newestFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) CountUnreadNotifications(_ context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkNotificationsRead(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for id, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			s.notifications[id] = n
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) DeleteNotifications(_ context.Context, userID int64, window NotificationWindow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, n := range s.notifications {
		if n.UserID != userID {
			continue
		}
		if !window.Since.IsZero() && n.CreatedAt.Before(window.Since) {
			continue
		}
		if !window.Before.IsZero() && !n.CreatedAt.Before(window.Before) {
			continue
		}
		delete(s.notifications, id)
		deleted++
	}
	return deleted, nil
}
