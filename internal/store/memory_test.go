package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryFixture struct {
	store  *MemoryStore
	admin  User
	editor User
	viewer User
}

func newMemoryFixture(t *testing.T) memoryFixture {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()

	roles := map[string]Role{}
	for _, name := range []string{"admin", "editor", "viewer"} {
		role, err := s.EnsureRole(ctx, name)
		require.NoError(t, err)
		roles[name] = role
	}
	create := func(name, email, role string) User {
		user, err := s.CreateUser(ctx, User{Name: name, Email: email, PasswordHash: "x", RoleID: roles[role].ID, IsActive: true})
		require.NoError(t, err)
		return user
	}
	return memoryFixture{
		store:  s,
		admin:  create("Ada", "ada@example.com", "admin"),
		editor: create("Eddie", "eddie@example.com", "editor"),
		viewer: create("Vera", "vera@example.com", "viewer"),
	}
}

func TestMemoryStoreUsers(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	t.Run("email is unique case-insensitively", func(t *testing.T) {
		role, err := f.store.GetRoleByName(ctx, "VIEWER")
		require.NoError(t, err)
		_, err = f.store.CreateUser(ctx, User{Name: "Dup", Email: " ADA@example.com ", RoleID: role.ID})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("lookup by email joins role", func(t *testing.T) {
		user, err := f.store.GetUserByEmail(ctx, "Eddie@Example.com")
		require.NoError(t, err)
		assert.Equal(t, "editor", user.Role)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := f.store.GetUserByID(ctx, 999)
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("list paginates and searches", func(t *testing.T) {
		items, total, err := f.store.ListUsers(ctx, ListParams{Search: "e", Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, items, 2)

		items, total, err = f.store.ListUsers(ctx, ListParams{Search: "vera"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, f.viewer.ID, items[0].ID)
	})

	t.Run("contacts skip self and inactive", func(t *testing.T) {
		items, err := f.store.SearchContacts(ctx, ContactQuery{SelfID: f.viewer.ID})
		require.NoError(t, err)
		names := []string{}
		for _, u := range items {
			names = append(names, u.Name)
		}
		assert.Equal(t, []string{"Ada", "Eddie"}, names)

		admins, err := f.store.SearchContacts(ctx, ContactQuery{SelfID: f.viewer.ID, AdminsOnly: true})
		require.NoError(t, err)
		require.Len(t, admins, 1)
		assert.Equal(t, f.admin.ID, admins[0].ID)
	})
}

func TestMemoryStoreResetToken(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.store.Now = func() time.Time { return now }

	require.NoError(t, f.store.SetPasswordResetToken(ctx, f.viewer.ID, "tok", now.Add(time.Hour)))
	user, err := f.store.GetUserByResetToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, f.viewer.ID, user.ID)

	now = now.Add(2 * time.Hour)
	_, err = f.store.GetUserByResetToken(ctx, "tok")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, f.store.UpdateUserPassword(ctx, f.viewer.ID, "new"))
	user, err = f.store.GetUserByID(ctx, f.viewer.ID)
	require.NoError(t, err)
	assert.Empty(t, user.ResetToken)
	assert.Nil(t, user.ResetTokenExpiry)
}

func TestMemoryStoreFolderTreeDelete(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	root, err := f.store.CreateFolder(ctx, Folder{Name: "root", OwnerID: f.editor.ID})
	require.NoError(t, err)
	child, err := f.store.CreateFolder(ctx, Folder{Name: "child", OwnerID: f.editor.ID, ParentID: &root.ID})
	require.NoError(t, err)
	_, err = f.store.CreateArchive(ctx, Archive{Title: "a", FilePath: "/uploads/a", FolderID: root.ID, UploaderID: f.editor.ID})
	require.NoError(t, err)
	_, err = f.store.CreateArchive(ctx, Archive{Title: "b", FilePath: "/uploads/b", FolderID: child.ID, UploaderID: f.editor.ID})
	require.NoError(t, err)

	got, err := f.store.GetFolder(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ArchiveCount)

	paths, err := f.store.DeleteFolders(ctx, []int64{root.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"/uploads/a", "/uploads/b"}, paths)

	_, err = f.store.GetFolder(ctx, child.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	archives, err := f.store.SearchArchives(ctx, ArchiveQuery{All: true})
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestMemoryStoreShareReplacementIsAtomic(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	folder, err := f.store.CreateFolder(ctx, Folder{Name: "shared", OwnerID: f.editor.ID})
	require.NoError(t, err)
	require.NoError(t, f.store.ReplaceFolderShares(ctx, folder.ID, []int64{f.viewer.ID}))

	err = f.store.ReplaceFolderShares(ctx, folder.ID, []int64{f.admin.ID, 4242})
	assert.ErrorIs(t, err, ErrReferenced)

	got, err := f.store.GetFolder(ctx, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.viewer.ID}, got.SharedWith)

	items, total, err := f.store.ListFolders(ctx, FolderFilter{ViewerID: f.viewer.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Nil(t, items[0].SharedWith)

	_, total, err = f.store.ListFolders(ctx, FolderFilter{ViewerID: f.admin.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryStoreArchiveVisibility(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	folder, err := f.store.CreateFolder(ctx, Folder{Name: "docs", OwnerID: f.editor.ID})
	require.NoError(t, err)
	archive, err := f.store.CreateArchive(ctx, Archive{Title: "Budget 2026", FileName: "budget.pdf", FolderID: folder.ID, UploaderID: f.editor.ID})
	require.NoError(t, err)

	hidden, err := f.store.SearchArchives(ctx, ArchiveQuery{Text: "budget", ViewerID: f.viewer.ID})
	require.NoError(t, err)
	assert.Empty(t, hidden)

	require.NoError(t, f.store.ReplaceArchiveShares(ctx, archive.ID, []int64{f.viewer.ID}))
	visible, err := f.store.SearchArchives(ctx, ArchiveQuery{Text: "BUDGET", ViewerID: f.viewer.ID})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, f.editor.ID, visible[0].FolderOwnerID)
	assert.Equal(t, "Eddie", visible[0].UploaderName)
}

func TestMemoryStoreCategoryInUse(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	used, err := f.store.CreateCategory(ctx, Category{Name: "Tools", InChargeID: &f.editor.ID})
	require.NoError(t, err)
	empty, err := f.store.CreateCategory(ctx, Category{Name: "Empty"})
	require.NoError(t, err)
	_, err = f.store.CreateLink(ctx, Link{Title: "Go", URL: "https://go.dev", CategoryID: used.ID, IsActive: true})
	require.NoError(t, err)

	_, err = f.store.DeleteCategories(ctx, []int64{empty.ID, used.ID})
	assert.ErrorIs(t, err, ErrReferenced)
	_, err = f.store.GetCategory(ctx, empty.ID)
	assert.NoError(t, err, "bulk delete must be all-or-nothing")

	deleted, err := f.store.DeleteCategories(ctx, []int64{empty.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := f.store.GetCategory(ctx, used.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LinkCount)
	assert.Equal(t, "Eddie", got.InChargeName)
}

func TestMemoryStoreLinksOrdering(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	b, err := f.store.CreateCategory(ctx, Category{Name: "B"})
	require.NoError(t, err)
	a, err := f.store.CreateCategory(ctx, Category{Name: "A"})
	require.NoError(t, err)
	for _, link := range []Link{
		{Title: "zeta", URL: "https://z", CategoryID: a.ID, IsActive: true},
		{Title: "alpha", URL: "https://a", CategoryID: b.ID, IsActive: true},
		{Title: "off", URL: "https://off", CategoryID: a.ID, IsActive: false},
		{Title: "beta", URL: "https://b", CategoryID: a.ID, IsActive: true},
	} {
		_, err := f.store.CreateLink(ctx, link)
		require.NoError(t, err)
	}

	active, err := f.store.ListActiveLinks(ctx)
	require.NoError(t, err)
	titles := []string{}
	for _, link := range active {
		titles = append(titles, link.Title)
	}
	assert.Equal(t, []string{"beta", "zeta", "alpha"}, titles)

	inactive := false
	items, total, err := f.store.ListLinks(ctx, LinkFilter{Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "off", items[0].Title)

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, DashboardStats{TotalUsers: 3, TotalCategories: 2, ActiveLinks: 3, InactiveLinks: 1}, stats)
}

func TestMemoryStoreMessages(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	f.store.Now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}

	first, err := f.store.CreateMessage(ctx, Message{SenderID: f.viewer.ID, ReceiverID: f.admin.ID, Content: "hi"})
	require.NoError(t, err)
	reply, err := f.store.CreateMessage(ctx, Message{SenderID: f.admin.ID, ReceiverID: f.viewer.ID, Content: "hello", ReplyToID: &first.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "Vera", reply.ReplyTo.SenderName)

	thread, err := f.store.ListMessagesBetween(ctx, f.admin.ID, f.viewer.ID)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, first.ID, thread[0].ID)

	all, err := f.store.ListMessagesFor(ctx, f.viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, reply.ID, all[0].ID)

	marked, err := f.store.MarkMessagesRead(ctx, f.viewer.ID, f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	require.NoError(t, f.store.DeleteMessage(ctx, first.ID))
	got, err := f.store.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReplyToID)
	assert.True(t, errors.Is(f.store.DeleteMessage(ctx, first.ID), sql.ErrNoRows))
}

func TestMemoryStoreNotificationWindow(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stamp := base
	f.store.Now = func() time.Time { return stamp }

	for _, age := range []time.Duration{0, 2 * time.Hour, 48 * time.Hour} {
		stamp = base.Add(-age)
		_, err := f.store.CreateNotification(ctx, Notification{UserID: f.viewer.ID, Title: "t", Message: "m"})
		require.NoError(t, err)
	}
	stamp = base

	unread, err := f.store.CountUnreadNotifications(ctx, f.viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	deleted, err := f.store.DeleteNotifications(ctx, f.viewer.ID, NotificationWindow{Since: base.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	items, err := f.store.ListNotifications(ctx, f.viewer.ID, 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, base.Add(-48*time.Hour), items[0].CreatedAt)

	marked, err := f.store.MarkNotificationsRead(ctx, f.viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
}

func TestMemoryStoreDeleteUserCascades(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	folder, err := f.store.CreateFolder(ctx, Folder{Name: "mine", OwnerID: f.viewer.ID})
	require.NoError(t, err)
	category, err := f.store.CreateCategory(ctx, Category{Name: "Ops", InChargeID: &f.viewer.ID})
	require.NoError(t, err)
	_, err = f.store.CreateMessage(ctx, Message{SenderID: f.viewer.ID, ReceiverID: f.admin.ID, Content: "bye"})
	require.NoError(t, err)

	deleted, err := f.store.DeleteUsers(ctx, []int64{f.viewer.ID, 777})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = f.store.GetFolder(ctx, folder.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	got, err := f.store.GetCategory(ctx, category.ID)
	require.NoError(t, err)
	assert.Nil(t, got.InChargeID)
	msgs, err := f.store.ListMessagesFor(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStoreSessions(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveRefreshSession(ctx, "h", f.admin.ID, time.Now().Add(time.Hour)))
	userID, err := f.store.LookupRefreshSession(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, userID)

	require.NoError(t, f.store.RevokeRefreshSession(ctx, "h"))
	_, err = f.store.LookupRefreshSession(ctx, "h")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, f.store.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Hour)))
	revoked, err := f.store.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = f.store.IsAccessTokenRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}
