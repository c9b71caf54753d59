package app

import (
	"context"

	"sikap/api/internal/rbac"
	"sikap/api/internal/store"
)

const recentLimit = 5

// DashboardStats reports totals to admins and zeros to everyone else.
func (s *Service) DashboardStats(ctx context.Context, session Session) (map[string]any, error) {
	stats := store.DashboardStats{}
	if session.can(rbac.ActionDashboardStats) {
		var err error
		if stats, err = s.store.Stats(ctx); err != nil {
			return nil, err
		}
	}
	return map[string]any{
		"totalUsers":      stats.TotalUsers,
		"totalCategories": stats.TotalCategories,
		"activeLinks":     stats.ActiveLinks,
		"inactiveLinks":   stats.InactiveLinks,
	}, nil
}

// RecentContents lists the newest archives and folders the requester may see
// and the newest links.
func (s *Service) RecentContents(ctx context.Context, session Session) (map[string]any, error) {
	archives, err := s.store.SearchArchives(ctx, store.ArchiveQuery{
		ViewerID: session.UserID,
		All:      session.can(rbac.ActionArchiveReadAll),
		Limit:    recentLimit,
	})
	if err != nil {
		return nil, err
	}
	top := store.ListParams{Page: 1, Limit: recentLimit}
	links, _, err := s.store.ListLinks(ctx, store.LinkFilter{ListParams: top})
	if err != nil {
		return nil, err
	}
	folders, _, err := s.store.ListFolders(ctx, store.FolderFilter{
		ListParams: top,
		ViewerID:   session.UserID,
		All:        session.Role == rbac.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"recentArchives": mapEach(archives, archivePayload),
		"recentLinks":    mapEach(links, linkPayload),
		"recentFolders":  mapEach(folders, folderPayload),
	}, nil
}
