package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sikap/api/internal/rbac"
	"sikap/api/internal/store"
)

type FolderInput struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parentId"`
}

func folderResource(f store.Folder) rbac.Resource {
	return rbac.Resource{OwnerID: f.OwnerID, SharedWith: f.SharedWith}
}

func (s *Service) folderFor(ctx context.Context, session Session, id int64, access rbac.Access) (store.Folder, error) {
	folder, err := s.store.GetFolder(ctx, id)
	if err != nil {
		return store.Folder{}, err
	}
	if !rbac.CanAccess(session.principal(), folderResource(folder), access) {
		return store.Folder{}, forbidden()
	}
	return folder, nil
}

// ListFolders returns owned and shared folders, or every folder for admins.
// parent is "", "root" or a folder id.
func (s *Service) ListFolders(ctx context.Context, session Session, params store.ListParams, parent string) (map[string]any, error) {
	filter := store.FolderFilter{
		ListParams: params,
		ViewerID:   session.UserID,
		All:        session.Role == rbac.RoleAdmin,
	}
	switch parent = strings.TrimSpace(parent); parent {
	case "":
	case "root":
		filter.RootOnly = true
	default:
		id, err := parseID(parent)
		if err != nil {
			return nil, validationError("parentId must be a folder id or root")
		}
		filter.ParentID = &id
	}

	folders, total, err := s.store.ListFolders(ctx, filter)
	if err != nil {
		return nil, err
	}
	return paged(mapEach(folders, folderPayload), total, params), nil
}

func (s *Service) CreateFolder(ctx context.Context, session Session, input FolderInput) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionFolderCreate); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	if input.ParentID != nil {
		if _, err := s.folderFor(ctx, session, *input.ParentID, rbac.AccessUpdate); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, validationError("parent folder does not exist")
			}
			return nil, err
		}
	}

	folder, err := s.store.CreateFolder(ctx, store.Folder{Name: name, OwnerID: session.UserID, ParentID: input.ParentID})
	if err != nil {
		return nil, err
	}
	return folderPayload(folder), nil
}

// GetFolder returns the folder, the archives the requester may see and the
// subfolder listing. A folder share opens the folder and its listing; files
// and child folders are still checked on their own.
func (s *Service) GetFolder(ctx context.Context, session Session, id int64) (map[string]any, error) {
	folder, err := s.folderFor(ctx, session, id, rbac.AccessRead)
	if err != nil {
		return nil, err
	}
	principal := session.principal()

	archives, err := s.store.ListFolderArchives(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	archives = rbac.VisibleArchives(folder, archives, principal)

	children, err := s.store.ListSubfolders(ctx, folder.ID)
	if err != nil {
		return nil, err
	}

	payload := folderPayload(folder)
	payload["archives"] = mapEach(archives, archivePayload)
	payload["subfolders"] = mapEach(children, folderPayload)
	return payload, nil
}

func (s *Service) UpdateFolder(ctx context.Context, session Session, id int64, input FolderInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	if _, err := s.folderFor(ctx, session, id, rbac.AccessUpdate); err != nil {
		return nil, err
	}
	if err := s.store.RenameFolder(ctx, id, name); err != nil {
		return nil, err
	}
	folder, err := s.store.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	return folderPayload(folder), nil
}

// DeleteFolder removes the folder, its subfolders and their archives.
func (s *Service) DeleteFolder(ctx context.Context, session Session, id int64) error {
	if _, err := s.folderFor(ctx, session, id, rbac.AccessDelete); err != nil {
		return err
	}
	paths, err := s.store.DeleteFolders(ctx, []int64{id})
	if err != nil {
		return err
	}
	s.removeFiles(paths)
	return nil
}

// BulkDeleteFolders deletes the ids the requester may delete and skips the rest.
func (s *Service) BulkDeleteFolders(ctx context.Context, session Session, ids []int64) (map[string]any, error) {
	if len(ids) == 0 {
		return nil, validationError("ids are required")
	}
	unique := uniqueIDs(ids)
	permitted := make([]int64, 0, len(unique))
	for _, id := range unique {
		folder, err := s.store.GetFolder(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rbac.CanAccess(session.principal(), folderResource(folder), rbac.AccessDelete) {
			permitted = append(permitted, id)
		}
	}
	if len(permitted) > 0 {
		paths, err := s.store.DeleteFolders(ctx, permitted)
		if err != nil {
			return nil, err
		}
		s.removeFiles(paths)
	}
	return map[string]any{"deleted": len(permitted), "skipped": len(unique) - len(permitted)}, nil
}

func (s *Service) FolderShares(ctx context.Context, session Session, id int64) (map[string]any, error) {
	if _, err := s.folderFor(ctx, session, id, rbac.AccessShare); err != nil {
		return nil, err
	}
	users, err := s.store.ListFolderShares(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"shares": mapEach(users, userRefPayload)}, nil
}

// ShareFolder replaces the folder's share list and notifies new holders.
func (s *Service) ShareFolder(ctx context.Context, session Session, id int64, userIDs []int64) (map[string]any, error) {
	folder, err := s.folderFor(ctx, session, id, rbac.AccessShare)
	if err != nil {
		return nil, err
	}
	targets := shareTargets(userIDs, folder.OwnerID, session.UserID)
	if err := s.checkUsersExist(ctx, targets); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceFolderShares(ctx, id, targets); err != nil {
		if errors.Is(err, store.ErrReferenced) {
			return nil, validationError("unknown user id")
		}
		return nil, err
	}

	for _, userID := range newlyShared(folder.SharedWith, targets) {
		s.notifier.Dispatch(userID, "Folder Shared",
			fmt.Sprintf("%s shared the folder %q with you", session.Name, folder.Name), linkArchives)
	}
	return s.FolderShares(ctx, session, id)
}

const linkArchives = "/dashboard/archives"

// shareTargets de-duplicates ids and drops non-positive and excluded ids.
func shareTargets(ids []int64, exclude ...int64) []int64 {
	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	out := make([]int64, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		if id > 0 && !skip[id] {
			out = append(out, id)
		}
	}
	return out
}

func newlyShared(before, after []int64) []int64 {
	had := make(map[int64]bool, len(before))
	for _, id := range before {
		had[id] = true
	}
	out := make([]int64, 0)
	for _, id := range after {
		if !had[id] {
			out = append(out, id)
		}
	}
	return out
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) checkUsersExist(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		_, err := s.store.GetUserByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return validationError(fmt.Sprintf("unknown user id %d", id))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// removeFiles deletes stored files in the background. Failures are logged.
func (s *Service) removeFiles(paths []string) {
	if s.files == nil || len(paths) == 0 {
		return
	}
	log := s.log.With().Str("component", "files").Logger()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, path := range paths {
			if path == "" {
				continue
			}
			if err := s.files.Remove(ctx, path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("remove stored file")
			}
		}
	}()
}
