package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"sikap/api/internal/rbac"
	"sikap/api/internal/storage"
	"sikap/api/internal/store"
)

const archiveSearchLimit = 50

type UploadInput struct {
	FolderID int64
	Title    string
	File     storage.Upload
}

func archiveResource(a store.Archive) rbac.Resource {
	return rbac.Resource{OwnerID: a.UploaderID, ContainerOwnerID: a.FolderOwnerID, SharedWith: a.SharedWith}
}

func (s *Service) archiveFor(ctx context.Context, session Session, id int64, access rbac.Access) (store.Archive, error) {
	archive, err := s.store.GetArchive(ctx, id)
	if err != nil {
		return store.Archive{}, err
	}
	if !rbac.CanAccess(session.principal(), archiveResource(archive), access) {
		return store.Archive{}, forbidden()
	}
	return archive, nil
}

var (
	errStorageUnavailable = domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured", nil)
	errFileTooLarge       = domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File is too large", nil)
)

// UploadArchive stores a file in a folder the requester owns (or any folder
// for admins) and indexes it for search.
func (s *Service) UploadArchive(ctx context.Context, session Session, input UploadInput) (map[string]any, error) {
	if s.files == nil {
		return nil, errStorageUnavailable
	}
	if input.FolderID <= 0 || input.File.Reader == nil || input.File.FileName == "" {
		return nil, validationError("file and folderId are required")
	}
	if s.cfg.MaxUploadBytes > 0 && input.File.Size > s.cfg.MaxUploadBytes {
		return nil, errFileTooLarge
	}
	if _, err := s.folderFor(ctx, session, input.FolderID, rbac.AccessUpdate); err != nil {
		return nil, err
	}

	stored, err := s.files.Save(ctx, input.File)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = filepath.Base(input.File.FileName)
	}
	archive, err := s.store.CreateArchive(ctx, store.Archive{
		Title:      title,
		FilePath:   stored.FilePath,
		FileName:   stored.FileName,
		FileType:   stored.FileType,
		FileSize:   stored.FileSize,
		FolderID:   input.FolderID,
		UploaderID: session.UserID,
	})
	if err != nil {
		s.removeFiles([]string{stored.FilePath})
		return nil, err
	}
	s.search.IndexArchive(archive)
	return archivePayload(archive), nil
}

func (s *Service) GetArchive(ctx context.Context, session Session, id int64) (map[string]any, error) {
	archive, err := s.archiveFor(ctx, session, id, rbac.AccessRead)
	if err != nil {
		return nil, err
	}
	return archivePayload(archive), nil
}

// DeleteArchive is open to the uploader, the folder owner and admins.
func (s *Service) DeleteArchive(ctx context.Context, session Session, id int64) error {
	archive, err := s.archiveFor(ctx, session, id, rbac.AccessDelete)
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteArchives(ctx, []int64{id}); err != nil {
		return err
	}
	s.removeFiles([]string{archive.FilePath})
	s.search.RemoveArchives([]int64{id})
	return nil
}

// BulkDeleteArchives deletes the permitted subset and reports the rest as skipped.
func (s *Service) BulkDeleteArchives(ctx context.Context, session Session, ids []int64) (map[string]any, error) {
	if len(ids) == 0 {
		return nil, validationError("ids are required")
	}
	unique := uniqueIDs(ids)
	archives, err := s.store.GetArchives(ctx, unique)
	if err != nil {
		return nil, err
	}

	permitted := make([]int64, 0, len(archives))
	paths := make([]string, 0, len(archives))
	for _, archive := range archives {
		if rbac.CanAccess(session.principal(), archiveResource(archive), rbac.AccessDelete) {
			permitted = append(permitted, archive.ID)
			paths = append(paths, archive.FilePath)
		}
	}
	var deleted int64
	if len(permitted) > 0 {
		deleted, err = s.store.DeleteArchives(ctx, permitted)
		if err != nil {
			return nil, err
		}
		s.removeFiles(paths)
		s.search.RemoveArchives(permitted)
	}
	return map[string]any{"deleted": deleted, "skipped": len(unique) - len(permitted)}, nil
}

// SearchArchives matches title and file name over the archives the requester
// may see, newest first.
func (s *Service) SearchArchives(ctx context.Context, session Session, text string, folderID *int64) (map[string]any, error) {
	archives, err := s.search.Archives(ctx, store.ArchiveQuery{
		Text:     strings.TrimSpace(text),
		FolderID: folderID,
		ViewerID: session.UserID,
		All:      session.can(rbac.ActionArchiveReadAll),
		Limit:    archiveSearchLimit,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": mapEach(archives, archivePayload)}, nil
}

func (s *Service) ArchiveShares(ctx context.Context, session Session, id int64) (map[string]any, error) {
	if _, err := s.archiveFor(ctx, session, id, rbac.AccessShare); err != nil {
		return nil, err
	}
	users, err := s.store.ListArchiveShares(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"shares": mapEach(users, userRefPayload)}, nil
}

// ShareArchive replaces the archive's share list and notifies new holders.
func (s *Service) ShareArchive(ctx context.Context, session Session, id int64, userIDs []int64) (map[string]any, error) {
	archive, err := s.archiveFor(ctx, session, id, rbac.AccessShare)
	if err != nil {
		return nil, err
	}
	targets := shareTargets(userIDs, archive.UploaderID, session.UserID)
	if err := s.checkUsersExist(ctx, targets); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceArchiveShares(ctx, id, targets); err != nil {
		return nil, err
	}

	for _, userID := range newlyShared(archive.SharedWith, targets) {
		s.notifier.Dispatch(userID, "File Shared",
			fmt.Sprintf("%s shared the file %q with you", session.Name, archive.Title), linkArchives)
	}
	return s.ArchiveShares(ctx, session, id)
}

