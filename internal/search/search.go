// Package search finds archives by title and file name, through
// Meilisearch when it is reachable and the primary store otherwise.
package search

import "sikap/api/internal/store"

// ArchiveRecord is the data we index for an archive.
type ArchiveRecord struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	FolderID   int64  `json:"folderId"`
	UploaderID int64  `json:"uploaderId"`
	CreatedAt  int64  `json:"createdAt"`
}

func RecordFromArchive(a store.Archive) ArchiveRecord {
	return ArchiveRecord{
		ID:         a.ID,
		Title:      a.Title,
		FileName:   a.FileName,
		FileType:   a.FileType,
		FolderID:   a.FolderID,
		UploaderID: a.UploaderID,
		CreatedAt:  a.CreatedAt.Unix(),
	}
}

// Query describes an index lookup. Visibility is applied after hydration,
// so the index only narrows by text and folder.
type Query struct {
	Text     string
	FolderID *int64
	Limit    int
}

// Index is a full-text archive index.
type Index interface {
	Healthy() bool
	SearchArchiveIDs(q Query) ([]int64, error)
	IndexArchives(records []ArchiveRecord) error
	DeleteArchives(ids []int64) error
}
