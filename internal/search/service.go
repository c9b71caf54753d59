package search

import (
	"context"

	"github.com/rs/zerolog"
	"sikap/api/internal/store"
)

// ArchiveStore is the primary-store side of archive search.
type ArchiveStore interface {
	GetArchives(ctx context.Context, ids []int64) ([]store.Archive, error)
	SearchArchives(ctx context.Context, q store.ArchiveQuery) ([]store.Archive, error)
}

// Service tries the index first and falls back to the store.
type Service struct {
	index Index
	store ArchiveStore
	log   zerolog.Logger
}

// NewService creates a search service. index may be nil when Meilisearch is
// not configured.
func NewService(index Index, archives ArchiveStore, log zerolog.Logger) *Service {
	return &Service{index: index, store: archives, log: log.With().Str("component", "search").Logger()}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Archives returns the archives matching q that the viewer may see.
func (s *Service) Archives(ctx context.Context, q store.ArchiveQuery) ([]store.Archive, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if s.indexReady() {
		items, err := s.fromIndex(ctx, q)
		if err == nil {
			return items, nil
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to store")
	}
	return s.store.SearchArchives(ctx, q)
}

func (s *Service) fromIndex(ctx context.Context, q store.ArchiveQuery) ([]store.Archive, error) {
	// Over-fetch so visibility filtering still leaves a full page.
	ids, err := s.index.SearchArchiveIDs(Query{Text: q.Text, FolderID: q.FolderID, Limit: q.Limit * 4})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []store.Archive{}, nil
	}
	found, err := s.store.GetArchives(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]store.Archive, len(found))
	for _, archive := range found {
		byID[archive.ID] = archive
	}
	items := make([]store.Archive, 0, q.Limit)
	for _, id := range ids {
		archive, ok := byID[id]
		if !ok || !visible(archive, q) {
			continue
		}
		items = append(items, archive)
		if len(items) == q.Limit {
			break
		}
	}
	return items, nil
}

func visible(a store.Archive, q store.ArchiveQuery) bool {
	if q.All || a.UploaderID == q.ViewerID || a.FolderOwnerID == q.ViewerID {
		return true
	}
	for _, id := range a.SharedWith {
		if id == q.ViewerID {
			return true
		}
	}
	return false
}

// IndexArchive indexes an archive (fire-and-forget).
func (s *Service) IndexArchive(a store.Archive) {
	if !s.indexReady() {
		return
	}
	record := RecordFromArchive(a)
	go func() {
		if err := s.index.IndexArchives([]ArchiveRecord{record}); err != nil {
			s.log.Error().Err(err).Int64("archive_id", record.ID).Msg("index archive")
		}
	}()
}

// RemoveArchives drops archives from the index (fire-and-forget).
func (s *Service) RemoveArchives(ids []int64) {
	if !s.indexReady() || len(ids) == 0 {
		return
	}
	go func() {
		if err := s.index.DeleteArchives(ids); err != nil {
			s.log.Error().Err(err).Ints64("archive_ids", ids).Msg("delete archives from index")
		}
	}()
}

// Reindex pushes every stored archive into the index.
func (s *Service) Reindex(ctx context.Context) error {
	if !s.indexReady() {
		return nil
	}
	archives, err := s.store.SearchArchives(ctx, store.ArchiveQuery{All: true, Limit: 100000})
	if err != nil {
		return err
	}
	records := make([]ArchiveRecord, 0, len(archives))
	for _, archive := range archives {
		records = append(records, RecordFromArchive(archive))
	}
	return s.index.IndexArchives(records)
}
