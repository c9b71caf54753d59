package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const idxArchives = "sikap_archives"

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the archive index.
// An unreachable server is not fatal; the health loop keeps probing.
func NewMeili(url, apiKey string, log zerolog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log.With().Str("component", "search").Logger(),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxArchives,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug().Err(err).Msg("create archive index (may already exist)")
	}

	index := m.client.Index(idxArchives)
	filterable := []interface{}{"folderId", "uploaderId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn().Err(err).Msg("update filterable attributes")
	}
	searchable := []string{"title", "fileName"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn().Err(err).Msg("update searchable attributes")
	}
	sortable := []string{"createdAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.log.Warn().Err(err).Msg("update sortable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// SearchArchiveIDs returns matching archive ids in relevance order.
func (m *Meili) SearchArchiveIDs(q Query) ([]int64, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 50
	}
	sr := &meili.SearchRequest{
		IndexUID:             idxArchives,
		Query:                q.Text,
		Limit:                limit,
		AttributesToRetrieve: []string{"id"},
	}
	if q.Text == "" {
		sr.Sort = []string{"createdAt:desc"}
	}
	if q.FolderID != nil {
		sr.Filter = fmt.Sprintf("folderId = %d", *q.FolderID)
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	ids := make([]int64, 0)
	for _, result := range resp.Results {
		for _, hit := range result.Hits {
			if id, ok := decodeID(hit); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func decodeID(hit meili.Hit) (int64, bool) {
	raw, ok := hit["id"]
	if !ok {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// IndexArchives adds or updates archives in the index.
func (m *Meili) IndexArchives(records []ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxArchives).AddDocuments(records, nil)
	return err
}

// DeleteArchives removes archives from the index.
func (m *Meili) DeleteArchives(ids []int64) error {
	for _, id := range ids {
		if _, err := m.client.Index(idxArchives).DeleteDocument(strconv.FormatInt(id, 10), nil); err != nil {
			return err
		}
	}
	return nil
}
