package search

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/miounet11/miaoda-sub002/internal/logging"
)

var persistLog = logging.ForComponent(logging.CompPersist)

// Persisted state layout: two keys in the durable KV store.
const (
	keySearchIndex   = "search_index"
	keyRecentQueries = "recent_queries"
)

// KVStore is the durable key-value capability the engine persists into.
// A nil value with nil error means the key has never been written.
type KVStore interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

type persistedStats struct {
	IndexedCount int       `json:"indexed_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

type persistedIndex struct {
	Index         map[string]*IndexRecord `json:"index"`
	InvertedIndex map[string][]string     `json:"inverted_index"`
	Stats         persistedStats          `json:"stats"`
}

// persister serializes engine state to a KVStore. Every failure path is
// non-fatal: load tolerates missing or corrupt payloads by starting empty,
// save logs and moves on.
type persister struct {
	kv KVStore
}

func newPersister(kv KVStore) *persister {
	return &persister{kv: kv}
}

func (p *persister) loadIndex(store *indexStore) {
	if p == nil || p.kv == nil {
		return
	}
	raw, err := p.kv.Get(keySearchIndex)
	if err != nil {
		persistLog.Warn("index_load_failed", slog.String("error", err.Error()))
		return
	}
	if len(raw) == 0 {
		return
	}
	var payload persistedIndex
	if err := json.Unmarshal(raw, &payload); err != nil {
		persistLog.Warn("index_payload_corrupt", slog.String("error", err.Error()))
		return
	}
	store.restore(payload.Index, payload.InvertedIndex, payload.Stats.LastUpdated)
	persistLog.Info("index_loaded", slog.Int("records", store.size()))
}

func (p *persister) saveIndex(store *indexStore) {
	if p == nil || p.kv == nil {
		return
	}
	records, postings, stats := store.snapshot()
	payload := persistedIndex{
		Index:         records,
		InvertedIndex: postings,
		Stats: persistedStats{
			IndexedCount: stats.IndexedCount,
			LastUpdated:  stats.LastUpdated,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		persistLog.Warn("index_encode_failed", slog.String("error", err.Error()))
		return
	}
	if err := p.kv.Put(keySearchIndex, raw); err != nil {
		persistLog.Warn("index_save_failed", slog.String("error", err.Error()))
		return
	}
	persistLog.Debug("index_saved", slog.Int("records", stats.IndexedCount))
}

func (p *persister) loadRecent(log *recentLog) {
	if p == nil || p.kv == nil {
		return
	}
	raw, err := p.kv.Get(keyRecentQueries)
	if err != nil {
		persistLog.Warn("recent_load_failed", slog.String("error", err.Error()))
		return
	}
	if len(raw) == 0 {
		return
	}
	var queries []SearchQuery
	if err := json.Unmarshal(raw, &queries); err != nil {
		persistLog.Warn("recent_payload_corrupt", slog.String("error", err.Error()))
		return
	}
	log.replace(queries)
}

func (p *persister) saveRecent(log *recentLog) {
	if p == nil || p.kv == nil {
		return
	}
	raw, err := json.Marshal(log.list())
	if err != nil {
		persistLog.Warn("recent_encode_failed", slog.String("error", err.Error()))
		return
	}
	if err := p.kv.Put(keyRecentQueries, raw); err != nil {
		persistLog.Warn("recent_save_failed", slog.String("error", err.Error()))
	}
}
