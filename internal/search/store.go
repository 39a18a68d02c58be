package search

import (
	"sort"
	"sync"
	"time"
)

// indexStore owns the forward records and the inverted postings. It has
// exactly one writer (the batch indexer); queries only ever read. The lock is
// held just long enough to take a snapshot slice, so scans never block
// indexing for the duration of scoring.
type indexStore struct {
	mu          sync.RWMutex
	records     map[string]*IndexRecord
	postings    map[string]map[string]struct{}
	lastUpdated time.Time
}

func newIndexStore() *indexStore {
	return &indexStore{
		records:  make(map[string]*IndexRecord),
		postings: make(map[string]map[string]struct{}),
	}
}

// put inserts or replaces the record for rec.MessageID. Stale postings from a
// prior record are removed before the fresh token set is inserted, so
// re-indexing an edited message is observed as a single replacement.
func (s *indexStore) put(rec *IndexRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.records[rec.MessageID]; ok {
		s.dropPostingsLocked(old)
	}
	for _, tok := range rec.Tokens {
		ids, ok := s.postings[tok]
		if !ok {
			ids = make(map[string]struct{})
			s.postings[tok] = ids
		}
		ids[rec.MessageID] = struct{}{}
	}
	s.records[rec.MessageID] = rec
	s.lastUpdated = time.Now()
}

// remove drops the forward record and every posting entry for id.
// Returns false when the id was never indexed.
func (s *indexStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false
	}
	s.dropPostingsLocked(rec)
	delete(s.records, id)
	s.lastUpdated = time.Now()
	return true
}

func (s *indexStore) dropPostingsLocked(rec *IndexRecord) {
	for _, tok := range rec.Tokens {
		ids, ok := s.postings[tok]
		if !ok {
			continue
		}
		delete(ids, rec.MessageID)
		if len(ids) == 0 {
			delete(s.postings, tok)
		}
	}
}

func (s *indexStore) get(id string) (*IndexRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *indexStore) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *indexStore) stats() IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IndexStats{
		IndexedCount: len(s.records),
		TokenCount:   len(s.postings),
		LastUpdated:  s.lastUpdated,
	}
}

// all returns a point-in-time slice of every forward record in chronological
// order (ties broken by id) so scans and tie-breaking stay deterministic. The
// records themselves are never mutated after insertion, so sharing pointers
// is safe.
func (s *indexStore) all() []*IndexRecord {
	s.mu.RLock()
	out := make([]*IndexRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sortChronological(out)
	return out
}

func sortChronological(records []*IndexRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].MessageID < records[j].MessageID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

// candidates unions the posting lists of the given tokens and resolves them
// to forward records, chronologically ordered. Unknown tokens contribute
// nothing.
func (s *indexStore) candidates(tokens []string) []*IndexRecord {
	s.mu.RLock()
	seen := make(map[string]struct{})
	out := make([]*IndexRecord, 0)
	for _, tok := range tokens {
		for id := range s.postings[tok] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if rec, ok := s.records[id]; ok {
				out = append(out, rec)
			}
		}
	}
	s.mu.RUnlock()
	sortChronological(out)
	return out
}

// snapshot copies the maps for persistence. Posting sets are flattened to
// sorted-insensitive id slices by the persistence layer.
func (s *indexStore) snapshot() (map[string]*IndexRecord, map[string][]string, IndexStats) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make(map[string]*IndexRecord, len(s.records))
	for id, rec := range s.records {
		records[id] = rec
	}
	postings := make(map[string][]string, len(s.postings))
	for tok, ids := range s.postings {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		postings[tok] = list
	}
	stats := IndexStats{
		IndexedCount: len(s.records),
		TokenCount:   len(s.postings),
		LastUpdated:  s.lastUpdated,
	}
	return records, postings, stats
}

// restore replaces the whole store from persisted state. Postings that
// reference missing records are dropped rather than trusted; if the payload
// is structurally inconsistent the store comes up empty instead.
func (s *indexStore) restore(records map[string]*IndexRecord, postings map[string][]string, lastUpdated time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*IndexRecord, len(records))
	s.postings = make(map[string]map[string]struct{}, len(postings))

	for id, rec := range records {
		if rec == nil || rec.MessageID == "" || rec.MessageID != id {
			continue
		}
		s.records[id] = rec
	}
	for tok, ids := range postings {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := s.records[id]; ok {
				set[id] = struct{}{}
			}
		}
		if len(set) > 0 {
			s.postings[tok] = set
		}
	}
	s.lastUpdated = lastUpdated
}
