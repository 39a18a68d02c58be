package search

import (
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
)

const (
	// DefaultCacheCapacity bounds the memoized result sets.
	DefaultCacheCapacity = 100
	// DefaultRecentCapacity bounds the recent-query log.
	DefaultRecentCapacity = 50
)

// queryCache memoizes complete result sets keyed by canonical query
// signature, evicting the oldest entry first when full.
type queryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string][]SearchResult
	order    []string // insertion order, oldest first
}

func newQueryCache(capacity int) *queryCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &queryCache{
		capacity: capacity,
		entries:  make(map[string][]SearchResult),
	}
}

// get returns a copy of the memoized result set. Callers sort and truncate
// what they are handed; the cached entry must not see that.
func (c *queryCache) get(signature string) ([]SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results, ok := c.entries[signature]
	if !ok {
		return nil, false
	}
	return append([]SearchResult(nil), results...), true
}

func (c *queryCache) put(signature string, results []SearchResult) {
	stored := append([]SearchResult(nil), results...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[signature]; exists {
		c.entries[signature] = stored
		return
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[signature] = stored
	c.order = append(c.order, signature)
}

func (c *queryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]SearchResult)
	c.order = nil
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// setCapacity applies a new bound, evicting oldest entries if needed.
// Used by config hot reload.
func (c *queryCache) setCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// recentLog remembers successful queries, most recent first, de-duplicated
// by signature.
type recentLog struct {
	mu       sync.Mutex
	capacity int
	queries  []SearchQuery
}

func newRecentLog(capacity int) *recentLog {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &recentLog{capacity: capacity}
}

func (l *recentLog) add(q SearchQuery) {
	sig := q.Signature()
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := make([]SearchQuery, 0, len(l.queries)+1)
	kept = append(kept, q)
	for _, prev := range l.queries {
		if prev.Signature() == sig {
			continue
		}
		kept = append(kept, prev)
	}
	if len(kept) > l.capacity {
		kept = kept[:l.capacity]
	}
	l.queries = kept
}

func (l *recentLog) list() []SearchQuery {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SearchQuery, len(l.queries))
	copy(out, l.queries)
	return out
}

func (l *recentLog) replace(queries []SearchQuery) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(queries) > l.capacity {
		queries = queries[:l.capacity]
	}
	l.queries = append([]SearchQuery(nil), queries...)
}

// suggest returns remembered query texts fuzzy-matching the partial input,
// best match first.
func (l *recentLog) suggest(partial string, max int) []string {
	if partial == "" || max <= 0 {
		return nil
	}
	l.mu.Lock()
	texts := make([]string, 0, len(l.queries))
	for _, q := range l.queries {
		if q.Text != "" {
			texts = append(texts, q.Text)
		}
	}
	l.mu.Unlock()

	matches := fuzzy.Find(partial, texts)
	out := make([]string, 0, max)
	seen := make(map[string]struct{})
	for _, m := range matches {
		if _, dup := seen[m.Str]; dup {
			continue
		}
		seen[m.Str] = struct{}{}
		out = append(out, m.Str)
		if len(out) == max {
			break
		}
	}
	return out
}

func sortedStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func sortedRoles(in []Role) []Role {
	if len(in) == 0 {
		return nil
	}
	out := make([]Role, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
