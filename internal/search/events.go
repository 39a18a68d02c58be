package search

import (
	"sync"
	"time"
)

// SearchStats describes how one search call was executed.
type SearchStats struct {
	Scanned   int           `json:"scanned"`
	CacheHit  bool          `json:"cache_hit"`
	Offloaded bool          `json:"offloaded"`
	Duration  time.Duration `json:"duration"`
}

// observers is the engine's subscription registry. Callbacks run on the
// publishing goroutine; subscribers that need to do real work should hand the
// event off to their own goroutine.
type observers struct {
	mu              sync.RWMutex
	nextID          int
	indexUpdated    map[int]func(IndexStats)
	searchCompleted map[int]func([]SearchResult, SearchQuery, SearchStats)
	searchError     map[int]func(error, SearchQuery)
}

func newObservers() *observers {
	return &observers{
		indexUpdated:    make(map[int]func(IndexStats)),
		searchCompleted: make(map[int]func([]SearchResult, SearchQuery, SearchStats)),
		searchError:     make(map[int]func(error, SearchQuery)),
	}
}

func (o *observers) onIndexUpdated(fn func(IndexStats)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.indexUpdated[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.indexUpdated, id)
	}
}

func (o *observers) onSearchCompleted(fn func([]SearchResult, SearchQuery, SearchStats)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.searchCompleted[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.searchCompleted, id)
	}
}

func (o *observers) onSearchError(fn func(error, SearchQuery)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.searchError[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.searchError, id)
	}
}

func (o *observers) publishIndexUpdated(stats IndexStats) {
	o.mu.RLock()
	fns := make([]func(IndexStats), 0, len(o.indexUpdated))
	for _, fn := range o.indexUpdated {
		fns = append(fns, fn)
	}
	o.mu.RUnlock()
	for _, fn := range fns {
		fn(stats)
	}
}

func (o *observers) publishSearchCompleted(results []SearchResult, query SearchQuery, stats SearchStats) {
	o.mu.RLock()
	fns := make([]func([]SearchResult, SearchQuery, SearchStats), 0, len(o.searchCompleted))
	for _, fn := range o.searchCompleted {
		fns = append(fns, fn)
	}
	o.mu.RUnlock()
	for _, fn := range fns {
		fn(results, query, stats)
	}
}

func (o *observers) publishSearchError(err error, query SearchQuery) {
	o.mu.RLock()
	fns := make([]func(error, SearchQuery), 0, len(o.searchError))
	for _, fn := range o.searchError {
		fns = append(fns, fn)
	}
	o.mu.RUnlock()
	for _, fn := range fns {
		fn(err, query)
	}
}
