package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miounet11/miaoda-sub002/internal/logging"
)

var queryLog = logging.ForComponent(logging.CompQuery)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("search: engine closed")

// DefaultSmallIndexThreshold is the record count below which posting-list
// narrowing is skipped; scanning everything is cheaper than the bookkeeping.
const DefaultSmallIndexThreshold = 64

// cancelCheckEvery is how often the scan loop polls for cancellation.
const cancelCheckEvery = 64

// Config tunes one engine instance. Zero values mean defaults.
type Config struct {
	BatchSize           int
	TickInterval        time.Duration
	PersistEvery        int
	CacheCapacity       int
	RecentCapacity      int
	WorkerThreshold     int
	SmallIndexThreshold int
	ScanParallelism     int
	FuzzyThreshold      float64

	// KV is the durable store for index + recent-query persistence.
	// Nil disables persistence entirely.
	KV KVStore

	// Context supplies surrounding messages for context attachment.
	// Nil makes attachment a no-op.
	Context ContextProvider
}

// Engine is the in-process message search engine. Construct one with New,
// inject it where it is needed, and tear it down with Close; there is no
// process-wide instance.
type Engine struct {
	store   *indexStore
	indexer *batchIndexer
	worker  *scanWorker
	cache   *queryCache
	recent  *recentLog
	persist *persister
	obs     *observers

	ctxProvider ContextProvider

	workerThreshold     atomic.Int64
	fuzzyDefaultBits    atomic.Uint64
	smallIndexThreshold int
	scanParallelism     int

	closed atomic.Bool
}

// New builds an engine, restores any persisted state, and starts the batch
// indexer and scan worker.
func New(cfg Config) *Engine {
	if cfg.SmallIndexThreshold <= 0 {
		cfg.SmallIndexThreshold = DefaultSmallIndexThreshold
	}
	if cfg.WorkerThreshold <= 0 {
		cfg.WorkerThreshold = DefaultWorkerThreshold
	}
	if cfg.ScanParallelism <= 0 {
		cfg.ScanParallelism = runtime.NumCPU()
		if cfg.ScanParallelism > 8 {
			cfg.ScanParallelism = 8
		}
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultFuzzyThreshold
	}

	e := &Engine{
		store:               newIndexStore(),
		cache:               newQueryCache(cfg.CacheCapacity),
		recent:              newRecentLog(cfg.RecentCapacity),
		obs:                 newObservers(),
		ctxProvider:         cfg.Context,
		smallIndexThreshold: cfg.SmallIndexThreshold,
		scanParallelism:     cfg.ScanParallelism,
	}
	e.workerThreshold.Store(int64(cfg.WorkerThreshold))
	e.fuzzyDefaultBits.Store(math.Float64bits(cfg.FuzzyThreshold))

	e.persist = newPersister(cfg.KV)
	e.persist.loadIndex(e.store)
	e.persist.loadRecent(e.recent)

	e.indexer = newBatchIndexer(e.store, e.persist, e.obs, cfg.BatchSize, cfg.TickInterval, cfg.PersistEvery)
	e.indexer.start()
	e.worker = newScanWorker()

	return e
}

// Close stops background work, flushes pending records, and persists state.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.indexer.stop()
	e.persist.saveRecent(e.recent)
	e.worker.close()
	return nil
}

// --- Ingestion ---

// IndexMessage queues one message for indexing. Push-only; the engine never
// pulls from the message store.
func (e *Engine) IndexMessage(msg Message) {
	if e.closed.Load() {
		return
	}
	e.indexer.enqueue(msg)
}

// IndexMessages queues a batch of messages for indexing.
func (e *Engine) IndexMessages(msgs []Message) {
	for _, msg := range msgs {
		e.IndexMessage(msg)
	}
}

// RemoveMessage queues removal of a message from the index.
func (e *Engine) RemoveMessage(id string) {
	if e.closed.Load() || id == "" {
		return
	}
	e.indexer.enqueueRemoval(id)
}

// Flush synchronously drains the ingest queue. Intended for shutdown paths
// and tests that need the index settled before querying.
func (e *Engine) Flush() {
	for e.indexer.drainBatch() > 0 {
	}
}

// Stats returns current index statistics.
func (e *Engine) Stats() IndexStats {
	return e.store.stats()
}

// ClearCache drops all memoized result sets.
func (e *Engine) ClearCache() {
	e.cache.clear()
}

// RecentQueries returns the remembered queries, most recent first.
func (e *Engine) RecentQueries() []SearchQuery {
	return e.recent.list()
}

// Suggestions fuzzy-completes a partial query from the recent-query log.
func (e *Engine) Suggestions(partial string, max int) []string {
	return e.recent.suggest(partial, max)
}

// --- Events ---

// OnIndexUpdated registers a callback for post-batch index statistics.
func (e *Engine) OnIndexUpdated(fn func(IndexStats)) (unsubscribe func()) {
	return e.obs.onIndexUpdated(fn)
}

// OnSearchCompleted registers a callback fired after every successful search.
func (e *Engine) OnSearchCompleted(fn func([]SearchResult, SearchQuery, SearchStats)) (unsubscribe func()) {
	return e.obs.onSearchCompleted(fn)
}

// OnSearchError registers a callback fired when a search fails.
func (e *Engine) OnSearchError(fn func(error, SearchQuery)) (unsubscribe func()) {
	return e.obs.onSearchError(fn)
}

// --- Query ---

// QuickSearch runs a plain text search with default options.
func (e *Engine) QuickSearch(ctx context.Context, text string) ([]SearchResult, error) {
	return e.Search(ctx, SearchQuery{Text: text})
}

// SearchByRole returns every indexed message with the given role.
func (e *Engine) SearchByRole(ctx context.Context, role Role) ([]SearchResult, error) {
	return e.Search(ctx, SearchQuery{Filters: SearchFilters{Roles: []Role{role}}})
}

// SearchByDateRange returns every indexed message inside [start, end].
func (e *Engine) SearchByDateRange(ctx context.Context, start, end time.Time) ([]SearchResult, error) {
	return e.Search(ctx, SearchQuery{Filters: SearchFilters{DateStart: &start, DateEnd: &end}})
}

// Search runs the full query pipeline: cache check, candidate scan, scoring,
// filtering, sorting, truncation, context attachment. A context deadline
// turns an over-long scan into best-effort partial results; cancellation
// abandons the query with the context error.
func (e *Engine) Search(ctx context.Context, query SearchQuery) (results []SearchResult, err error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search: query panicked: %v", r)
			results = nil
		}
		if err != nil {
			e.obs.publishSearchError(err, query)
		}
	}()

	query.Options = e.applyDefaults(query.Options)
	started := time.Now()
	sig := query.Signature()

	if cached, ok := e.cache.get(sig); ok {
		stats := SearchStats{CacheHit: true, Duration: time.Since(started)}
		e.obs.publishSearchCompleted(cached, query, stats)
		return cached, nil
	}

	candidates, narrowed := e.selectCandidates(query)

	ranked, offloaded, partial, scanErr := e.rank(ctx, candidates, query)
	if scanErr != nil {
		return nil, scanErr
	}

	results = e.materialize(ranked, query)
	results = e.sortResults(results, query.Options)
	if query.Options.MaxResults > 0 && len(results) > query.Options.MaxResults {
		results = results[:query.Options.MaxResults]
	}
	e.attachDetails(results, query)

	// A deadline-truncated result set must not be memoized; the next caller
	// without a deadline deserves the full scan.
	if !partial {
		e.cache.put(sig, results)
		e.recent.add(query)
	}

	stats := SearchStats{
		Scanned:   len(candidates),
		Offloaded: offloaded,
		Duration:  time.Since(started),
	}
	queryLog.Debug("search_completed",
		slog.String("text", query.Text),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(results)),
		slog.Bool("narrowed", narrowed),
		slog.Bool("offloaded", offloaded),
		slog.Duration("duration", stats.Duration))
	e.obs.publishSearchCompleted(results, query, stats)
	return results, nil
}

func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = math.Float64frombits(e.fuzzyDefaultBits.Load())
	}
	return opts.withDefaults()
}

// selectCandidates picks the records worth scoring. Posting-list narrowing
// applies only when the query text is plain enough for token lookup to be a
// superset of what scoring can match: no regex (tokens are not derivable),
// no fuzzy (edit distance can defeat n-gram overlap), no term shorter than
// the n-gram size, and an index big enough for narrowing to pay off.
func (e *Engine) selectCandidates(query SearchQuery) (records []*IndexRecord, narrowed bool) {
	if query.Text == "" {
		return e.store.all(), false
	}

	normalized := Normalize(query.Text)
	tokens := Tokenize(normalized)
	if len(tokens) == 0 {
		return e.store.all(), false
	}
	if query.Options.UseRegex || query.Options.FuzzyMatch {
		return e.store.all(), false
	}
	if e.store.size() < e.smallIndexThreshold {
		return e.store.all(), false
	}
	for _, term := range strings.Fields(normalized) {
		if len([]rune(term)) < ngramSize {
			return e.store.all(), false
		}
	}
	return e.store.candidates(tokens), true
}

// rank turns candidates into (id, score) pairs. Empty-text queries skip
// scoring entirely and give every candidate score 1.0. The partial return
// marks a deadline-truncated ranking.
func (e *Engine) rank(ctx context.Context, candidates []*IndexRecord, query SearchQuery) (ranked []scoredID, offloaded, partial bool, err error) {
	if query.Text == "" {
		ranked = make([]scoredID, 0, len(candidates))
		for _, rec := range candidates {
			ranked = append(ranked, scoredID{ID: rec.MessageID, Score: 1.0})
		}
		return ranked, false, false, nil
	}

	threshold := int(e.workerThreshold.Load())
	if !e.worker.isDegraded() && e.store.size() >= threshold {
		offloadRanked, offloadErr := e.worker.submit(ctx, projectDocs(candidates), query.Text, query.Options)
		if offloadErr == nil {
			return offloadRanked, true, false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The context, not the worker, gave up; don't punish the worker.
			ranked, partial, err = e.partialOrError(nil, ctxErr)
			return ranked, false, partial, err
		}
		e.worker.markDegraded(offloadErr)
	}

	ranked, scanErr := e.rankLocal(ctx, candidates, query.Text, query.Options)
	if scanErr != nil {
		ranked, partial, err = e.partialOrError(ranked, scanErr)
		return ranked, false, partial, err
	}
	return ranked, false, false, nil
}

// partialOrError maps a deadline expiry to best-effort partial results and
// everything else to a hard error.
func (e *Engine) partialOrError(ranked []scoredID, err error) ([]scoredID, bool, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		queryLog.Warn("search_deadline_partial", slog.Int("ranked", len(ranked)))
		return ranked, true, nil
	}
	return nil, false, err
}

// rankLocal scores candidates on the calling path with a bounded worker pool,
// checking for cancellation as it goes.
func (e *Engine) rankLocal(ctx context.Context, candidates []*IndexRecord, text string, opts SearchOptions) ([]scoredID, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	workers := e.scanParallelism
	if len(candidates) < workers*cancelCheckEvery {
		return scanChunk(ctx, candidates, text, opts)
	}

	g, gctx := errgroup.WithContext(ctx)
	chunkSize := (len(candidates) + workers - 1) / workers
	chunks := make([][]scoredID, workers)

	for i := 0; i < workers; i++ {
		i := i
		lo := i * chunkSize
		hi := lo + chunkSize
		if lo >= len(candidates) {
			break
		}
		if hi > len(candidates) {
			hi = len(candidates)
		}
		part := candidates[lo:hi]
		g.Go(func() error {
			ranked, err := scanChunk(gctx, part, text, opts)
			chunks[i] = ranked
			return err
		})
	}

	err := g.Wait()
	var ranked []scoredID
	for _, chunk := range chunks {
		ranked = append(ranked, chunk...)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if err != nil {
		return ranked, err
	}
	return ranked, nil
}

func scanChunk(ctx context.Context, records []*IndexRecord, text string, opts SearchOptions) ([]scoredID, error) {
	sc := newScorer(text, opts)
	var ranked []scoredID
	for i, rec := range records {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return ranked, err
			}
		}
		score, _ := sc.score(rec)
		if score > 0 {
			ranked = append(ranked, scoredID{ID: rec.MessageID, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}

// materialize resolves ranked ids to records and applies the filters.
func (e *Engine) materialize(ranked []scoredID, query SearchQuery) []SearchResult {
	results := make([]SearchResult, 0, len(ranked))
	for _, hit := range ranked {
		rec, ok := e.store.get(hit.ID)
		if !ok {
			continue
		}
		if !matchesFilters(rec, query.Filters) {
			continue
		}
		results = append(results, SearchResult{Record: rec, Score: hit.Score})
	}
	return results
}

func (e *Engine) sortResults(results []SearchResult, opts SearchOptions) []SearchResult {
	asc := opts.SortOrder == SortAsc
	less := func(i, j int) bool { return false }

	switch opts.SortBy {
	case SortByDate:
		less = func(i, j int) bool {
			if asc {
				return results[i].Record.Timestamp.Before(results[j].Record.Timestamp)
			}
			return results[j].Record.Timestamp.Before(results[i].Record.Timestamp)
		}
	case SortByLength:
		less = func(i, j int) bool {
			if asc {
				return results[i].Record.Length < results[j].Record.Length
			}
			return results[j].Record.Length < results[i].Record.Length
		}
	default: // relevance
		less = func(i, j int) bool {
			if asc {
				return results[i].Score < results[j].Score
			}
			return results[j].Score < results[i].Score
		}
	}

	sort.SliceStable(results, less)
	return results
}

// attachDetails computes match spans, snippets, and surrounding context for
// the final result page only; doing it earlier would waste work on rows that
// filtering or truncation discards.
func (e *Engine) attachDetails(results []SearchResult, query SearchQuery) {
	var sc *scorer
	if query.Text != "" {
		sc = newScorer(query.Text, query.Options)
	}
	queryLower := strings.ToLower(query.Text)

	for i := range results {
		rec := results[i].Record
		if sc != nil {
			_, matches := sc.score(rec)
			results[i].Matches = matches
			results[i].Snippet = snippetFromText(rec.Content, queryLower, snippetWindow)
		}
		if query.Options.ContextLines > 0 && e.ctxProvider != nil {
			before, after, err := e.ctxProvider.Surrounding(rec.ChatID, rec.MessageID, query.Options.ContextLines)
			if err != nil {
				queryLog.Debug("context_attach_failed",
					slog.String("message_id", rec.MessageID),
					slog.String("error", err.Error()))
				continue
			}
			results[i].Context = &ResultContext{Before: before, After: after}
		}
	}
}

// matchesFilters applies every supplied predicate; absent fields constrain
// nothing.
func matchesFilters(rec *IndexRecord, f SearchFilters) bool {
	if len(f.Roles) > 0 && !containsRole(f.Roles, rec.Role) {
		return false
	}
	if f.DateStart != nil && rec.Timestamp.Before(*f.DateStart) {
		return false
	}
	if f.DateEnd != nil && rec.Timestamp.After(*f.DateEnd) {
		return false
	}
	if len(f.ChatIDs) > 0 && !containsString(f.ChatIDs, rec.ChatID) {
		return false
	}
	if len(f.Types) > 0 && !containsString(f.Types, rec.Type) {
		return false
	}
	if f.HasAttachment != nil && rec.HasAttachment != *f.HasAttachment {
		return false
	}
	if f.MinLength != nil && rec.Length < *f.MinLength {
		return false
	}
	if f.MaxLength != nil && rec.Length > *f.MaxLength {
		return false
	}
	if len(f.Tags) > 0 && !intersects(f.Tags, rec.Tags) {
		return false
	}
	if len(f.Priorities) > 0 && !containsString(f.Priorities, rec.Priority) {
		return false
	}
	return true
}

func containsRole(roles []Role, r Role) bool {
	for _, role := range roles {
		if role == r {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

// ApplyTuning adjusts the reloadable knobs on a live engine. Called by the
// config watcher when the user edits config.toml.
func (e *Engine) ApplyTuning(cacheCapacity, workerThreshold int, fuzzyThreshold float64) {
	if cacheCapacity > 0 {
		e.cache.setCapacity(cacheCapacity)
	}
	if workerThreshold > 0 {
		e.workerThreshold.Store(int64(workerThreshold))
	}
	if fuzzyThreshold > 0 && fuzzyThreshold <= 1 {
		e.fuzzyDefaultBits.Store(math.Float64bits(fuzzyThreshold))
	}
}
