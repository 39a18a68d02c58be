package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/miounet11/miaoda-sub002/internal/logging"
)

var indexLog = logging.ForComponent(logging.CompIndex)

const (
	// DefaultBatchSize bounds how many queued records one tick may drain.
	DefaultBatchSize = 100
	// DefaultTickInterval is the drain cadence.
	DefaultTickInterval = 250 * time.Millisecond
	// DefaultPersistEvery triggers a fire-and-forget save after this many
	// processed records.
	DefaultPersistEvery = 500
	// defaultQueueDepth is the ingest queue capacity. Senders block when the
	// indexer falls this far behind, which is the backpressure we want.
	defaultQueueDepth = 4096
)

// batchIndexer is the single writer of the index store. Messages are queued
// by the ingestion API and drained in bounded batches on a fixed tick so one
// burst of ingest cannot monopolize the process.
type batchIndexer struct {
	store   *indexStore
	persist *persister
	obs     *observers

	queue        chan Message
	removals     chan string
	batchSize    int
	tick         time.Duration
	persistEvery int

	// saveLimiter keeps bursty ingest from thrashing the disk with saves.
	saveLimiter *rate.Limiter

	// drainMu serializes drainBatch between the tick loop and Flush.
	drainMu   sync.Mutex
	sinceSave int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBatchIndexer(store *indexStore, persist *persister, obs *observers, batchSize int, tick time.Duration, persistEvery int) *batchIndexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	if persistEvery <= 0 {
		persistEvery = DefaultPersistEvery
	}
	return &batchIndexer{
		store:        store,
		persist:      persist,
		obs:          obs,
		queue:        make(chan Message, defaultQueueDepth),
		removals:     make(chan string, 256),
		batchSize:    batchSize,
		tick:         tick,
		persistEvery: persistEvery,
		saveLimiter:  rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

func (b *batchIndexer) start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go b.run(ctx)
}

// stop drains whatever is still queued, persists, and returns.
func (b *batchIndexer) stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	for b.drainBatch() > 0 {
	}
	b.persist.saveIndex(b.store)
}

func (b *batchIndexer) enqueue(msg Message) {
	b.queue <- msg
}

func (b *batchIndexer) enqueueRemoval(id string) {
	b.removals <- id
}

func (b *batchIndexer) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainBatch()
		}
	}
}

// drainBatch processes at most batchSize queued records plus any pending
// removals, publishes fresh stats when anything changed, and triggers a
// rate-limited background save every persistEvery records. Returns how many
// queue items it consumed.
func (b *batchIndexer) drainBatch() int {
	b.drainMu.Lock()
	defer b.drainMu.Unlock()

	processed := 0
	changed := false

fill:
	for processed < b.batchSize {
		select {
		case msg := <-b.queue:
			processed++
			if b.indexOne(msg) {
				changed = true
			}
		default:
			break fill
		}
	}
	processed = b.drainRemovals(processed, &changed)

	if changed {
		stats := b.store.stats()
		b.obs.publishIndexUpdated(stats)
		logging.Aggregate(logging.CompIndex, "batch_drained",
			slog.Int("processed", processed),
			slog.Int("indexed_count", stats.IndexedCount))
	}

	b.sinceSave += processed
	if b.sinceSave >= b.persistEvery && b.saveLimiter.Allow() {
		b.sinceSave = 0
		go b.persist.saveIndex(b.store)
	}
	return processed
}

func (b *batchIndexer) drainRemovals(processed int, changed *bool) int {
	for {
		select {
		case id := <-b.removals:
			processed++
			if b.store.remove(id) {
				*changed = true
			}
		default:
			return processed
		}
	}
}

// indexOne derives the forward record for one message and installs it.
// Malformed records are skipped and logged; they never abort the batch.
func (b *batchIndexer) indexOne(msg Message) bool {
	if msg.ID == "" || msg.Content == "" {
		indexLog.Warn("malformed_record_skipped",
			slog.String("id", msg.ID),
			slog.String("chat_id", msg.ChatID))
		return false
	}

	normalized, tokens := Analyze(msg.Content)
	rec := &IndexRecord{
		MessageID:         msg.ID,
		ChatID:            msg.ChatID,
		Role:              msg.Role,
		Timestamp:         msg.Timestamp,
		Type:              msg.Type,
		Tags:              msg.Tags,
		Priority:          msg.Priority,
		HasAttachment:     msg.HasAttachment,
		Length:            len([]rune(msg.Content)),
		Content:           msg.Content,
		NormalizedContent: normalized,
		Tokens:            tokens,
		Metadata:          msg.Metadata,
	}
	b.store.put(rec)
	return true
}
