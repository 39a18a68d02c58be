package search

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miounet11/miaoda-sub002/internal/logging"
)

var workerLog = logging.ForComponent(logging.CompWorker)

// DefaultWorkerThreshold is the index size above which scan-and-score is
// offloaded to the background worker.
const DefaultWorkerThreshold = 1000

// workerDoc is the minimal projection of a forward record shipped to the
// worker. No pointer into the live store crosses the channel.
type workerDoc struct {
	ID         string
	Content    string
	Normalized string
	Tokens     []string
	Role       Role
	Timestamp  time.Time
	Length     int
}

type scoredID struct {
	ID    string
	Score float64
}

type workerRequest struct {
	docs []workerDoc
	text string
	opts SearchOptions
	resp chan []scoredID
}

// scanWorker runs scoring in a single isolated goroutine. The caller and the
// worker share nothing; requests carry copied projections and responses carry
// ranked (id, score) pairs. Any failure flips a sticky degraded flag and the
// engine scores locally for the rest of its lifetime.
type scanWorker struct {
	requests chan workerRequest
	degraded atomic.Bool
	logOnce  sync.Once

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newScanWorker() *scanWorker {
	w := &scanWorker{
		requests: make(chan workerRequest),
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)
	return w
}

func (w *scanWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.requests:
			req.resp <- rankDocs(req.docs, req.text, req.opts)
		}
	}
}

// submit ships a projection to the worker and awaits the ranked response.
func (w *scanWorker) submit(ctx context.Context, docs []workerDoc, text string, opts SearchOptions) ([]scoredID, error) {
	req := workerRequest{
		docs: docs,
		text: text,
		opts: opts,
		resp: make(chan []scoredID, 1),
	}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case ranked := <-req.resp:
		return ranked, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// markDegraded records a permanent fallback to local execution, logged once.
func (w *scanWorker) markDegraded(err error) {
	w.degraded.Store(true)
	w.logOnce.Do(func() {
		workerLog.Warn("worker_degraded_to_local", slog.String("error", err.Error()))
	})
}

func (w *scanWorker) isDegraded() bool {
	return w.degraded.Load()
}

func (w *scanWorker) close() {
	w.cancel()
	w.wg.Wait()
}

// rankDocs scores every projected document and returns hits ranked by score
// descending. Zero-score documents are dropped here so only real candidates
// travel back.
func rankDocs(docs []workerDoc, text string, opts SearchOptions) []scoredID {
	sc := newScorer(text, opts)
	ranked := make([]scoredID, 0, len(docs))
	for _, doc := range docs {
		rec := &IndexRecord{
			MessageID:         doc.ID,
			Content:           doc.Content,
			NormalizedContent: doc.Normalized,
			Tokens:            doc.Tokens,
			Role:              doc.Role,
			Timestamp:         doc.Timestamp,
			Length:            doc.Length,
		}
		score, _ := sc.score(rec)
		if score > 0 {
			ranked = append(ranked, scoredID{ID: doc.ID, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// projectDocs copies the scan-relevant fields of the candidate records.
func projectDocs(records []*IndexRecord) []workerDoc {
	docs := make([]workerDoc, 0, len(records))
	for _, rec := range records {
		docs = append(docs, workerDoc{
			ID:         rec.MessageID,
			Content:    rec.Content,
			Normalized: rec.NormalizedContent,
			Tokens:     rec.Tokens,
			Role:       rec.Role,
			Timestamp:  rec.Timestamp,
			Length:     rec.Length,
		})
	}
	return docs
}
