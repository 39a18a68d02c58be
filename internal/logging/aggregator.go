package logging

import (
	"log/slog"
	"sync"
	"time"
)

// tallyKey identifies one stream of batched events.
type tallyKey struct {
	component string
	event     string
}

// tally accumulates occurrences between flushes. The attribute set is
// last-writer-wins so the summary line carries the freshest context.
type tally struct {
	count  int64
	fields []slog.Attr
}

// Aggregator collapses high-frequency events (per-tick index drains, cache
// churn) into periodic summary lines so steady-state ingest does not flood
// the log file with one line per batch.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	tallies map[tallyKey]*tally

	done chan struct{}
	wg   sync.WaitGroup
}

// NewAggregator creates an aggregator flushing every intervalSecs seconds.
// A nil logger drops recorded events.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		tallies:  make(map[tallyKey]*tally),
		done:     make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go a.loop()
}

// Stop ends the loop and emits whatever is still tallied.
func (a *Aggregator) Stop() {
	close(a.done)
	a.wg.Wait()
	a.flush()
}

// Record counts one occurrence of an event under (component, event).
func (a *Aggregator) Record(component, event string, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := tallyKey{component: component, event: event}
	t, ok := a.tallies[key]
	if !ok {
		t = &tally{}
		a.tallies[key] = t
	}
	t.count++
	if len(fields) > 0 {
		t.fields = fields
	}
}

func (a *Aggregator) loop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.done:
			return
		}
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	if len(a.tallies) == 0 {
		a.mu.Unlock()
		return
	}
	tallies := a.tallies
	a.tallies = make(map[tallyKey]*tally)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}

	for key, t := range tallies {
		attrs := []any{
			slog.String("component", key.component),
			slog.String("event", key.event),
			slog.Int64("count", t.count),
			slog.Int("window_seconds", int(a.interval.Seconds())),
		}
		for _, f := range t.fields {
			attrs = append(attrs, f)
		}
		a.logger.Info("event_summary", attrs...)
	}
}
