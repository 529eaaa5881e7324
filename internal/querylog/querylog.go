// Package querylog records resolution attempts as a best-effort side channel.
//
// Writes are enqueued onto a bounded buffer and drained by a background
// goroutine, so a slow log write never delays a user-facing answer. A full
// buffer drops the entry; an insert failure is logged and swallowed. The log
// must never decide the outcome of a resolution.
package querylog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faqbot/faqbot/internal/domain"
	"github.com/faqbot/faqbot/internal/log"
)

// DefaultBuffer is the queue size used when NewRecorder gets a non-positive one.
const DefaultBuffer = 256

// writeTimeout bounds each background insert.
const writeTimeout = 5 * time.Second

// LogStore is the persistence needed by the recorder and analytics reads.
type LogStore interface {
	InsertLogEntry(ctx context.Context, entry domain.QueryLogEntry) error
	TopQueries(ctx context.Context, limit int) ([]domain.QueryCount, error)
}

// Recorder buffers query-log entries and flushes them asynchronously.
type Recorder struct {
	store   LogStore
	logger  log.Logger
	entries chan domain.QueryLogEntry
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder starts the background writer. Call Close to flush and stop it.
func NewRecorder(store LogStore, buffer int, logger log.Logger) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	r := &Recorder{
		store:   store,
		logger:  logger,
		entries: make(chan domain.QueryLogEntry, buffer),
		done:    make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record enqueues one entry without blocking. Entries submitted after Close,
// or while the buffer is full, are dropped.
func (r *Recorder) Record(entry domain.QueryLogEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	defer func() {
		// Send on closed channel: recorder already shut down.
		if recover() != nil {
			r.dropped.Add(1)
		}
	}()

	select {
	case r.entries <- entry:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("query log buffer full, dropping entry", "dropped_total", n)
	}
}

// Dropped reports how many entries were discarded since startup.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops intake, flushes queued entries and waits for the writer.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.entries)
		<-r.done
	})
}

// TopQueries returns the most frequent query texts, capped at limit.
func (r *Recorder) TopQueries(ctx context.Context, limit int) ([]domain.QueryCount, error) {
	return r.store.TopQueries(ctx, limit)
}

func (r *Recorder) drain() {
	defer close(r.done)
	for entry := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.store.InsertLogEntry(ctx, entry); err != nil {
			r.logger.Warn("query log write failed",
				"error", err,
				"query", entry.Query,
				"matched_by", entry.MatchedBy)
		}
		cancel()
	}
}
