package querylog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faqbot/faqbot/internal/domain"
	"github.com/faqbot/faqbot/internal/log"
)

// fakeStore collects inserts; an optional gate blocks the writer goroutine
type fakeStore struct {
	mu      sync.Mutex
	entries []domain.QueryLogEntry
	gate    chan struct{}
	err     error
}

func (f *fakeStore) InsertLogEntry(ctx context.Context, entry domain.QueryLogEntry) error {
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStore) TopQueries(ctx context.Context, limit int) ([]domain.QueryCount, error) {
	return []domain.QueryCount{{Query: "parking", Count: 3}}, nil
}

func (f *fakeStore) all() []domain.QueryLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.QueryLogEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, 8, log.NewNop())

	r.Record(domain.QueryLogEntry{Query: "parking", MatchedBy: domain.TierText})
	r.Record(domain.QueryLogEntry{Query: "orientation", MatchedBy: domain.TierNone})
	r.Close()

	entries := store.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "parking", entries[0].Query)
	assert.Equal(t, "orientation", entries[1].Query)
	assert.False(t, entries[0].CreatedAt.IsZero(), "timestamp set on enqueue")
	assert.Zero(t, r.Dropped())
}

func TestRecorder_NeverBlocksWhenFull(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	r := NewRecorder(store, 1, log.NewNop())

	// The writer is stuck on the gate; after the buffer fills, further
	// records must return immediately and be dropped.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Record(domain.QueryLogEntry{Query: "q", MatchedBy: domain.TierNone})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	assert.Positive(t, r.Dropped())

	close(store.gate)
	r.Close()
}

func TestRecorder_InsertFailureIsSwallowed(t *testing.T) {
	store := &fakeStore{err: assert.AnError}
	r := NewRecorder(store, 8, log.NewNop())

	// Must not panic or surface the error anywhere.
	r.Record(domain.QueryLogEntry{Query: "parking", MatchedBy: domain.TierText})
	r.Close()

	assert.Empty(t, store.all())
}

func TestRecorder_RecordAfterCloseIsDropped(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, 8, log.NewNop())
	r.Close()

	r.Record(domain.QueryLogEntry{Query: "late", MatchedBy: domain.TierNone})

	assert.Empty(t, store.all())
	assert.Positive(t, r.Dropped())
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	r := NewRecorder(&fakeStore{}, 8, log.NewNop())
	r.Close()
	r.Close()
}

func TestRecorder_TopQueries(t *testing.T) {
	r := NewRecorder(&fakeStore{}, 8, log.NewNop())
	defer r.Close()

	counts, err := r.TopQueries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, "parking", counts[0].Query)
}
