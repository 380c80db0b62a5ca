package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PipeOpsHQ/livehook/internal/store"
)

type cleanupStore struct {
	store.RequestStore

	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (s *cleanupStore) Cleanup(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, cutoff)
	return 3, s.err
}

func (s *cleanupStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cutoffs)
}

func TestWorker_SweepUsesMaxAge(t *testing.T) {
	s := &cleanupStore{}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	w := &Worker{Store: s, MaxAge: 24 * time.Hour, Interval: time.Hour, Logger: zaptest.NewLogger(t), now: func() time.Time { return now }}

	assert.Equal(t, int64(3), w.Sweep(context.Background()))
	require.Len(t, s.cutoffs, 1)
	assert.Equal(t, now.Add(-24*time.Hour), s.cutoffs[0])
}

func TestWorker_SweepError(t *testing.T) {
	s := &cleanupStore{err: errors.New("locked")}
	w := &Worker{Store: s, MaxAge: time.Hour, Interval: time.Hour, Logger: zaptest.NewLogger(t)}

	assert.Zero(t, w.Sweep(context.Background()))
}

func TestWorker_RunDisabled(t *testing.T) {
	s := &cleanupStore{}
	w := &Worker{Store: s, MaxAge: 0, Interval: time.Millisecond}

	w.Run(context.Background())
	assert.Zero(t, s.calls())
}

func TestWorker_RunTicksUntilCancelled(t *testing.T) {
	s := &cleanupStore{}
	w := &Worker{Store: s, MaxAge: time.Hour, Interval: 5 * time.Millisecond, Logger: zaptest.NewLogger(t)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.calls() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

var _ store.RequestStore = (*cleanupStore)(nil)
