package polling

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
)

type countingResyncer struct {
	calls atomic.Int32
	block chan struct{}
}

func (r *countingResyncer) Resync(ctx context.Context) error {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	return nil
}

func alwaysTrue() bool  { return true }
func alwaysFalse() bool { return false }

func TestTicksResyncWhileDisconnected(t *testing.T) {
	resyncer := &countingResyncer{}
	s := NewScheduler(20*time.Millisecond, resyncer, alwaysTrue, alwaysFalse, logging.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	cancel()

	assert.Greater(t, resyncer.calls.Load(), int32(1))
}

func TestTicksSkippedWhileChannelConnected(t *testing.T) {
	resyncer := &countingResyncer{}
	s := NewScheduler(20*time.Millisecond, resyncer, alwaysTrue, alwaysTrue, logging.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	cancel()

	assert.Zero(t, resyncer.calls.Load(), "polling is a fallback, not a supplement to the push channel")
}

func TestTicksSkippedWithoutActiveSession(t *testing.T) {
	resyncer := &countingResyncer{}
	s := NewScheduler(20*time.Millisecond, resyncer, alwaysFalse, alwaysFalse, logging.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	cancel()

	assert.Zero(t, resyncer.calls.Load())
}

func TestOverlappingResyncSuppressed(t *testing.T) {
	resyncer := &countingResyncer{block: make(chan struct{})}
	s := NewScheduler(time.Hour, resyncer, alwaysTrue, alwaysFalse, logging.NewTestLogger())

	ctx := context.Background()
	s.Kick(ctx)
	time.Sleep(20 * time.Millisecond)
	s.Kick(ctx)
	s.Kick(ctx)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), resyncer.calls.Load(), "an in-flight resync absorbs later triggers")

	close(resyncer.block)
	time.Sleep(20 * time.Millisecond)
	s.Kick(ctx)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), resyncer.calls.Load())
}

func TestKickRunsEvenWhileConnected(t *testing.T) {
	resyncer := &countingResyncer{}
	s := NewScheduler(time.Hour, resyncer, alwaysTrue, alwaysTrue, logging.NewTestLogger())

	s.Kick(context.Background())
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), resyncer.calls.Load(), "the reconnect kick covers the gap the channel was down")
}
