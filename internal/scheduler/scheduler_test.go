package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastSource makes the scheduler tick as fast as the loop allows.
type fastSource struct{}

func (fastSource) GetInt(_ context.Context, _ string, _ int) int { return 0 }

func (fastSource) GetFloat(_ context.Context, _ string, def float64) float64 { return def }

func (fastSource) GetBool(_ context.Context, _ string, def bool) bool { return def }

type countingRunner struct {
	calls   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool

	block     chan struct{} // when set, every cycle waits here
	panicKick atomic.Bool   // panic on the first cycle only
}

func (r *countingRunner) RunCycle(context.Context) error {
	if r.active.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.active.Add(-1)
	r.calls.Add(1)

	if r.panicKick.CompareAndSwap(true, false) {
		panic("cycle blew up")
	}
	if r.block != nil {
		<-r.block
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSchedulerRunsCyclesUntilStopped(t *testing.T) {
	r := &countingRunner{}
	s := New(r, fastSource{}, nil)

	s.Start()
	waitFor(t, func() bool { return r.calls.Load() >= 3 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	settled := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, r.calls.Load(), "no ticks after Stop")
	assert.False(t, r.overlap.Load(), "cycles must never overlap")
}

func TestSchedulerStopWaitsForInFlightCycle(t *testing.T) {
	r := &countingRunner{block: make(chan struct{})}
	s := New(r, fastSource{}, nil)

	s.Start()
	waitFor(t, func() bool { return r.calls.Load() >= 1 })

	stopped := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(r.block)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the cycle finished")
	}
}

func TestSchedulerStopHonorsContextDeadline(t *testing.T) {
	r := &countingRunner{block: make(chan struct{})}
	defer close(r.block)
	s := New(r, fastSource{}, nil)

	s.Start()
	waitFor(t, func() bool { return r.calls.Load() >= 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	s.Stop(ctx)
	require.Less(t, time.Since(start), time.Second, "Stop must give up at the deadline")
}

func TestSchedulerSurvivesPanickingCycle(t *testing.T) {
	r := &countingRunner{}
	r.panicKick.Store(true)
	s := New(r, fastSource{}, nil)

	s.Start()
	waitFor(t, func() bool { return r.calls.Load() >= 2 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	r := &countingRunner{}
	s := New(r, fastSource{}, nil)

	s.Start()
	s.Start()
	waitFor(t, func() bool { return r.calls.Load() >= 2 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
	assert.False(t, r.overlap.Load())
}
