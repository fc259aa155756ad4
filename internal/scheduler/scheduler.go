// Package scheduler drives the extraction pipeline: one cycle per tick, no
// overlap, with the tick cadence re-read every cycle so operators can tune it
// without a restart.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/config"
)

// CycleRunner is the unit of work executed once per tick.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Scheduler is a long-lived service object constructed once by the process
// supervisor; Start and Stop are its only lifecycle methods.
type Scheduler struct {
	proc   CycleRunner
	cfgsrc config.Source
	log    *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(proc CycleRunner, cfgsrc config.Source, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{proc: proc, cfgsrc: cfgsrc, log: log}
}

// Start launches the scheduling loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	s.log.Info("scheduler started")
}

// Stop prevents future ticks and waits for an in-flight cycle to finish, up
// to ctx's deadline. A running cycle is never interrupted.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for in-flight cycle")
	}
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)
	ctx := context.Background()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := s.runCycleSafe(ctx); err != nil {
			// a single cycle's failure is never fatal to the scheduler
			s.log.Error("cycle failed", "err", err)
		}

		interval := time.Duration(s.cfgsrc.GetInt(ctx, constants.CfgPollIntervalSeconds, constants.DefaultPollIntervalSeconds)) * time.Second
		select {
		case <-stop:
			return
		case <-time.After(interval):
		}
	}
}

// runCycleSafe is the scheduler-boundary catch-all: a panicking cycle is
// converted into an error instead of taking the loop down.
func (s *Scheduler) runCycleSafe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return s.proc.RunCycle(ctx)
}
