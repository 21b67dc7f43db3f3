// Package supervisor runs the reap-then-fill dispatch loop that polls the
// job queue and runs a bounded number of JobProcessor.Process calls
// concurrently, generalizing jobmanager/manager.go's Start/Stop/processLoop
// shape and worker/main.py's poll-and-dispatch loop.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/interfaces"
	"golang.org/x/time/rate"
)

// Processor runs a single job to completion. interfaces.Sandboxer-style
// narrowing keeps WorkerSupervisor decoupled from the processor package's
// concrete storage dependencies.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

// handle tracks one dispatched job's lifetime.
type handle struct {
	done chan struct{}
}

// WorkerSupervisor polls QueueStore for pending jobs and dispatches each to
// Processor, bounding concurrency to config.Worker.MaxConcurrentJobs.
type WorkerSupervisor struct {
	queue     interfaces.QueueStore
	processor Processor
	logger    *common.Logger
	config    *common.Config

	mu     sync.Mutex
	active map[string]*handle
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a WorkerSupervisor.
func New(queue interfaces.QueueStore, processor Processor, logger *common.Logger, config *common.Config) *WorkerSupervisor {
	return &WorkerSupervisor{
		queue:     queue,
		processor: processor,
		logger:    logger,
		config:    config,
		active:    map[string]*handle{},
	}
}

// safeGo launches fn in a goroutine tracked by the supervisor's WaitGroup,
// recovering and logging any panic instead of crashing the process.
func (s *WorkerSupervisor) safeGo(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in supervisor goroutine")
			}
		}()
		fn()
	}()
}

// Run resets orphaned jobs, then polls and dispatches until ctx is
// cancelled, blocking until every in-flight job has returned.
func (s *WorkerSupervisor) Run(ctx context.Context, policy interfaces.OrphanPolicy) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if count, err := s.queue.ResetOrphaned(runCtx, policy); err != nil {
		s.logger.Warn().Err(err).Msg("failed to reset orphaned jobs")
	} else if count > 0 {
		s.logger.Info().Int("count", count).Msg("reset orphaned jobs at startup")
	}

	maxConcurrent := s.config.Worker.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	pollInterval := time.Duration(s.config.Worker.PollIntervalSec * float64(time.Second))
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)

	s.logger.Info().
		Int("max_concurrent_jobs", maxConcurrent).
		Dur("poll_interval", pollInterval).
		Msg("worker supervisor starting")

	s.pollLoop(runCtx, maxConcurrent, limiter)
	s.wg.Wait()
	s.logger.Info().Msg("worker supervisor stopped")
	return nil
}

// Stop cancels the run loop and waits for in-flight jobs' goroutines to
// return. The cancellation reaches in-flight Process calls through their
// context: a job inside Sandbox.Execute has its child process killed and
// gets an ErrCancelled result.
func (s *WorkerSupervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *WorkerSupervisor) pollLoop(ctx context.Context, maxConcurrent int, limiter *rate.Limiter) {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		s.reap()

		s.mu.Lock()
		slots := maxConcurrent - len(s.active)
		s.mu.Unlock()
		if slots <= 0 {
			continue
		}

		jobs, err := s.queue.FetchPending(ctx, slots)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to fetch pending jobs")
			continue
		}

		for _, job := range jobs {
			s.dispatch(ctx, job.ID)
		}
	}
}

// reap drops finished handles from the active set.
func (s *WorkerSupervisor) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.active {
		select {
		case <-h.done:
			delete(s.active, id)
		default:
		}
	}
}

func (s *WorkerSupervisor) dispatch(ctx context.Context, jobID string) {
	h := &handle{done: make(chan struct{})}

	s.mu.Lock()
	s.active[jobID] = h
	s.mu.Unlock()

	s.safeGo("job-"+jobID, func() {
		defer close(h.done)
		if err := s.processor.Process(ctx, jobID); err != nil {
			s.logger.Warn().Str("job_id", jobID).Err(err).Msg("job processing failed")
		}
	})

	s.logger.Debug().Str("job_id", jobID).Msg("dispatched job")
}
