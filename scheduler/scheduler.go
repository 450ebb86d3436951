// Package scheduler runs the facilitator's background jobs — EVM wallet
// gas-balance refresh, wallet-pool health checks, and discovery cleanup — on
// independent timers,
// the way the teacher composes small, named callbacks around its facilitator
// lifecycle hooks.
package scheduler

import (
	"context"
	"time"

	"github.com/x402-facilitator/facilitator/clock"
	"github.com/x402-facilitator/facilitator/logging"
)

// Job is one unit of scheduled work, run once per tick of its own timer.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Loop drives a set of Jobs on independent tickers until Stop is called.
// Each Job also fires once immediately on Start, so a facilitator never
// serves traffic against stale wallet balances while waiting for the first
// tick.
type Loop struct {
	jobs   []Job
	clock  clock.Clock
	logger logging.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func New(jobs []Job, c clock.Clock, logger logging.Logger) *Loop {
	if c == nil {
		c = clock.System{}
	}
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &Loop{jobs: jobs, clock: c, logger: logger}
}

// Start launches one goroutine per job and returns immediately.
func (l *Loop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{}, len(l.jobs))

	for _, job := range l.jobs {
		go l.runJob(ctx, job)
	}
}

// Stop cancels every job and blocks until each has exited.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	for range l.jobs {
		<-l.done
	}
}

func (l *Loop) runJob(ctx context.Context, job Job) {
	defer func() { l.done <- struct{}{} }()

	l.tick(ctx, job)

	if job.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx, job)
		}
	}
}

func (l *Loop) tick(ctx context.Context, job Job) {
	if err := job.Run(ctx); err != nil {
		l.logger.Warn("scheduled job failed", map[string]any{"job": job.Name, "error": err.Error()})
	}
}
