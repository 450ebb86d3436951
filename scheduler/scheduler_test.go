package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoop_RunsJobImmediatelyOnStart(t *testing.T) {
	var calls int32
	job := Job{
		Name:     "immediate",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}

	loop := New([]Job{job}, nil, nil)
	loop.Start(context.Background())
	defer loop.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, 5*time.Millisecond)
}

func TestLoop_TicksRepeatedlyOnInterval(t *testing.T) {
	var calls int32
	job := Job{
		Name:     "repeating",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}

	loop := New([]Job{job}, nil, nil)
	loop.Start(context.Background())
	defer loop.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
}

func TestLoop_StopWaitsForJobsToExit(t *testing.T) {
	job := Job{
		Name:     "once",
		Interval: 0,
		Run:      func(ctx context.Context) error { return nil },
	}

	loop := New([]Job{job}, nil, nil)
	loop.Start(context.Background())
	loop.Stop() // must not block forever
}

func TestLoop_JobErrorDoesNotStopOtherJobs(t *testing.T) {
	var okCalls int32
	failing := Job{
		Name:     "failing",
		Interval: 10 * time.Millisecond,
		Run:      func(ctx context.Context) error { return context.DeadlineExceeded },
	}
	ok := Job{
		Name:     "ok",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&okCalls, 1)
			return nil
		},
	}

	loop := New([]Job{failing, ok}, nil, nil)
	loop.Start(context.Background())
	defer loop.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&okCalls) >= 2 }, time.Second, 5*time.Millisecond)
}
