// Package scheduler runs the trading cycle on a fixed cadence, one cycle at
// a time.
package scheduler

import (
	"context"
	"time"

	"tradecouncil/internal/logger"
)

// Scheduler calls its task synchronously, so runs never overlap. By default
// it sleeps Interval after each run; with Align it wakes at the next
// multiple of Interval plus Offset instead.
type Scheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	Align          bool
	RunImmediately bool
	// RunOnce executes the task a single time and returns.
	RunOnce bool

	nowFn  func() time.Time
	waitFn func(ctx context.Context, d time.Duration) bool
}

func New(interval time.Duration) *Scheduler {
	return &Scheduler{
		Interval:       interval,
		RunImmediately: true,
		nowFn:          time.Now,
		waitFn:         wait,
	}
}

// Start blocks until ctx is done, or after one run in RunOnce mode.
func (s *Scheduler) Start(ctx context.Context, task func(ctx context.Context)) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("Scheduler: task is nil, exit")
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	if s.waitFn == nil {
		s.waitFn = wait
	}
	if s.RunOnce {
		logger.Infof("Scheduler: run once")
		task(ctx)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("Scheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("Scheduler: negative offset=%s, clamp to 0", s.Offset)
		s.Offset = 0
	}

	startAt := s.nowFn().UTC()
	logger.Infof("Scheduler: started interval=%s align=%v offset=%s run_immediately=%v at=%s",
		s.Interval, s.Align, s.Offset, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		if ctx.Err() != nil {
			return
		}
		task(ctx)
	}
	for {
		now := s.nowFn().UTC()
		d := s.nextWait(now)
		logger.Infof("Scheduler: next run at=%s (in %s) | uptime=%s",
			now.Add(d).Format(time.RFC3339), d.Truncate(time.Second), now.Sub(startAt).Truncate(time.Second))
		if !s.waitFn(ctx, d) {
			logger.Infof("Scheduler: ctx done, exit")
			return
		}
		task(ctx)
	}
}

func (s *Scheduler) nextWait(now time.Time) time.Duration {
	if !s.Align {
		return s.Interval
	}
	next := now.Truncate(s.Interval).Add(s.Interval).Add(s.Offset)
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
