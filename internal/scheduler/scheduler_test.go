package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunOnceCallsTaskOnce(t *testing.T) {
	s := New(time.Minute)
	s.RunOnce = true
	calls := 0
	s.Start(context.Background(), func(context.Context) { calls++ })
	assert.Equal(t, 1, calls)
}

func TestLoopRunsSeriallyUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(10 * time.Minute)
	var waits []time.Duration
	s.waitFn = func(ctx context.Context, d time.Duration) bool {
		waits = append(waits, d)
		return ctx.Err() == nil
	}
	running, maxRunning, calls := 0, 0, 0
	s.Start(ctx, func(context.Context) {
		running++
		if running > maxRunning {
			maxRunning = running
		}
		calls++
		if calls == 3 {
			cancel()
		}
		running--
	})
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, maxRunning)
	assert.Equal(t, []time.Duration{10 * time.Minute, 10 * time.Minute, 10 * time.Minute}, waits)
}

func TestWithoutRunImmediatelyWaitsFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(time.Minute)
	s.RunImmediately = false
	var order []string
	s.waitFn = func(ctx context.Context, d time.Duration) bool {
		order = append(order, "wait")
		return ctx.Err() == nil
	}
	s.Start(ctx, func(context.Context) {
		order = append(order, "run")
		cancel()
	})
	assert.Equal(t, []string{"wait", "run", "wait"}, order)
}

func TestAlignedWaitHitsBoundaryPlusOffset(t *testing.T) {
	s := New(time.Hour)
	s.Align = true
	s.Offset = 5 * time.Second
	now := time.Date(2026, 5, 1, 10, 20, 0, 0, time.UTC)
	assert.Equal(t, 40*time.Minute+5*time.Second, s.nextWait(now))

	s.Align = false
	assert.Equal(t, time.Hour, s.nextWait(now))
}

func TestInvalidIntervalExits(t *testing.T) {
	s := New(0)
	calls := 0
	s.Start(context.Background(), func(context.Context) { calls++ })
	assert.Equal(t, 0, calls)
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, wait(ctx, time.Hour))
	assert.True(t, wait(context.Background(), 0))
}
