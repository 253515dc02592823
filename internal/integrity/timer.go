package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer periodically runs integrity verification over a sliding lookback
// window.
type Timer struct {
	monitor  *Monitor
	interval time.Duration
	lookback time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a continuous verification timer. Zero interval defaults to
// 5 minutes, zero lookback to 24 hours.
func NewTimer(monitor *Monitor, interval, lookback time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Timer{
		monitor:  monitor,
		interval: interval,
		lookback: lookback,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the periodic verification loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeRun(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in integrity timer", "panic", fmt.Sprint(r))
		}
	}()

	now := time.Now()
	report, err := t.monitor.Verify(ctx, now.Add(-t.lookback), now)
	if err != nil {
		checkErrors.Inc()
		t.logger.Warn("integrity verification failed", "error", err)
		return
	}
	if len(report.Violations) > 0 {
		t.logger.Error("integrity violations found",
			"violations", len(report.Violations),
			"completed", report.CompletedCount,
			"rate", report.IntegrityRate,
		)
	}
}
