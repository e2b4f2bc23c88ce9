package telemetry

import (
	"context"
	"time"
)

// Monitor owns one session's collector and its periodic recomputation timer.
// Construct at session begin, Stop at session end; stopping releases the
// timer deterministically and discards any in-flight snapshot.
type Monitor struct {
	UserID    string
	SessionID string

	collector *Collector
	interval  time.Duration
	onTick    func(ctx context.Context)
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMonitor creates a session monitor. onTick runs once per interval while
// the monitor is started, typically snapshotting and scoring the session.
func NewMonitor(userID, sessionID string, collector *Collector, interval time.Duration, onTick func(ctx context.Context)) *Monitor {
	return &Monitor{
		UserID:    userID,
		SessionID: sessionID,
		collector: collector,
		interval:  interval,
		onTick:    onTick,
		done:      make(chan struct{}),
	}
}

// Collector returns the session's collector.
func (m *Monitor) Collector() *Collector { return m.collector }

// Start launches the periodic recomputation loop. It returns immediately;
// the loop stops when Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.onTick != nil {
					m.onTick(ctx)
				}
			}
		}
	}()
}

// Stop cancels the periodic loop and waits for it to exit. Safe to call once
// after Start; the session's snapshot state is discarded, not flushed.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}
