package engine

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/rcliao/dsam/internal/notify"
)

// RetentionThreshold is the stored relevance below which an expired memory is evicted.
const RetentionThreshold = 0.5

// PerformCleanup removes every memory older than the memory window whose
// stored relevance is below RetentionThreshold. It returns the number removed.
func (e *Engine) PerformCleanup(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.MemoryWindow())

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, ErrClosed
	}
	var doomed []string
	for _, m := range e.store.All() {
		if err := ctx.Err(); err != nil {
			e.mu.Unlock()
			return 0, err
		}
		if m.Timestamp.Before(cutoff) && m.RelevanceScore < RetentionThreshold {
			doomed = append(doomed, m.ID)
		}
	}
	for _, id := range doomed {
		e.store.Delete(id)
		e.index.Remove(id)
		e.cache.Del(id)
	}
	e.mu.Unlock()

	if n := len(doomed); n > 0 {
		logf("cleanup removed %d memories older than %s", n, cutoff.Format(time.RFC3339))
		e.publish(notify.EventMemoryCleanup, map[string]any{"removed": n, "ids": doomed})
	}
	return len(doomed), nil
}

// StartRetention runs PerformCleanup on the configured cron schedule, or
// every cleanup interval when none is set. Calling it twice, or once Close
// has begun, is a no-op.
func (e *Engine) StartRetention() {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.stopCh != nil || e.stopping || e.isClosed() {
		return
	}
	stop := make(chan struct{})
	e.stopCh = stop

	e.wg.Add(1)
	go e.runRetention(stop)
	if e.cfg.CleanupSchedule != "" {
		logf("retention scheduler started (schedule %q)", e.cfg.CleanupSchedule)
	} else {
		logf("retention scheduler started (every %s)", e.interval)
	}
}

// StopRetention stops the scheduler and waits for an in-flight cleanup.
func (e *Engine) StopRetention() {
	e.schedMu.Lock()
	stop := e.stopCh
	e.stopCh = nil
	e.schedMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	e.wg.Wait()
	logf("retention scheduler stopped")
}

func (e *Engine) runRetention(stop <-chan struct{}) {
	defer e.wg.Done()

	for {
		timer := time.NewTimer(e.nextDelay())
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			if _, err := e.PerformCleanup(context.Background()); err != nil {
				logf("cleanup failed: %v", err)
			}
		}
	}
}

func (e *Engine) nextDelay() time.Duration {
	if e.cfg.CleanupSchedule != "" {
		now := e.now()
		next, err := gronx.NextTickAfter(e.cfg.CleanupSchedule, now, false)
		if err == nil {
			if d := next.Sub(now); d > 0 {
				return d
			}
		} else {
			logf("bad cleanup schedule %q, using interval: %v", e.cfg.CleanupSchedule, err)
		}
	}
	if e.interval <= 0 {
		return 24 * time.Hour
	}
	return e.interval
}
