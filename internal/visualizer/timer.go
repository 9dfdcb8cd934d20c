package visualizer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TimerInterval is the refresh period of the recording timer.
const TimerInterval = 50 * time.Millisecond

// FormatElapsed renders d as mm:ss.hh. Minutes are not wrapped.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d.%02d", total/60, total%60, (ms%1000)/10)
}

// Timer reports the time elapsed since a start instant at a fixed interval.
type Timer struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartTimer calls onTick with the formatted elapsed time every interval
// until Stop is called or ctx ends. A non-positive interval uses
// TimerInterval.
func StartTimer(ctx context.Context, start time.Time, interval time.Duration, onTick func(string)) *Timer {
	if interval <= 0 {
		interval = TimerInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Timer{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				onTick(FormatElapsed(now.Sub(start)))
			}
		}
	}()
	return t
}

// Stop cancels the timer and waits for the last tick to return. It is
// idempotent and safe on a nil Timer.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.cancel()
		<-t.done
	})
}
