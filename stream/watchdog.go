package stream

import (
	"sync/atomic"
	"time"
)

// Watchdog runs an action once if it is not stopped within a deadline.
// It never takes part in the success path of the operation it watches.
type Watchdog struct {
	timer *time.Timer
	fired atomic.Bool
}

// StartWatchdog arms a watchdog that calls bark after d. A non-positive d
// returns a watchdog that never fires.
func StartWatchdog(d time.Duration, bark func()) *Watchdog {
	w := &Watchdog{}
	if d <= 0 {
		return w
	}

	w.timer = time.AfterFunc(d, func() {
		w.fired.Store(true)
		bark()
	})
	return w
}

// Stop disarms the watchdog. It reports whether the call prevented bark
// from running.
func (w *Watchdog) Stop() bool {
	if w == nil || w.timer == nil {
		return false
	}
	return w.timer.Stop()
}

// Fired reports whether bark has been called.
func (w *Watchdog) Fired() bool {
	return w != nil && w.fired.Load()
}
