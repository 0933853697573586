package rangehttp

import (
	"time"

	"github.com/tanq16/yandl/internal/utils"
)

const progressInterval = 100 * time.Millisecond

// progressAggregator owns the running byte total of one transfer.
type progressAggregator struct {
	id       string
	label    string
	size     int64
	report   func(utils.ProgressUpdate)
	interval time.Duration
}

// run sums deltas until progressCh closes and returns the net total. The
// reported value stays within [0, size] while rollbacks are in flight.
func (a *progressAggregator) run(progressCh <-chan ProgressDelta) int64 {
	interval := a.interval
	if interval <= 0 {
		interval = progressInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	lastTime := start
	var total, lastShown int64
	emit := func(now time.Time) {
		shown := min(max(total, 0), a.size)
		if a.report == nil {
			return
		}
		elapsed := now.Sub(start)
		var speed float64
		if dt := now.Sub(lastTime).Seconds(); dt > 0 {
			speed = max(float64(shown-lastShown)/dt, 0)
		}
		var remaining time.Duration
		if shown > 0 && shown < a.size {
			avg := float64(shown) / elapsed.Seconds()
			remaining = time.Duration(float64(a.size-shown) / avg * float64(time.Second))
		}
		a.report(utils.ProgressUpdate{
			ID:        a.id,
			Label:     a.label,
			Completed: shown,
			Total:     a.size,
			Speed:     speed,
			Elapsed:   elapsed,
			Remaining: remaining,
		})
		lastShown, lastTime = shown, now
	}

	for {
		select {
		case delta, ok := <-progressCh:
			if !ok {
				emit(time.Now())
				return total
			}
			total += int64(delta)
		case now := <-ticker.C:
			emit(now)
		}
	}
}
