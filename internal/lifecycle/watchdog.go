package lifecycle

import (
	"context"
	"fmt"
	"time"
)

const minWatchInterval = 10 * time.Millisecond

// watch fails the run when no transition happened within the stall timeout.
func (c *Controller) watch(ctx context.Context, p Producer, stop context.CancelFunc, runID string) {
	interval := c.stallTimeout / 4
	if interval < minWatchInterval {
		interval = minWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, c.lastChange.Load())
			idle := time.Since(last)
			if idle < c.stallTimeout {
				continue
			}
			reason := fmt.Sprintf("No progress for %s", c.stallTimeout)
			if p.Fail(reason) {
				c.logger.Warn("run stalled", "run_id", runID, "idle", idle.String())
			}
			stop()
			return
		}
	}
}
