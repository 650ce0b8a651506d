package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RunEvery runs a refresh immediately and then on every interval until ctx is
// cancelled. Each run is bounded by timeout. A failed run is logged and the
// loop continues.
func (r *Refresher) RunEvery(ctx context.Context, interval, timeout time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", interval)
	}
	if timeout <= 0 {
		timeout = interval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.runOnce(ctx, timeout)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context, timeout time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report, err := r.Run(runCtx)
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, context.DeadlineExceeded):
		r.logger.Error().Dur("timeout", timeout).Int("federations", report.Federations).Msg("refresh timed out")
	default:
		r.logger.Error().Err(err).Msg("refresh failed")
	}
}
