package auction

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweeper каждые interval закрывает истёкшие аукционы и рассылает напоминания
// о скором окончании. Блокируется до отмены ctx.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration, clock func() time.Time) error {
	if clock == nil {
		clock = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.sweepOnce(ctx, clock())
		}
	}
}

func (e *Engine) sweepOnce(ctx context.Context, now time.Time) {
	settled, err := e.SweepExpired(ctx, now)
	if err != nil && ctx.Err() == nil {
		e.logger.Error("sweep expired auctions", zap.Error(err))
	}
	if len(settled) > 0 {
		e.logger.Info("expired auctions settled", zap.Int("count", len(settled)))
	}

	notified, err := e.NotifyEndingSoon(ctx, now)
	if err != nil && ctx.Err() == nil {
		e.logger.Error("notify ending soon", zap.Error(err))
	}
	if notified > 0 {
		e.logger.Info("ending soon reminders sent", zap.Int("listings", notified))
	}
}
