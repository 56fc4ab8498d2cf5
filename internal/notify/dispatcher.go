package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/auctionhouse/internal/model"
)

// Sender отправляет одно событие. Ненулевая пауза означает просьбу подождать перед повтором.
type Sender interface {
	Send(ctx context.Context, ev model.Event) (time.Duration, error)
}

const (
	defaultQueueSize   = 1024
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
)

// Dispatcher ставит события в очередь и доставляет их в фоне через Sender.
// Publish не блокируется: при переполненной очереди событие отбрасывается.
type Dispatcher struct {
	sender      Sender
	events      chan model.Event
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
}

// NewDispatcher создаёт диспетчер. queueSize <= 0 означает размер по умолчанию.
func NewDispatcher(sender Sender, logger *zap.Logger, queueSize int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		sender:      sender,
		events:      make(chan model.Event, queueSize),
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
}

// Publish ставит событие в очередь доставки.
func (d *Dispatcher) Publish(_ context.Context, ev model.Event) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warn("event queue full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.Int64("listing_id", ev.ListingID),
			zap.Int64("user_id", ev.UserID),
		)
	}
}

// Run доставляет события до отмены ctx.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.events); n > 0 {
				d.logger.Warn("dispatcher stopped with undelivered events", zap.Int("count", n))
			}
			return nil
		case ev := <-d.events:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev model.Event) {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		var retryAfter time.Duration
		retryAfter, err = d.sender.Send(ctx, ev)
		if err == nil {
			return
		}
		if attempt == d.maxAttempts {
			break
		}

		wait := retryAfter
		if wait <= 0 || !errors.Is(err, ErrRateLimited) {
			wait = d.backoff * time.Duration(attempt)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	d.logger.Error("failed to deliver event",
		zap.String("type", string(ev.Type)),
		zap.Int64("listing_id", ev.ListingID),
		zap.Int64("user_id", ev.UserID),
		zap.Int("attempts", d.maxAttempts),
		zap.Error(err),
	)
}

// LogSink пишет события в лог. Используется, когда адрес сервиса уведомлений не задан.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, ev model.Event) {
	fields := []zap.Field{
		zap.String("type", string(ev.Type)),
		zap.Int64("listing_id", ev.ListingID),
		zap.Int64("user_id", ev.UserID),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if ev.FinalPrice != nil {
		fields = append(fields, zap.String("final_price", ev.FinalPrice.String()))
	}
	s.logger.Info("event", fields...)
}
