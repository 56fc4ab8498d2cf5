package auction

import (
	"context"

	"github.com/mmeshcher/auctionhouse/internal/model"
)

//go:generate mockgen -source=sink.go -destination=mock_sink_test.go -package=auction

// EventSink принимает события торгов. Публикация не возвращает ошибку:
// доставка best-effort и не влияет на сохранённое состояние.
type EventSink interface {
	Publish(ctx context.Context, event model.Event)
}

type nopSink struct{}

func (nopSink) Publish(context.Context, model.Event) {}
