package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
)

type stubSender struct {
	mu       sync.Mutex
	failures int
	err      error
	retry    time.Duration
	calls    int
	sent     []model.Event
}

func (s *stubSender) Send(_ context.Context, ev model.Event) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return s.retry, s.err
	}
	s.sent = append(s.sent, ev)
	return 0, nil
}

func (s *stubSender) snapshot() (int, []model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]model.Event(nil), s.sent...)
}

func runDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatcher_Delivers(t *testing.T) {
	sender := &stubSender{}
	d := NewDispatcher(sender, nil, 8)
	runDispatcher(t, d)

	d.Publish(context.Background(), model.OutbidEvent(1, 10, occurredAt))
	d.Publish(context.Background(), model.NowLeadingEvent(1, 20, occurredAt))

	require.Eventually(t, func() bool {
		_, sent := sender.snapshot()
		return len(sent) == 2
	}, time.Second, 5*time.Millisecond)

	_, sent := sender.snapshot()
	assert.Equal(t, model.EventOutbid, sent[0].Type)
	assert.Equal(t, model.EventNowLeading, sent[1].Type)
}

func TestDispatcher_RetriesRateLimited(t *testing.T) {
	sender := &stubSender{failures: 2, err: ErrRateLimited, retry: time.Millisecond}
	d := NewDispatcher(sender, nil, 8)
	d.backoff = time.Millisecond
	runDispatcher(t, d)

	d.Publish(context.Background(), model.AuctionWonEvent(1, 20, money.MustParse("10"), occurredAt))

	require.Eventually(t, func() bool {
		_, sent := sender.snapshot()
		return len(sent) == 1
	}, time.Second, 5*time.Millisecond)

	calls, _ := sender.snapshot()
	assert.Equal(t, 3, calls)
}

func TestDispatcher_DropsAfterMaxAttempts(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sender := &stubSender{failures: 10, err: errors.New("connection refused")}
	d := NewDispatcher(sender, zap.New(core), 8)
	d.backoff = time.Millisecond
	runDispatcher(t, d)

	d.Publish(context.Background(), model.OutbidEvent(1, 10, occurredAt))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("failed to deliver event").Len() == 1
	}, time.Second, 5*time.Millisecond)

	calls, sent := sender.snapshot()
	assert.Equal(t, defaultMaxAttempts, calls)
	assert.Empty(t, sent)
}

func TestDispatcher_PublishDoesNotBlockWhenFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := NewDispatcher(&stubSender{}, zap.New(core), 1)

	d.Publish(context.Background(), model.OutbidEvent(1, 10, occurredAt))
	d.Publish(context.Background(), model.OutbidEvent(1, 11, occurredAt))

	assert.Equal(t, 1, logs.FilterMessage("event queue full, dropping event").Len())
}

func TestLogSink_Publish(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewLogSink(zap.New(core))

	s.Publish(context.Background(), model.AuctionWonEvent(3, 20, money.MustParse("76.50"), occurredAt))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "WON", fields["type"])
	assert.Equal(t, "76.50", fields["final_price"])
}
