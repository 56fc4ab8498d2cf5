package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
)

// stubWriter emulates a unique key: the first insert wins, later ones get the stored row.
type stubWriter struct {
	mu      sync.Mutex
	orders  map[model.SettlementKey]*model.Order
	inserts int
	findErr error
}

func newStubWriter() *stubWriter {
	return &stubWriter{orders: make(map[model.SettlementKey]*model.Order)}
}

func (w *stubWriter) FindOrder(ctx context.Context, key model.SettlementKey) (*model.Order, error) {
	if w.findErr != nil {
		return nil, w.findErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.orders[key]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (w *stubWriter) InsertOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inserts++
	if existing, ok := w.orders[order.Key()]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *order
	w.orders[order.Key()] = &cp
	return order, nil
}

func request(listingID int64, batch string) Request {
	return Request{
		Key:        model.SettlementKey{ListingID: listingID, BatchID: batch},
		Title:      "Antique Pocket Watch",
		SellerID:   10,
		BuyerID:    20,
		FinalPrice: money.MustParse("76.50"),
		At:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateOrder_NewOrder(t *testing.T) {
	s := NewSettler(nil)
	w := newStubWriter()

	order, created, err := s.CreateOrder(context.Background(), w, request(1, ""))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, model.OrderStatusCompleted, order.Status)
	assert.False(t, order.ReviewLeftByBuyer)
	assert.False(t, order.ReviewLeftBySeller)
	assert.Equal(t, "76.50", order.FinalPrice.String())
}

func TestCreateOrder_Idempotent(t *testing.T) {
	s := NewSettler(nil)
	w := newStubWriter()
	ctx := context.Background()

	first, created, err := s.CreateOrder(ctx, w, request(1, ""))
	require.NoError(t, err)
	require.True(t, created)

	retry := request(1, "")
	retry.FinalPrice = money.MustParse("999")
	second, created, err := s.CreateOrder(ctx, w, retry)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.FinalPrice, second.FinalPrice)
	assert.Equal(t, 1, w.inserts)
}

func TestCreateOrder_BatchIsPartOfKey(t *testing.T) {
	s := NewSettler(nil)
	w := newStubWriter()
	ctx := context.Background()

	a, _, err := s.CreateOrder(ctx, w, request(1, "batch-a"))
	require.NoError(t, err)
	b, _, err := s.CreateOrder(ctx, w, request(1, "batch-b"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCreateOrder_ConcurrentSameKey(t *testing.T) {
	s := NewSettler(nil)
	var n atomic.Int64
	s.newID = func() string { return fmt.Sprintf("order-%d", n.Add(1)) }
	w := newStubWriter()

	const callers = 32
	ids := make([]string, callers)
	var createdCount atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, created, err := s.CreateOrder(context.Background(), w, request(7, ""))
			if !assert.NoError(t, err) {
				return
			}
			if created {
				createdCount.Add(1)
			}
			ids[i] = o.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), createdCount.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, w.orders, 1)
}

func TestCreateOrder_FindError(t *testing.T) {
	s := NewSettler(nil)
	w := newStubWriter()
	w.findErr = errors.New("connection reset by peer")

	_, _, err := s.CreateOrder(context.Background(), w, request(1, ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, w.findErr)
}
