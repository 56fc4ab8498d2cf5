package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/auctionhouse/internal/money"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{from: OrderStatusCompleted, to: OrderStatusShipped, allowed: true},
		{from: OrderStatusCompleted, to: OrderStatusDisputed, allowed: true},
		{from: OrderStatusShipped, to: OrderStatusDisputed, allowed: true},
		{from: OrderStatusShipped, to: OrderStatusCompleted, allowed: false},
		{from: OrderStatusDisputed, to: OrderStatusShipped, allowed: false},
		{from: OrderStatusCompleted, to: OrderStatusCompleted, allowed: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.ElementsMatch(t, []OrderStatus{OrderStatusCompleted, OrderStatusShipped}, PredecessorsOf(OrderStatusDisputed))
	assert.Empty(t, PredecessorsOf(OrderStatusCompleted))
}

func TestListingExpired(t *testing.T) {
	end := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := Listing{Type: ListingTypeAuction, EndDate: end}

	assert.False(t, l.Expired(end.Add(-time.Nanosecond)))
	assert.True(t, l.Expired(end))

	fixed := Listing{Type: ListingTypeFixedPrice, EndDate: end}
	assert.False(t, fixed.Expired(end.Add(time.Hour)))
}

func TestSettlementKey(t *testing.T) {
	o := Order{ListingID: 12, CheckoutBatchID: "b-1"}
	assert.Equal(t, SettlementKey{ListingID: 12, BatchID: "b-1"}, o.Key())
	assert.Equal(t, "12/b-1", o.Key().String())
	assert.Equal(t, "12", SettlementKey{ListingID: 12}.String())
}

func TestAuctionWonEventCarriesPrice(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := AuctionWonEvent(3, 9, money.MustParse("76.50"), at)

	assert.Equal(t, EventAuctionWon, ev.Type)
	if assert.NotNil(t, ev.FinalPrice) {
		assert.Equal(t, "76.50", ev.FinalPrice.String())
	}
	assert.Nil(t, OutbidEvent(3, 8, at).FinalPrice)
}
