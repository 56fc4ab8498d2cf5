package ledger

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/auctionhouse/internal/auctionerr"
	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
)

var (
	t0  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	one = money.MustParse("1.00")
)

func m(s string) money.Money { return money.MustParse(s) }

func TestCurrentPrice_SecondPrice(t *testing.T) {
	tests := []struct {
		name       string
		start      string
		bids       [][2]any // bidder, max
		wantPrice  string
		wantLeader int64
	}{
		{name: "no bids", start: "50", wantPrice: "50.00"},
		{name: "single bid stays private", start: "50", bids: [][2]any{{int64(1), "200"}}, wantPrice: "50.00", wantLeader: 1},
		{name: "runner-up plus increment", start: "50", bids: [][2]any{{int64(1), "100"}, {int64(2), "80"}}, wantPrice: "81.00", wantLeader: 1},
		{name: "capped by leader max", start: "50", bids: [][2]any{{int64(1), "75.50"}, {int64(2), "75.00"}}, wantPrice: "75.50", wantLeader: 1},
		{name: "tie goes to first", start: "50", bids: [][2]any{{int64(1), "100"}, {int64(2), "100"}}, wantPrice: "100.00", wantLeader: 1},
		{name: "later higher bid leads", start: "50", bids: [][2]any{{int64(1), "75.50"}, {int64(2), "90"}}, wantPrice: "76.50", wantLeader: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(1, m(tt.start), one, nil)
			for i, b := range tt.bids {
				_, err := l.Record(b[0].(int64), m(b[1].(string)), t0.Add(time.Duration(i)*time.Minute))
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantPrice, l.CurrentPrice().String())
			leader, ok := l.Leader()
			if tt.wantLeader == 0 {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantLeader, leader.BidderID)
		})
	}
}

func TestRecord_RejectionDoesNotMutate(t *testing.T) {
	l := New(1, m("50"), one, nil)
	_, err := l.Record(1, m("100"), t0)
	require.NoError(t, err)
	_, err = l.Record(2, m("80"), t0.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, "81.00", l.CurrentPrice().String())
	before := l.Bids()

	_, err = l.Record(3, m("50"), t0.Add(2*time.Second))
	require.ErrorIs(t, err, auctionerr.ErrBidTooLow)
	assert.Equal(t, "81.00", l.CurrentPrice().String())
	assert.Equal(t, before, l.Bids())
}

func TestRecord_BidAboveMaxRejected(t *testing.T) {
	l := New(1, m("50"), one, nil)
	_, err := l.Record(1, m("100"), t0)
	require.NoError(t, err)
	before := l.Bids()

	for _, bid := range []money.Money{money.FromCents(math.MaxInt64), money.FromCents(money.MaxCents + 1)} {
		_, err = l.Record(2, bid, t0.Add(time.Second))
		require.ErrorIs(t, err, auctionerr.ErrBidTooHigh)
		assert.Equal(t, before, l.Bids())
	}

	out, err := l.Record(2, money.Max, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, out.LeaderChanged)
	assert.Equal(t, "101.00", out.CurrentPrice.String())

	// ставка на минимум после потолка: цена не переполняется
	assert.Equal(t, money.Max, l.Bids()[0].MaxBid)
	_, err = l.Record(3, l.MinimumAcceptableBid(), t0.Add(3*time.Second))
	require.NoError(t, err)
	leader, _ := l.Leader()
	assert.Equal(t, int64(2), leader.BidderID)
}

func TestRecord_MinimumIsInclusive(t *testing.T) {
	l := New(1, m("50"), one, nil)
	assert.Equal(t, "51.00", l.MinimumAcceptableBid().String())

	_, err := l.Record(1, m("50.99"), t0)
	require.ErrorIs(t, err, auctionerr.ErrBidTooLow)

	_, err = l.Record(1, m("51"), t0)
	require.NoError(t, err)
}

func TestRecord_SelfRaise(t *testing.T) {
	l := New(1, m("50"), one, nil)
	_, err := l.Record(1, m("70"), t0)
	require.NoError(t, err)

	_, err = l.Record(1, m("70"), t0.Add(time.Second))
	require.ErrorIs(t, err, auctionerr.ErrSelfOutbid)

	out, err := l.Record(1, m("80"), t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, out.LeaderChanged)
	assert.Equal(t, 1, l.Len(), "a raise replaces the bidder's entry")
	assert.Equal(t, "50.00", out.CurrentPrice.String())
}

func TestRecord_RaiseToTieLosesPriority(t *testing.T) {
	l := New(1, m("50"), one, nil)
	_, err := l.Record(1, m("60"), t0)
	require.NoError(t, err)
	_, err = l.Record(2, m("100"), t0.Add(time.Second))
	require.NoError(t, err)

	out, err := l.Record(1, m("100"), t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.LeaderID)
	assert.False(t, out.LeaderChanged)
	assert.Equal(t, "100.00", out.CurrentPrice.String())
}

func TestRecord_ReportsLeaderChange(t *testing.T) {
	l := New(1, m("50"), one, nil)

	out, err := l.Record(1, m("75.50"), t0)
	require.NoError(t, err)
	assert.True(t, out.LeaderChanged)
	assert.Zero(t, out.PreviousLeaderID)
	assert.Equal(t, "50.00", out.CurrentPrice.String())

	_, err = l.Record(2, m("50.50"), t0.Add(time.Second))
	require.ErrorIs(t, err, auctionerr.ErrBidTooLow)

	out, err = l.Record(2, m("90"), t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, out.LeaderChanged)
	assert.Equal(t, int64(1), out.PreviousLeaderID)
	assert.Equal(t, int64(2), out.LeaderID)
	assert.Equal(t, "76.50", out.CurrentPrice.String())
}

func TestNew_RestoresOrderAndSequence(t *testing.T) {
	stored := []model.Bid{
		{ListingID: 1, BidderID: 2, MaxBid: m("100"), Seq: 4},
		{ListingID: 1, BidderID: 1, MaxBid: m("100"), Seq: 2},
		{ListingID: 1, BidderID: 3, MaxBid: m("60"), Seq: 3},
	}
	l := New(1, m("50"), one, stored)

	leader, ok := l.Leader()
	require.True(t, ok)
	assert.Equal(t, int64(1), leader.BidderID)

	out, err := l.Record(4, m("200"), t0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.Bid.Seq)
}

func TestCurrentPrice_PanicsOnCorruptLedger(t *testing.T) {
	corrupt := []model.Bid{
		{ListingID: 1, BidderID: 1, MaxBid: m("10"), Seq: 1},
		{ListingID: 1, BidderID: 2, MaxBid: m("5"), Seq: 2},
	}
	l := New(1, m("50"), one, corrupt)
	assert.Panics(t, func() { l.CurrentPrice() })
}

func TestRecord_PriceIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		l := New(1, m("10"), one, nil)
		last := l.CurrentPrice()
		for i := 0; i < 40; i++ {
			bidder := int64(rng.Intn(6) + 1)
			offer := money.FromCents(l.CurrentPrice().Cents() + int64(rng.Intn(3000)) - 500)
			if _, err := l.Record(bidder, offer, t0.Add(time.Duration(i)*time.Second)); err != nil {
				assert.Equal(t, last, l.CurrentPrice())
				continue
			}
			price := l.CurrentPrice()
			require.False(t, price.Less(last), "price went down from %s to %s", last, price)
			last = price
		}
	}
}
