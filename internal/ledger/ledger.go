// Package ledger хранит максимальные ставки по одному лоту и считает видимую цену
// по правилам прокси-торгов второй цены.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/mmeshcher/auctionhouse/internal/auctionerr"
	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
)

// Ledger не потокобезопасен: вызывающий сериализует доступ по лоту.
type Ledger struct {
	listingID     int64
	startingPrice money.Money
	increment     money.Money
	bids          []model.Bid
	nextSeq       int64
}

// Outcome описывает результат принятой ставки.
type Outcome struct {
	Bid              model.Bid
	CurrentPrice     money.Money
	PreviousLeaderID int64
	LeaderID         int64
	LeaderChanged    bool
}

// New восстанавливает журнал из сохранённых ставок.
func New(listingID int64, startingPrice, increment money.Money, bids []model.Bid) *Ledger {
	l := &Ledger{
		listingID:     listingID,
		startingPrice: startingPrice,
		increment:     increment,
		bids:          append([]model.Bid(nil), bids...),
		nextSeq:       1,
	}
	for _, b := range l.bids {
		if b.Seq >= l.nextSeq {
			l.nextSeq = b.Seq + 1
		}
	}
	l.sort()
	return l
}

// Len возвращает число живых ставок.
func (l *Ledger) Len() int {
	return len(l.bids)
}

// Bids возвращает ставки в порядке старшинства.
func (l *Ledger) Bids() []model.Bid {
	return append([]model.Bid(nil), l.bids...)
}

// Leader возвращает ведущую ставку.
func (l *Ledger) Leader() (model.Bid, bool) {
	if len(l.bids) == 0 {
		return model.Bid{}, false
	}
	return l.bids[0], true
}

// CurrentPrice возвращает публичную цену. Максимум единственного участника не раскрывается.
func (l *Ledger) CurrentPrice() money.Money {
	price := l.startingPrice
	if len(l.bids) >= 2 {
		price = money.Min(l.bids[0].MaxBid, l.bids[1].MaxBid.Add(l.increment))
	}
	if price.Less(l.startingPrice) {
		panic(fmt.Sprintf("LEDGER_INVARIANT_PRICE_BELOW_START: listing %d price %s start %s",
			l.listingID, price, l.startingPrice))
	}
	return price
}

// MinimumAcceptableBid возвращает наименьшую допустимую максимальную ставку.
func (l *Ledger) MinimumAcceptableBid() money.Money {
	return l.CurrentPrice().Add(l.increment)
}

// Record принимает или отклоняет ставку. Отклонённая ставка журнал не меняет.
// Ставки выше money.Max отклоняются до любых вычислений цены.
func (l *Ledger) Record(bidderID int64, maxBid money.Money, at time.Time) (Outcome, error) {
	if money.Max.Less(maxBid) {
		return Outcome{}, fmt.Errorf("%w: maximum is %s", auctionerr.ErrBidTooHigh, money.Max)
	}

	minimum := l.MinimumAcceptableBid()
	if maxBid.Less(minimum) {
		return Outcome{}, fmt.Errorf("%w: minimum is %s", auctionerr.ErrBidTooLow, minimum)
	}

	idx := l.indexOf(bidderID)
	if idx >= 0 && maxBid.Cmp(l.bids[idx].MaxBid) <= 0 {
		return Outcome{}, fmt.Errorf("%w: previous maximum is %s", auctionerr.ErrSelfOutbid, l.bids[idx].MaxBid)
	}

	var previousLeader int64
	if leader, ok := l.Leader(); ok {
		previousLeader = leader.BidderID
	}

	bid := model.Bid{
		ListingID: l.listingID,
		BidderID:  bidderID,
		MaxBid:    maxBid,
		PlacedAt:  at,
		Seq:       l.nextSeq,
	}
	l.nextSeq++

	if idx >= 0 {
		l.bids[idx] = bid
	} else {
		l.bids = append(l.bids, bid)
	}
	l.sort()

	leader, _ := l.Leader()
	return Outcome{
		Bid:              bid,
		CurrentPrice:     l.CurrentPrice(),
		PreviousLeaderID: previousLeader,
		LeaderID:         leader.BidderID,
		LeaderChanged:    previousLeader != leader.BidderID,
	}, nil
}

func (l *Ledger) indexOf(bidderID int64) int {
	for i, b := range l.bids {
		if b.BidderID == bidderID {
			return i
		}
	}
	return -1
}

// sort упорядочивает ставки: больший максимум первым, при равенстве первой идёт записанная раньше.
func (l *Ledger) sort() {
	sort.SliceStable(l.bids, func(i, j int) bool {
		if c := l.bids[i].MaxBid.Cmp(l.bids[j].MaxBid); c != 0 {
			return c > 0
		}
		return l.bids[i].Seq < l.bids[j].Seq
	})
}
