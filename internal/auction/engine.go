// Package auction управляет жизненным циклом лотов: ставки, buy-now, закрытие по сроку
// и покупка по фиксированной цене.
package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/auctionhouse/internal/auctionerr"
	"github.com/mmeshcher/auctionhouse/internal/ledger"
	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
	"github.com/mmeshcher/auctionhouse/internal/repository"
	"github.com/mmeshcher/auctionhouse/internal/settlement"
)

// Store описывает хранилище, с которым работает движок.
type Store interface {
	InListingTx(ctx context.Context, listingID int64, fn func(tx repository.ListingTx) error) error
	ExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]int64, error)
	AuctionsEndingSoon(ctx context.Context, now, until time.Time, limit int) ([]int64, error)
}

// Options задаёт параметры движка.
type Options struct {
	BidIncrement     money.Money
	EndingSoonWindow time.Duration
	SweepBatch       int
	Logger           *zap.Logger
}

const (
	defaultEndingSoonWindow = 24 * time.Hour
	defaultSweepBatch       = 100
)

// Engine реализует движок торгов. Все изменения одного лота выполняются внутри Store.InListingTx,
// события публикуются после фиксации.
type Engine struct {
	store     Store
	sink      EventSink
	settler   *settlement.Settler
	increment money.Money
	window    time.Duration
	batch     int
	logger    *zap.Logger
}

// BidResult описывает ответ на принятую ставку. Максимальная ставка участника в нём не раскрывается.
type BidResult struct {
	CurrentPrice  money.Money
	LeaderID      int64
	IsLeader      bool
	LeaderChanged bool
}

// NewEngine создаёт движок. sink может быть nil, тогда события отбрасываются.
func NewEngine(store Store, sink EventSink, opts Options) *Engine {
	if sink == nil {
		sink = nopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BidIncrement.IsZero() {
		opts.BidIncrement = money.FromCents(100)
	}
	if opts.EndingSoonWindow <= 0 {
		opts.EndingSoonWindow = defaultEndingSoonWindow
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = defaultSweepBatch
	}

	return &Engine{
		store:     store,
		sink:      sink,
		settler:   settlement.NewSettler(opts.Logger),
		increment: opts.BidIncrement,
		window:    opts.EndingSoonWindow,
		batch:     opts.SweepBatch,
		logger:    opts.Logger,
	}
}

// BidIncrement возвращает шаг ставки.
func (e *Engine) BidIncrement() money.Money {
	return e.increment
}

// PlaceBid принимает максимальную ставку участника.
// Если аукцион уже истёк, но не закрыт, он закрывается в этой же единице работы
// и возвращается auctionerr.ErrAuctionExpired.
func (e *Engine) PlaceBid(ctx context.Context, listingID, bidderID int64, maxBid money.Money, now time.Time) (*BidResult, error) {
	var (
		res     BidResult
		events  []model.Event
		expired bool
	)

	err := e.store.InListingTx(ctx, listingID, func(tx repository.ListingTx) error {
		events, expired = nil, false

		l := tx.Listing()
		if l.Type != model.ListingTypeAuction {
			return fmt.Errorf("%w: bids on %s listing %d", auctionerr.ErrWrongListingType, l.Type, l.ID)
		}
		if l.State != model.ListingStateActive {
			return fmt.Errorf("%w: listing %d is %s", auctionerr.ErrAuctionExpired, l.ID, l.State)
		}
		if l.Expired(now) {
			expired = true
			_, closeEvents, err := e.settleLocked(ctx, tx, now)
			events = closeEvents
			return err
		}
		if l.SellerID == bidderID {
			return fmt.Errorf("%w: listing %d", auctionerr.ErrSellerCannotBid, l.ID)
		}

		bids, err := tx.Bids(ctx)
		if err != nil {
			return fmt.Errorf("load bids: %w", err)
		}

		out, err := ledger.New(l.ID, l.StartingPrice, e.increment, bids).Record(bidderID, maxBid, now)
		if err != nil {
			return err
		}

		if err := tx.SaveBid(ctx, out.Bid); err != nil {
			return err
		}
		l.CurrentPrice = out.CurrentPrice
		l.BidCount++
		if err := tx.UpdateListing(ctx, l); err != nil {
			return err
		}

		res = BidResult{
			CurrentPrice:  out.CurrentPrice,
			LeaderID:      out.LeaderID,
			IsLeader:      out.LeaderID == bidderID,
			LeaderChanged: out.LeaderChanged,
		}
		if out.LeaderChanged {
			if out.PreviousLeaderID != 0 {
				events = append(events, model.OutbidEvent(l.ID, out.PreviousLeaderID, now))
			}
			events = append(events, model.NowLeadingEvent(l.ID, out.LeaderID, now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)

	if expired {
		return nil, fmt.Errorf("%w: listing %d", auctionerr.ErrAuctionExpired, listingID)
	}

	e.logger.Debug("bid accepted",
		zap.Int64("listing_id", listingID),
		zap.Int64("bidder_id", bidderID),
		zap.String("current_price", res.CurrentPrice.String()),
		zap.Bool("leader_changed", res.LeaderChanged),
	)
	return &res, nil
}

// BuyNow покупает лот сразу: аукцион по цене buy-now, фиксированную цену по текущей цене.
// Повтор запроса покупателем, уже купившим лот, возвращает его заказ.
func (e *Engine) BuyNow(ctx context.Context, listingID, buyerID int64, now time.Time) (*model.Order, error) {
	var (
		order   *model.Order
		events  []model.Event
		expired bool
	)

	err := e.store.InListingTx(ctx, listingID, func(tx repository.ListingTx) error {
		order, events, expired = nil, nil, false

		l := tx.Listing()
		if l.SellerID == buyerID {
			return fmt.Errorf("%w: listing %d", auctionerr.ErrSellerCannotBuy, l.ID)
		}

		if l.State != model.ListingStateActive {
			if l.State == model.ListingStateEndedSold && l.BuyerID != nil && *l.BuyerID == buyerID {
				existing, err := tx.FindOrder(ctx, model.SettlementKey{ListingID: l.ID})
				if err != nil {
					return err
				}
				if existing != nil {
					order = existing
					return nil
				}
			}
			return fmt.Errorf("%w: listing %d is %s", auctionerr.ErrListingNotActive, l.ID, l.State)
		}

		var price money.Money
		switch l.Type {
		case model.ListingTypeAuction:
			if l.Expired(now) {
				expired = true
				_, closeEvents, err := e.settleLocked(ctx, tx, now)
				events = closeEvents
				return err
			}
			if l.BuyNowPrice == nil {
				return fmt.Errorf("%w: listing %d", auctionerr.ErrNoBuyNowPrice, l.ID)
			}
			if !l.CurrentPrice.Less(*l.BuyNowPrice) {
				return fmt.Errorf("%w: listing %d at %s", auctionerr.ErrBuyNowClosed, l.ID, *l.BuyNowPrice)
			}
			price = *l.BuyNowPrice
		default:
			price = l.CurrentPrice
		}

		var displaced int64
		if l.Type == model.ListingTypeAuction {
			bids, err := tx.Bids(ctx)
			if err != nil {
				return fmt.Errorf("load bids: %w", err)
			}
			if len(bids) > 0 && bids[0].BidderID != buyerID {
				displaced = bids[0].BidderID
			}
		}

		o, created, err := e.sell(ctx, tx, l, buyerID, "", price, now)
		if err != nil {
			return err
		}
		order = o
		if created && l.Type == model.ListingTypeAuction {
			events = append(events, model.AuctionWonEvent(l.ID, buyerID, price, now))
			if displaced != 0 {
				events = append(events, model.OutbidEvent(l.ID, displaced, now))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)

	if expired {
		return nil, fmt.Errorf("%w: listing %d", auctionerr.ErrAuctionExpired, listingID)
	}
	return order, nil
}

// sell создаёт заказ и переводит лот в ENDED_SOLD. Вызывается под блокировкой лота.
func (e *Engine) sell(ctx context.Context, tx repository.ListingTx, l model.Listing, buyerID int64,
	batchID string, price money.Money, now time.Time) (*model.Order, bool, error) {
	order, created, err := e.settler.CreateOrder(ctx, tx, settlement.Request{
		Key:        model.SettlementKey{ListingID: l.ID, BatchID: batchID},
		Title:      l.Title,
		SellerID:   l.SellerID,
		BuyerID:    buyerID,
		FinalPrice: price,
		At:         now,
	})
	if err != nil {
		return nil, false, err
	}

	endedAt := now
	l.State = model.ListingStateEndedSold
	l.BuyerID = &buyerID
	l.SoldPrice = &price
	l.EndedAt = &endedAt
	if err := tx.UpdateListing(ctx, l); err != nil {
		return nil, false, err
	}
	return order, created, nil
}

// settleLocked закрывает истёкший активный аукцион. Для уже закрытого или ещё идущего лота ничего не делает.
func (e *Engine) settleLocked(ctx context.Context, tx repository.ListingTx, now time.Time) (*model.Settlement, []model.Event, error) {
	l := tx.Listing()
	if l.State != model.ListingStateActive || !l.Expired(now) {
		return nil, nil, nil
	}

	bids, err := tx.Bids(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load bids: %w", err)
	}
	led := ledger.New(l.ID, l.StartingPrice, e.increment, bids)

	leader, ok := led.Leader()
	if !ok {
		endedAt := now
		l.State = model.ListingStateEndedUnsold
		l.EndedAt = &endedAt
		if err := tx.UpdateListing(ctx, l); err != nil {
			return nil, nil, err
		}
		return &model.Settlement{Listing: l}, nil, nil
	}

	price := led.CurrentPrice()
	l.CurrentPrice = price
	order, created, err := e.sell(ctx, tx, l, leader.BidderID, "", price, now)
	if err != nil {
		return nil, nil, err
	}

	var events []model.Event
	if created {
		events = append(events, model.AuctionWonEvent(l.ID, leader.BidderID, price, now))
	}
	return &model.Settlement{Listing: tx.Listing(), Order: order}, events, nil
}

// SettleIfExpired закрывает один лот, если его срок истёк. Возвращает nil, если закрывать нечего
// или лот уже закрыт другим вызовом.
func (e *Engine) SettleIfExpired(ctx context.Context, listingID int64, now time.Time) (*model.Settlement, error) {
	var (
		settled *model.Settlement
		events  []model.Event
	)

	err := e.store.InListingTx(ctx, listingID, func(tx repository.ListingTx) error {
		var err error
		settled, events, err = e.settleLocked(ctx, tx, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)

	if settled != nil {
		fields := []zap.Field{
			zap.Int64("listing_id", settled.Listing.ID),
			zap.String("state", string(settled.Listing.State)),
		}
		if settled.Order != nil {
			fields = append(fields, zap.String("order_id", settled.Order.ID))
		}
		e.logger.Info("auction closed", fields...)
	}
	return settled, nil
}

// SweepExpired закрывает все истёкшие аукционы из очередной порции.
// Занятые лоты пропускаются до следующего прохода.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) ([]model.Settlement, error) {
	ids, err := e.store.ExpiredAuctions(ctx, now, e.batch)
	if err != nil {
		return nil, fmt.Errorf("select expired auctions: %w", err)
	}

	var (
		settled []model.Settlement
		errs    []error
	)
	for _, id := range ids {
		s, err := e.SettleIfExpired(ctx, id, now)
		if err != nil {
			if auctionerr.IsRetryable(err) {
				e.logger.Debug("listing busy, skipping", zap.Int64("listing_id", id))
				continue
			}
			e.logger.Error("failed to settle auction", zap.Int64("listing_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if s != nil {
			settled = append(settled, *s)
		}
	}
	return settled, errors.Join(errs...)
}

// NotifyEndingSoon рассылает ENDING_SOON всем участникам аукционов, заканчивающихся в пределах окна.
// Каждый лот уведомляется один раз. Возвращает число обработанных лотов.
func (e *Engine) NotifyEndingSoon(ctx context.Context, now time.Time) (int, error) {
	until := now.Add(e.window)
	ids, err := e.store.AuctionsEndingSoon(ctx, now, until, e.batch)
	if err != nil {
		return 0, fmt.Errorf("select auctions ending soon: %w", err)
	}

	var (
		notified int
		errs     []error
	)
	for _, id := range ids {
		var (
			events []model.Event
			marked bool
		)
		err := e.store.InListingTx(ctx, id, func(tx repository.ListingTx) error {
			events, marked = nil, false

			l := tx.Listing()
			if l.State != model.ListingStateActive || l.EndingSoonNotified || l.Expired(now) || l.EndDate.After(until) {
				return nil
			}

			recipients, err := endingSoonRecipients(ctx, tx)
			if err != nil {
				return err
			}

			l.EndingSoonNotified = true
			if err := tx.UpdateListing(ctx, l); err != nil {
				return err
			}
			for _, userID := range recipients {
				events = append(events, model.EndingSoonEvent(l.ID, userID, now))
			}
			marked = true
			return nil
		})
		if err != nil {
			if !auctionerr.IsRetryable(err) {
				e.logger.Error("failed to mark ending soon", zap.Int64("listing_id", id), zap.Error(err))
				errs = append(errs, err)
			}
			continue
		}
		if marked {
			notified++
		}
		e.publish(ctx, events)
	}
	return notified, errors.Join(errs...)
}

// endingSoonRecipients объединяет наблюдателей и участников торгов лота без повторов.
func endingSoonRecipients(ctx context.Context, tx repository.ListingTx) ([]int64, error) {
	watchers, err := tx.Watchers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchers: %w", err)
	}
	bids, err := tx.Bids(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}

	seen := make(map[int64]struct{}, len(watchers)+len(bids))
	recipients := make([]int64, 0, len(watchers)+len(bids))
	add := func(userID int64) {
		if _, ok := seen[userID]; ok {
			return
		}
		seen[userID] = struct{}{}
		recipients = append(recipients, userID)
	}
	for _, userID := range watchers {
		add(userID)
	}
	for _, b := range bids {
		add(b.BidderID)
	}
	return recipients, nil
}

func (e *Engine) publish(ctx context.Context, events []model.Event) {
	for _, ev := range events {
		e.sink.Publish(ctx, ev)
	}
}
