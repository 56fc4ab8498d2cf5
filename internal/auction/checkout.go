package auction

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/auctionhouse/internal/auctionerr"
	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/repository"
)

// CheckoutLine описывает результат покупки одного лота из корзины.
// Ровно одно из Order и Err не пустое.
type CheckoutLine struct {
	ListingID int64
	Order     *model.Order
	Err       error
}

// Checkout покупает лоты с фиксированной ценой, каждый в своей единице работы.
// Заказы создаются по ключу (listingID, batchID), поэтому повтор той же корзины
// возвращает те же заказы.
func (e *Engine) Checkout(ctx context.Context, buyerID int64, batchID string, listingIDs []int64, now time.Time) ([]CheckoutLine, error) {
	if batchID == "" {
		return nil, fmt.Errorf("%w: empty batch id", auctionerr.ErrInvalidCheckout)
	}
	if len(listingIDs) == 0 {
		return nil, fmt.Errorf("%w: no listings", auctionerr.ErrInvalidCheckout)
	}

	seen := make(map[int64]struct{}, len(listingIDs))
	lines := make([]CheckoutLine, 0, len(listingIDs))
	for _, id := range listingIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		order, err := e.checkoutOne(ctx, buyerID, batchID, id, now)
		lines = append(lines, CheckoutLine{ListingID: id, Order: order, Err: err})
	}
	return lines, nil
}

func (e *Engine) checkoutOne(ctx context.Context, buyerID int64, batchID string, listingID int64, now time.Time) (*model.Order, error) {
	var order *model.Order

	err := e.store.InListingTx(ctx, listingID, func(tx repository.ListingTx) error {
		order = nil

		l := tx.Listing()
		existing, err := tx.FindOrder(ctx, model.SettlementKey{ListingID: l.ID, BatchID: batchID})
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.BuyerID != buyerID {
				return fmt.Errorf("%w: listing %d", auctionerr.ErrListingNotActive, l.ID)
			}
			order = existing
			return nil
		}

		if l.Type != model.ListingTypeFixedPrice {
			return fmt.Errorf("%w: checkout of %s listing %d", auctionerr.ErrWrongListingType, l.Type, l.ID)
		}
		if l.SellerID == buyerID {
			return fmt.Errorf("%w: listing %d", auctionerr.ErrSellerCannotBuy, l.ID)
		}
		if l.State != model.ListingStateActive {
			return fmt.Errorf("%w: listing %d is %s", auctionerr.ErrListingNotActive, l.ID, l.State)
		}

		o, _, err := e.sell(ctx, tx, l, buyerID, batchID, l.CurrentPrice, now)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		e.logger.Debug("checkout line rejected",
			zap.Int64("listing_id", listingID),
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
		return nil, err
	}
	return order, nil
}
