// Package settlement идемпотентно превращает завершённую продажу в заказ.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
)

// OrderWriter описывает хранилище заказов в рамках текущей единицы работы.
// InsertOrder при конфликте ключа возвращает уже сохранённый заказ.
type OrderWriter interface {
	FindOrder(ctx context.Context, key model.SettlementKey) (*model.Order, error)
	InsertOrder(ctx context.Context, order *model.Order) (*model.Order, error)
}

// Request описывает продажу, для которой нужен заказ.
type Request struct {
	Key        model.SettlementKey
	Title      string
	SellerID   int64
	BuyerID    int64
	FinalPrice money.Money
	At         time.Time
}

// Settler создаёт заказы.
type Settler struct {
	logger *zap.Logger
	newID  func() string
}

// NewSettler создаёт Settler. logger может быть nil.
func NewSettler(logger *zap.Logger) *Settler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settler{
		logger: logger,
		newID:  uuid.NewString,
	}
}

// CreateOrder возвращает заказ по ключу, создавая его при отсутствии.
// created == false означает, что заказ уже существовал и возвращён без изменений.
func (s *Settler) CreateOrder(ctx context.Context, w OrderWriter, req Request) (*model.Order, bool, error) {
	existing, err := w.FindOrder(ctx, req.Key)
	if err != nil {
		return nil, false, fmt.Errorf("find order %s: %w", req.Key, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	order := &model.Order{
		ID:              s.newID(),
		ListingID:       req.Key.ListingID,
		CheckoutBatchID: req.Key.BatchID,
		ListingTitle:    req.Title,
		SellerID:        req.SellerID,
		BuyerID:         req.BuyerID,
		FinalPrice:      req.FinalPrice,
		PurchasedAt:     req.At,
		Status:          model.OrderStatusCompleted,
	}

	stored, err := w.InsertOrder(ctx, order)
	if err != nil {
		return nil, false, fmt.Errorf("insert order %s: %w", req.Key, err)
	}

	created := stored.ID == order.ID
	if created {
		s.logger.Info("order created",
			zap.String("order_id", stored.ID),
			zap.Int64("listing_id", stored.ListingID),
			zap.Int64("buyer_id", stored.BuyerID),
			zap.String("final_price", stored.FinalPrice.String()),
		)
	}
	return stored, created, nil
}
