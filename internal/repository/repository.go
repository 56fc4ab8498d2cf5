// Package repository содержит хранилища лотов, ставок, заказов и отзывов.
package repository

import (
	"context"

	"github.com/mmeshcher/auctionhouse/internal/model"
)

// ListingTx представляет единицу работы над одним лотом. Лот заблокирован на всё время жизни ListingTx,
// все изменения фиксируются вместе или не фиксируются вовсе.
type ListingTx interface {
	// Listing возвращает заблокированный лот с учётом изменений в этой единице работы.
	Listing() model.Listing
	Bids(ctx context.Context) ([]model.Bid, error)
	SaveBid(ctx context.Context, bid model.Bid) error
	UpdateListing(ctx context.Context, listing model.Listing) error
	// FindOrder возвращает nil, nil, если заказа с ключом нет.
	FindOrder(ctx context.Context, key model.SettlementKey) (*model.Order, error)
	InsertOrder(ctx context.Context, order *model.Order) (*model.Order, error)
	// Watchers возвращает пользователей, добавивших лот в список наблюдения, по возрастанию id.
	Watchers(ctx context.Context) ([]int64, error)
}

// ListingFilter ограничивает выборку лотов. Пустые поля не фильтруют.
type ListingFilter struct {
	State    model.ListingState
	Type     model.ListingType
	SellerID int64
	Limit    int
}

const defaultListLimit = 100

func (f ListingFilter) limit() int {
	if f.Limit <= 0 || f.Limit > defaultListLimit {
		return defaultListLimit
	}
	return f.Limit
}
