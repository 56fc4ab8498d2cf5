// Package model содержит доменные сущности аукционного сервиса.
package model

import (
	"strconv"
	"time"

	"github.com/mmeshcher/auctionhouse/internal/money"
)

// User представляет зарегистрированного участника торгов.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// ListingType описывает способ продажи лота.
type ListingType string

const (
	ListingTypeAuction    ListingType = "AUCTION"
	ListingTypeFixedPrice ListingType = "FIXED_PRICE"
)

// Valid сообщает, что тип лота известен.
func (t ListingType) Valid() bool {
	return t == ListingTypeAuction || t == ListingTypeFixedPrice
}

// ListingState описывает жизненный цикл лота.
type ListingState string

const (
	ListingStateActive      ListingState = "ACTIVE"
	ListingStateEndedUnsold ListingState = "ENDED_UNSOLD"
	ListingStateEndedSold   ListingState = "ENDED_SOLD"
)

// Terminal сообщает, что лот завершён и больше не меняет состояние.
func (s ListingState) Terminal() bool {
	return s == ListingStateEndedSold || s == ListingStateEndedUnsold
}

// Listing описывает один выставленный на продажу предмет.
type Listing struct {
	ID            int64
	SellerID      int64
	Title         string
	Type          ListingType
	StartingPrice money.Money
	CurrentPrice  money.Money
	BuyNowPrice   *money.Money
	EndDate       time.Time
	State         ListingState

	BuyerID            *int64
	SoldPrice          *money.Money
	BidCount           int
	EndingSoonNotified bool
	CreatedAt          time.Time
	EndedAt            *time.Time
}

// Expired сообщает, что аукцион достиг срока окончания к моменту now.
func (l *Listing) Expired(now time.Time) bool {
	return l.Type == ListingTypeAuction && !now.Before(l.EndDate)
}

// Bid хранит текущую максимальную ставку участника по лоту.
// Seq задаёт порядок записи ставок внутри лота.
type Bid struct {
	ListingID int64
	BidderID  int64
	MaxBid    money.Money
	PlacedAt  time.Time
	Seq       int64
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDisputed  OrderStatus = "DISPUTED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCompleted: {OrderStatusShipped, OrderStatusDisputed},
	OrderStatusShipped:   {OrderStatusDisputed},
}

// CanTransitionTo сообщает, допустим ли переход статуса. Статусы меняются только вперёд.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PredecessorsOf возвращает статусы, из которых можно перейти в next.
func PredecessorsOf(next OrderStatus) []OrderStatus {
	var res []OrderStatus
	for from, targets := range orderTransitions {
		for _, to := range targets {
			if to == next {
				res = append(res, from)
			}
		}
	}
	return res
}

// SettlementKey служит ключом идемпотентности создания заказа.
// Для закрытия аукциона и buy-now BatchID пустой.
type SettlementKey struct {
	ListingID int64
	BatchID   string
}

func (k SettlementKey) String() string {
	if k.BatchID == "" {
		return strconv.FormatInt(k.ListingID, 10)
	}
	return strconv.FormatInt(k.ListingID, 10) + "/" + k.BatchID
}

// Order описывает завершённую продажу.
type Order struct {
	ID                 string
	ListingID          int64
	CheckoutBatchID    string
	ListingTitle       string
	SellerID           int64
	BuyerID            int64
	FinalPrice         money.Money
	PurchasedAt        time.Time
	Status             OrderStatus
	ReviewLeftByBuyer  bool
	ReviewLeftBySeller bool
}

// Key возвращает ключ идемпотентности заказа.
func (o *Order) Key() SettlementKey {
	return SettlementKey{ListingID: o.ListingID, BatchID: o.CheckoutBatchID}
}

// ReviewerRole определяет, чей слот отзыва занимается.
type ReviewerRole string

const (
	ReviewerBuyer  ReviewerRole = "BUYER"
	ReviewerSeller ReviewerRole = "SELLER"
)

// Review описывает отзыв одной стороны заказа о другой.
type Review struct {
	ID         string
	OrderID    string
	ReviewerID int64
	RevieweeID int64
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// Settlement описывает результат закрытия аукциона. Order равен nil, если лот не продан.
type Settlement struct {
	Listing Listing
	Order   *Order
}
