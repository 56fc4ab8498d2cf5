// Package auctionerr содержит ошибки предметной области и их классификацию.
package auctionerr

import "errors"

// Ошибки поиска.
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Ошибки валидации: состояние не меняется, повтор не поможет.
var (
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrBidTooHigh        = errors.New("bid amount above the allowed maximum")
	ErrSelfOutbid        = errors.New("bid does not raise bidder's previous maximum")
	ErrWrongListingType  = errors.New("operation not supported for listing type")
	ErrNoBuyNowPrice     = errors.New("listing has no buy-now price")
	ErrInvalidListing    = errors.New("invalid listing")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrInvalidReviewee   = errors.New("reviewee is not the order counterparty")
	ErrInvalidComment    = errors.New("review comment too long")
	ErrInvalidCheckout   = errors.New("invalid checkout request")
	ErrInvalidCredential = errors.New("invalid credentials")
)

// Ошибки прав доступа.
var (
	ErrSellerCannotBid = errors.New("seller cannot bid on own listing")
	ErrSellerCannotBuy = errors.New("seller cannot buy own listing")
	ErrNotOrderParty   = errors.New("user is not a party to the order")
)

// Конфликты состояния.
var (
	ErrAuctionExpired          = errors.New("auction expired")
	ErrListingNotActive        = errors.New("listing not active")
	ErrBuyNowClosed            = errors.New("bidding reached buy-now price")
	ErrAlreadyReviewed         = errors.New("review already left")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrUserExists              = errors.New("user already exists")
)

// ErrBusy возвращается, если блокировку лота не удалось получить за отведённое время.
var ErrBusy = errors.New("listing busy, retry later")

// Kind задаёт класс ошибки для вызывающей стороны.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindRetryable
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrListingNotFound, KindNotFound},
	{ErrOrderNotFound, KindNotFound},
	{ErrUserNotFound, KindNotFound},
	{ErrBidTooLow, KindValidation},
	{ErrBidTooHigh, KindValidation},
	{ErrSelfOutbid, KindValidation},
	{ErrWrongListingType, KindValidation},
	{ErrNoBuyNowPrice, KindValidation},
	{ErrInvalidListing, KindValidation},
	{ErrInvalidRating, KindValidation},
	{ErrInvalidReviewee, KindValidation},
	{ErrInvalidComment, KindValidation},
	{ErrInvalidCheckout, KindValidation},
	{ErrInvalidCredential, KindValidation},
	{ErrSellerCannotBid, KindForbidden},
	{ErrSellerCannotBuy, KindForbidden},
	{ErrNotOrderParty, KindForbidden},
	{ErrAuctionExpired, KindConflict},
	{ErrListingNotActive, KindConflict},
	{ErrBuyNowClosed, KindConflict},
	{ErrAlreadyReviewed, KindConflict},
	{ErrInvalidStatusTransition, KindConflict},
	{ErrUserExists, KindConflict},
	{ErrBusy, KindRetryable},
}

// KindOf классифицирует ошибку по цепочке обёрток.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsRetryable сообщает, что клиент может безопасно повторить запрос.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}
