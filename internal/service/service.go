// Package service реализует бизнес-логику аукционного сервиса поверх движка торгов.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/auctionhouse/internal/auction"
	"github.com/mmeshcher/auctionhouse/internal/auctionerr"
	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
	"github.com/mmeshcher/auctionhouse/internal/repository"
	"github.com/mmeshcher/auctionhouse/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	CreateListing(ctx context.Context, l model.Listing) (*model.Listing, error)
	GetListing(ctx context.Context, id int64) (*model.Listing, error)
	ListListings(ctx context.Context, f repository.ListingFilter) ([]model.Listing, error)
	ListBids(ctx context.Context, listingID int64) ([]model.Bid, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, next model.OrderStatus) (*model.Order, error)
	LeaveReview(ctx context.Context, rv model.Review, role model.ReviewerRole) (*model.Review, error)
	GetReviewsForUser(ctx context.Context, userID int64) ([]model.Review, error)
	AddToWatchlist(ctx context.Context, userID, listingID int64) error
	RemoveFromWatchlist(ctx context.Context, userID, listingID int64) error
	GetWatchlist(ctx context.Context, userID int64) ([]model.Listing, error)
}

// Engine описывает операции движка торгов, меняющие состояние лотов.
type Engine interface {
	PlaceBid(ctx context.Context, listingID, bidderID int64, maxBid money.Money, now time.Time) (*auction.BidResult, error)
	BuyNow(ctx context.Context, listingID, buyerID int64, now time.Time) (*model.Order, error)
	Checkout(ctx context.Context, buyerID int64, batchID string, listingIDs []int64, now time.Time) ([]auction.CheckoutLine, error)
	SettleIfExpired(ctx context.Context, listingID int64, now time.Time) (*model.Settlement, error)
}

// Service содержит бизнес-логику аукционного сервиса.
type Service struct {
	repo   Repository
	engine Engine
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewService создаёт сервис с указанным репозиторием и движком торгов.
func NewService(repo Repository, engine Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		engine: engine,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	if !validation.IsValidLogin(login) || password == "" {
		return 0, fmt.Errorf("%w: login or password is malformed", auctionerr.ErrInvalidCredential)
	}
	return s.repo.CreateUser(ctx, login, hashPassword(login, password))
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, auctionerr.ErrUserNotFound) {
			return 0, auctionerr.ErrInvalidCredential
		}
		return 0, err
	}

	if subtle.ConstantTimeCompare(hashPassword(login, password), u.PasswordHash) != 1 {
		return 0, auctionerr.ErrInvalidCredential
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// NewListing содержит параметры нового лота.
type NewListing struct {
	Title         string
	Type          model.ListingType
	StartingPrice money.Money
	BuyNowPrice   *money.Money
	EndDate       time.Time
}

// CreateListing выставляет лот продавца sellerID.
func (s *Service) CreateListing(ctx context.Context, sellerID int64, req NewListing) (*model.Listing, error) {
	now := s.now()
	if err := validateListing(req, now); err != nil {
		return nil, err
	}

	l := model.Listing{
		SellerID:      sellerID,
		Title:         strings.TrimSpace(req.Title),
		Type:          req.Type,
		StartingPrice: req.StartingPrice,
		CurrentPrice:  req.StartingPrice,
		BuyNowPrice:   req.BuyNowPrice,
		State:         model.ListingStateActive,
		CreatedAt:     now,
	}
	if req.Type == model.ListingTypeAuction {
		l.EndDate = req.EndDate.UTC()
	}

	created, err := s.repo.CreateListing(ctx, l)
	if err != nil {
		return nil, err
	}
	s.logger.Info("listing created",
		zap.Int64("listing_id", created.ID),
		zap.Int64("seller_id", sellerID),
		zap.String("type", string(created.Type)),
	)
	return created, nil
}

func validateListing(req NewListing, now time.Time) error {
	if !validation.IsValidTitle(req.Title) {
		return fmt.Errorf("%w: title", auctionerr.ErrInvalidListing)
	}
	if money.Max.Less(req.StartingPrice) || (req.BuyNowPrice != nil && money.Max.Less(*req.BuyNowPrice)) {
		return fmt.Errorf("%w: price exceeds %s", auctionerr.ErrInvalidListing, money.Max)
	}
	switch req.Type {
	case model.ListingTypeAuction:
		if !req.EndDate.After(now) {
			return fmt.Errorf("%w: end date must be in the future", auctionerr.ErrInvalidListing)
		}
		if req.BuyNowPrice != nil && !req.StartingPrice.Less(*req.BuyNowPrice) {
			return fmt.Errorf("%w: buy-now price must exceed starting price", auctionerr.ErrInvalidListing)
		}
	case model.ListingTypeFixedPrice:
		if req.BuyNowPrice != nil {
			return fmt.Errorf("%w: fixed-price listing has no buy-now price", auctionerr.ErrInvalidListing)
		}
		if req.StartingPrice.IsZero() {
			return fmt.Errorf("%w: price must be positive", auctionerr.ErrInvalidListing)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", auctionerr.ErrInvalidListing, req.Type)
	}
	return nil
}

// GetListing возвращает лот, предварительно закрыв его, если срок аукциона истёк.
func (s *Service) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	if _, err := s.engine.SettleIfExpired(ctx, id, s.now()); err != nil {
		if errors.Is(err, auctionerr.ErrListingNotFound) {
			return nil, err
		}
		// Чтение не зависит от закрытия: его доделает sweeper.
		s.logger.Warn("lazy settlement failed", zap.Int64("listing_id", id), zap.Error(err))
	}
	return s.repo.GetListing(ctx, id)
}

// ListListings возвращает лоты по фильтру. Истёкшие аукционы закрываются перед выдачей,
// поэтому выборка по ACTIVE не содержит лотов, на которые уже нельзя ставить.
func (s *Service) ListListings(ctx context.Context, f repository.ListingFilter) ([]model.Listing, error) {
	listings, err := s.repo.ListListings(ctx, f)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := listings[:0]
	for _, l := range listings {
		l = s.settleForRead(ctx, l, now)
		if f.State != "" && l.State != f.State {
			continue
		}
		if f.State == model.ListingStateActive && l.Expired(now) {
			continue
		}
		res = append(res, l)
	}
	return res, nil
}

// settleForRead закрывает истёкший аукцион и перечитывает его. При ошибке возвращает лот как есть.
func (s *Service) settleForRead(ctx context.Context, l model.Listing, now time.Time) model.Listing {
	if l.State != model.ListingStateActive || !l.Expired(now) {
		return l
	}
	if _, err := s.engine.SettleIfExpired(ctx, l.ID, now); err != nil {
		s.logger.Warn("lazy settlement failed", zap.Int64("listing_id", l.ID), zap.Error(err))
		return l
	}
	fresh, err := s.repo.GetListing(ctx, l.ID)
	if err != nil {
		s.logger.Warn("reload settled listing", zap.Int64("listing_id", l.ID), zap.Error(err))
		return l
	}
	return *fresh
}

// AddToWatchlist добавляет лот в список наблюдения пользователя. Повторный вызов ничего не меняет.
func (s *Service) AddToWatchlist(ctx context.Context, userID, listingID int64) error {
	return s.repo.AddToWatchlist(ctx, userID, listingID)
}

func (s *Service) RemoveFromWatchlist(ctx context.Context, userID, listingID int64) error {
	return s.repo.RemoveFromWatchlist(ctx, userID, listingID)
}

// GetWatchlist возвращает наблюдаемые лоты с учётом ленивого закрытия аукционов.
func (s *Service) GetWatchlist(ctx context.Context, userID int64) ([]model.Listing, error) {
	listings, err := s.repo.GetWatchlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range listings {
		listings[i] = s.settleForRead(ctx, listings[i], now)
	}
	return listings, nil
}

// BidEntry описывает публичное представление ставки без максимальной суммы.
type BidEntry struct {
	Rank     int
	BidderID int64
	PlacedAt time.Time
}

// ListBids возвращает участников торгов по лоту в порядке старшинства.
func (s *Service) ListBids(ctx context.Context, listingID int64) ([]BidEntry, error) {
	if _, err := s.repo.GetListing(ctx, listingID); err != nil {
		return nil, err
	}
	bids, err := s.repo.ListBids(ctx, listingID)
	if err != nil {
		return nil, err
	}

	res := make([]BidEntry, 0, len(bids))
	for i, b := range bids {
		res = append(res, BidEntry{Rank: i + 1, BidderID: b.BidderID, PlacedAt: b.PlacedAt})
	}
	return res, nil
}

// PlaceBid передаёт ставку движку торгов.
func (s *Service) PlaceBid(ctx context.Context, listingID, bidderID int64, maxBid money.Money) (*auction.BidResult, error) {
	return s.engine.PlaceBid(ctx, listingID, bidderID, maxBid, s.now())
}

// BuyNow покупает лот по цене buy-now или фиксированной цене.
func (s *Service) BuyNow(ctx context.Context, listingID, buyerID int64) (*model.Order, error) {
	return s.engine.BuyNow(ctx, listingID, buyerID, s.now())
}

// Checkout оформляет корзину лотов с фиксированной ценой.
func (s *Service) Checkout(ctx context.Context, buyerID int64, batchID string, listingIDs []int64) ([]auction.CheckoutLine, error) {
	if !validation.IsValidBatchID(batchID) {
		return nil, fmt.Errorf("%w: batch id must be a UUID", auctionerr.ErrInvalidCheckout)
	}
	return s.engine.Checkout(ctx, buyerID, batchID, listingIDs, s.now())
}

// GetOrdersByUser возвращает заказы пользователя как покупателя и как продавца.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// LeaveReview оставляет отзыв одной стороны заказа о другой. Каждая сторона может оставить один отзыв.
func (s *Service) LeaveReview(ctx context.Context, orderID string, reviewerID, revieweeID int64, rating int, comment string) (*model.Review, error) {
	if !validation.IsValidRating(rating) {
		return nil, fmt.Errorf("%w: got %d", auctionerr.ErrInvalidRating, rating)
	}
	if !validation.IsValidComment(comment) {
		return nil, auctionerr.ErrInvalidComment
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var (
		role         model.ReviewerRole
		counterparty int64
	)
	switch reviewerID {
	case order.BuyerID:
		role, counterparty = model.ReviewerBuyer, order.SellerID
	case order.SellerID:
		role, counterparty = model.ReviewerSeller, order.BuyerID
	default:
		return nil, fmt.Errorf("%w: order %s", auctionerr.ErrNotOrderParty, orderID)
	}
	if revieweeID != counterparty {
		return nil, fmt.Errorf("%w: order %s", auctionerr.ErrInvalidReviewee, orderID)
	}

	rv, err := s.repo.LeaveReview(ctx, model.Review{
		ID:         s.newID(),
		OrderID:    orderID,
		ReviewerID: reviewerID,
		RevieweeID: revieweeID,
		Rating:     rating,
		Comment:    strings.TrimSpace(comment),
		CreatedAt:  s.now(),
	}, role)
	if err != nil {
		return nil, err
	}

	s.logger.Info("review left",
		zap.String("order_id", orderID),
		zap.String("role", string(role)),
		zap.Int("rating", rating),
	)
	return rv, nil
}

// GetReviewsForUser возвращает отзывы о пользователе.
func (s *Service) GetReviewsForUser(ctx context.Context, userID int64) ([]model.Review, error) {
	return s.repo.GetReviewsForUser(ctx, userID)
}

// ShipOrder отмечает заказ отправленным. Доступно только продавцу.
func (s *Service) ShipOrder(ctx context.Context, orderID string, userID int64) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != userID {
		return nil, fmt.Errorf("%w: only the seller ships order %s", auctionerr.ErrNotOrderParty, orderID)
	}
	return s.repo.UpdateOrderStatus(ctx, orderID, model.OrderStatusShipped)
}

// DisputeOrder открывает спор по заказу. Доступно покупателю и продавцу.
func (s *Service) DisputeOrder(ctx context.Context, orderID string, userID int64) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != userID && order.BuyerID != userID {
		return nil, fmt.Errorf("%w: order %s", auctionerr.ErrNotOrderParty, orderID)
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, orderID, model.OrderStatusDisputed)
	if err != nil {
		return nil, err
	}
	s.logger.Warn("order disputed", zap.String("order_id", orderID), zap.Int64("user_id", userID))
	return updated, nil
}
