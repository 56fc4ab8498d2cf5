// Package handler содержит HTTP-обработчики API аукционного сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/auctionhouse/internal/auction"
	"github.com/mmeshcher/auctionhouse/internal/auctionerr"
	"github.com/mmeshcher/auctionhouse/internal/middleware"
	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
	"github.com/mmeshcher/auctionhouse/internal/repository"
	"github.com/mmeshcher/auctionhouse/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)

	CreateListing(ctx context.Context, sellerID int64, req service.NewListing) (*model.Listing, error)
	GetListing(ctx context.Context, id int64) (*model.Listing, error)
	ListListings(ctx context.Context, f repository.ListingFilter) ([]model.Listing, error)
	ListBids(ctx context.Context, listingID int64) ([]service.BidEntry, error)

	PlaceBid(ctx context.Context, listingID, bidderID int64, maxBid money.Money) (*auction.BidResult, error)
	BuyNow(ctx context.Context, listingID, buyerID int64) (*model.Order, error)
	Checkout(ctx context.Context, buyerID int64, batchID string, listingIDs []int64) ([]auction.CheckoutLine, error)

	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	ShipOrder(ctx context.Context, orderID string, userID int64) (*model.Order, error)
	DisputeOrder(ctx context.Context, orderID string, userID int64) (*model.Order, error)

	LeaveReview(ctx context.Context, orderID string, reviewerID, revieweeID int64, rating int, comment string) (*model.Review, error)
	GetReviewsForUser(ctx context.Context, userID int64) ([]model.Review, error)

	AddToWatchlist(ctx context.Context, userID, listingID int64) error
	RemoveFromWatchlist(ctx context.Context, userID, listingID int64) error
	GetWatchlist(ctx context.Context, userID int64) ([]model.Listing, error)
}

// Handler реализует HTTP-обработчики API аукционного сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, auctionerr.ErrInvalidCredential) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.writeError(w, "register user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и выдаёт cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, auctionerr.ErrInvalidCredential) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.writeError(w, "login user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError переводит доменную ошибку в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var status int
	switch auctionerr.KindOf(err) {
	case auctionerr.KindValidation:
		status = http.StatusUnprocessableEntity
	case auctionerr.KindNotFound:
		status = http.StatusNotFound
	case auctionerr.KindForbidden:
		status = http.StatusForbidden
	case auctionerr.KindConflict:
		status = http.StatusConflict
	case auctionerr.KindRetryable:
		w.Header().Set("Retry-After", "1")
		status = http.StatusServiceUnavailable
	default:
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
