package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
	"github.com/mmeshcher/auctionhouse/internal/repository"
	"github.com/mmeshcher/auctionhouse/internal/service"
)

type listingRequest struct {
	Title         string            `json:"title"`
	Type          model.ListingType `json:"type"`
	StartingPrice *money.Money      `json:"starting_price"`
	BuyNowPrice   *money.Money      `json:"buy_now_price,omitempty"`
	EndDate       time.Time         `json:"end_date"`
}

type listingResponse struct {
	ID            int64              `json:"id"`
	SellerID      int64              `json:"seller_id"`
	Title         string             `json:"title"`
	Type          model.ListingType  `json:"type"`
	State         model.ListingState `json:"state"`
	StartingPrice money.Money        `json:"starting_price"`
	CurrentPrice  money.Money        `json:"current_price"`
	BuyNowPrice   *money.Money       `json:"buy_now_price,omitempty"`
	EndDate       *time.Time         `json:"end_date,omitempty"`
	BidCount      int                `json:"bid_count"`
	BuyerID       *int64             `json:"buyer_id,omitempty"`
	SoldPrice     *money.Money       `json:"sold_price,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	EndedAt       *time.Time         `json:"ended_at,omitempty"`
}

func newListingResponse(l *model.Listing) listingResponse {
	res := listingResponse{
		ID:            l.ID,
		SellerID:      l.SellerID,
		Title:         l.Title,
		Type:          l.Type,
		State:         l.State,
		StartingPrice: l.StartingPrice,
		CurrentPrice:  l.CurrentPrice,
		BuyNowPrice:   l.BuyNowPrice,
		BidCount:      l.BidCount,
		BuyerID:       l.BuyerID,
		SoldPrice:     l.SoldPrice,
		CreatedAt:     l.CreatedAt,
		EndedAt:       l.EndedAt,
	}
	if l.Type == model.ListingTypeAuction {
		end := l.EndDate
		res.EndDate = &end
	}
	return res
}

// CreateListing выставляет новый лот от имени текущего пользователя.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := userID(w, r)
	if !ok {
		return
	}

	var req listingRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.StartingPrice == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	l, err := h.service.CreateListing(r.Context(), sellerID, service.NewListing{
		Title:         req.Title,
		Type:          req.Type,
		StartingPrice: *req.StartingPrice,
		BuyNowPrice:   req.BuyNowPrice,
		EndDate:       req.EndDate,
	})
	if err != nil {
		h.writeError(w, "create listing", err)
		return
	}

	w.Header().Set("Location", "/api/listings/"+strconv.FormatInt(l.ID, 10))
	h.writeJSON(w, http.StatusCreated, newListingResponse(l))
}

// GetListing возвращает лот по идентификатору.
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	l, err := h.service.GetListing(r.Context(), id)
	if err != nil {
		h.writeError(w, "get listing", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newListingResponse(l))
}

// ListListings возвращает лоты. Поддерживаются параметры state, type, seller_id и limit.
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	f, ok := parseListingFilter(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	listings, err := h.service.ListListings(r.Context(), f)
	if err != nil {
		h.writeError(w, "list listings", err)
		return
	}

	res := make([]listingResponse, 0, len(listings))
	for i := range listings {
		res = append(res, newListingResponse(&listings[i]))
	}
	h.writeJSON(w, http.StatusOK, res)
}

func parseListingFilter(r *http.Request) (repository.ListingFilter, bool) {
	q := r.URL.Query()
	f := repository.ListingFilter{
		State: model.ListingState(q.Get("state")),
		Type:  model.ListingType(q.Get("type")),
	}

	switch f.State {
	case "", model.ListingStateActive, model.ListingStateEndedSold, model.ListingStateEndedUnsold:
	default:
		return f, false
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, false
	}

	if v := q.Get("seller_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, false
		}
		f.SellerID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, false
		}
		f.Limit = n
	}
	return f, true
}

type bidEntryResponse struct {
	Rank     int       `json:"rank"`
	BidderID int64     `json:"bidder_id"`
	PlacedAt time.Time `json:"placed_at"`
}

// ListBids возвращает участников торгов по лоту без их максимальных ставок.
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	bids, err := h.service.ListBids(r.Context(), id)
	if err != nil {
		h.writeError(w, "list bids", err)
		return
	}

	res := make([]bidEntryResponse, 0, len(bids))
	for _, b := range bids {
		res = append(res, bidEntryResponse{Rank: b.Rank, BidderID: b.BidderID, PlacedAt: b.PlacedAt})
	}
	h.writeJSON(w, http.StatusOK, res)
}

type bidRequest struct {
	MaxBid *money.Money `json:"max_bid"`
}

type bidResponse struct {
	CurrentPrice money.Money `json:"current_price"`
	Leader       int64       `json:"leader"`
	IsLeader     bool        `json:"is_leader"`
}

// PlaceBid принимает максимальную ставку текущего пользователя.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := userID(w, r)
	if !ok {
		return
	}
	listingID, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	var req bidRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.MaxBid == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.PlaceBid(r.Context(), listingID, bidderID, *req.MaxBid)
	if err != nil {
		h.writeError(w, "place bid", err)
		return
	}

	h.writeJSON(w, http.StatusOK, bidResponse{
		CurrentPrice: res.CurrentPrice,
		Leader:       res.LeaderID,
		IsLeader:     res.IsLeader,
	})
}

// BuyNow покупает лот текущим пользователем.
func (h *Handler) BuyNow(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := userID(w, r)
	if !ok {
		return
	}
	listingID, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	order, err := h.service.BuyNow(r.Context(), listingID, buyerID)
	if err != nil {
		h.writeError(w, "buy now", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}
