package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
)

type orderResponse struct {
	ID                 string            `json:"id"`
	ListingID          int64             `json:"listing_id"`
	CheckoutBatchID    string            `json:"checkout_batch_id,omitempty"`
	ListingTitle       string            `json:"listing_title"`
	SellerID           int64             `json:"seller_id"`
	BuyerID            int64             `json:"buyer_id"`
	FinalPrice         money.Money       `json:"final_price"`
	PurchasedAt        time.Time         `json:"purchased_at"`
	Status             model.OrderStatus `json:"status"`
	ReviewLeftByBuyer  bool              `json:"review_left_by_buyer"`
	ReviewLeftBySeller bool              `json:"review_left_by_seller"`
}

func newOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:                 o.ID,
		ListingID:          o.ListingID,
		CheckoutBatchID:    o.CheckoutBatchID,
		ListingTitle:       o.ListingTitle,
		SellerID:           o.SellerID,
		BuyerID:            o.BuyerID,
		FinalPrice:         o.FinalPrice,
		PurchasedAt:        o.PurchasedAt,
		Status:             o.Status,
		ReviewLeftByBuyer:  o.ReviewLeftByBuyer,
		ReviewLeftBySeller: o.ReviewLeftBySeller,
	}
}

type checkoutRequest struct {
	BatchID    string  `json:"batch_id"`
	ListingIDs []int64 `json:"listing_ids"`
}

type checkoutLineResponse struct {
	ListingID int64          `json:"listing_id"`
	Order     *orderResponse `json:"order,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Checkout оформляет корзину лотов с фиксированной ценой. Ошибки отдельных лотов
// возвращаются построчно и не отменяют остальные покупки.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := userID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	lines, err := h.service.Checkout(r.Context(), buyerID, req.BatchID, req.ListingIDs)
	if err != nil {
		h.writeError(w, "checkout", err)
		return
	}

	res := make([]checkoutLineResponse, 0, len(lines))
	for _, line := range lines {
		item := checkoutLineResponse{ListingID: line.ListingID}
		if line.Err != nil {
			item.Error = line.Err.Error()
		} else if line.Order != nil {
			o := newOrderResponse(line.Order)
			item.Order = &o
		}
		res = append(res, item)
	}
	h.writeJSON(w, http.StatusOK, res)
}

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), uid)
	if err != nil {
		h.writeError(w, "get orders", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	res := make([]orderResponse, 0, len(orders))
	for i := range orders {
		res = append(res, newOrderResponse(&orders[i]))
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ShipOrder отмечает заказ отправленным.
func (h *Handler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.changeOrderStatus(w, r, "ship order", h.service.ShipOrder)
}

// DisputeOrder открывает спор по заказу.
func (h *Handler) DisputeOrder(w http.ResponseWriter, r *http.Request) {
	h.changeOrderStatus(w, r, "dispute order", h.service.DisputeOrder)
}

func (h *Handler) changeOrderStatus(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	change func(ctx context.Context, orderID string, userID int64) (*model.Order, error),
) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := change(r.Context(), orderID, uid)
	if err != nil {
		h.writeError(w, op, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}
