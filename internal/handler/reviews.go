package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type reviewRequest struct {
	RevieweeID int64  `json:"reviewee_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

type reviewResponse struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	ReviewerID int64     `json:"reviewer_id"`
	RevieweeID int64     `json:"reviewee_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// LeaveReview оставляет отзыв текущего пользователя о второй стороне заказа.
func (h *Handler) LeaveReview(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := userID(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	rv, err := h.service.LeaveReview(r.Context(), orderID, reviewerID, req.RevieweeID, req.Rating, req.Comment)
	if err != nil {
		h.writeError(w, "leave review", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, reviewResponse{
		ID:         rv.ID,
		OrderID:    rv.OrderID,
		ReviewerID: rv.ReviewerID,
		RevieweeID: rv.RevieweeID,
		Rating:     rv.Rating,
		Comment:    rv.Comment,
		CreatedAt:  rv.CreatedAt,
	})
}

// GetUserReviews возвращает отзывы о пользователе.
func (h *Handler) GetUserReviews(w http.ResponseWriter, r *http.Request) {
	uid, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	reviews, err := h.service.GetReviewsForUser(r.Context(), uid)
	if err != nil {
		h.writeError(w, "get reviews", err)
		return
	}

	res := make([]reviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		res = append(res, reviewResponse{
			ID:         rv.ID,
			OrderID:    rv.OrderID,
			ReviewerID: rv.ReviewerID,
			RevieweeID: rv.RevieweeID,
			Rating:     rv.Rating,
			Comment:    rv.Comment,
			CreatedAt:  rv.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, res)
}
