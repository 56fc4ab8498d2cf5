package handler

import (
	"context"
	"net/http"
)

// WatchListing добавляет лот в список наблюдения текущего пользователя.
func (h *Handler) WatchListing(w http.ResponseWriter, r *http.Request) {
	h.changeWatchlist(w, r, "watch listing", h.service.AddToWatchlist)
}

// UnwatchListing убирает лот из списка наблюдения.
func (h *Handler) UnwatchListing(w http.ResponseWriter, r *http.Request) {
	h.changeWatchlist(w, r, "unwatch listing", h.service.RemoveFromWatchlist)
}

func (h *Handler) changeWatchlist(w http.ResponseWriter, r *http.Request, op string,
	change func(ctx context.Context, userID, listingID int64) error) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	if err := change(r.Context(), uid, id); err != nil {
		h.writeError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWatchlist возвращает наблюдаемые лоты. Пустой список отдаётся как 204.
func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	listings, err := h.service.GetWatchlist(r.Context(), uid)
	if err != nil {
		h.writeError(w, "get watchlist", err)
		return
	}

	if len(listings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	res := make([]listingResponse, 0, len(listings))
	for i := range listings {
		res = append(res, newListingResponse(&listings[i]))
	}
	h.writeJSON(w, http.StatusOK, res)
}
