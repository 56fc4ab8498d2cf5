package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/auctionhouse/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware аукционного сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Get("/listings", h.ListListings)
		r.Get("/listings/{id}", h.GetListing)
		r.Get("/listings/{id}/bids", h.ListBids)
		r.Get("/users/{id}/reviews", h.GetUserReviews)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.RequireUser)

			r.Post("/listings", h.CreateListing)
			r.Post("/listings/{id}/bids", h.PlaceBid)
			r.Post("/listings/{id}/buy-now", h.BuyNow)
			r.Post("/checkout", h.Checkout)
			r.Put("/listings/{id}/watch", h.WatchListing)
			r.Delete("/listings/{id}/watch", h.UnwatchListing)
			r.Get("/user/watchlist", h.GetWatchlist)

			r.Get("/user/orders", h.GetOrders)
			r.Post("/orders/{id}/reviews", h.LeaveReview)
			r.Post("/orders/{id}/ship", h.ShipOrder)
			r.Post("/orders/{id}/dispute", h.DisputeOrder)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
