package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/cardsync/internal/cardservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// notify, if non-nil, receives the outcome of every send made through the API.
func NewRouter(svc *cardservice.Service, authEnabled bool, token string, sseHandler http.Handler, notify Notifier) chi.Router {
	h := NewHandler(svc, notify)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/preview", h.Preview)

	r.Post("/send", h.Send)
	r.Post("/send/batch", h.SendBatch)
	r.Post("/sync", h.Sync)

	r.Get("/documents", h.ListDocuments)
	r.Get("/cards/*", h.Cards)

	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
