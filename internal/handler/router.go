package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/courier-chat/courier/internal/engine"
	"github.com/courier-chat/courier/internal/handler/ws"
	"github.com/courier-chat/courier/internal/queue"
	"github.com/courier-chat/courier/internal/registry"
	"github.com/courier-chat/courier/pkg/utils"
)

// NewRouter wires HTTP routes to the delivery core.
func NewRouter(reg *registry.Registry, eng *engine.Engine, store queue.Store, wsHandler *ws.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"channels": reg.Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/channels/{channel}/queue", func(w http.ResponseWriter, req *http.Request) {
			channel := chi.URLParam(req, "channel")
			pending, err := store.Pending(req.Context(), channel)
			if err != nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "queue store unavailable")
				return
			}
			reserved, err := store.Reserved(req.Context(), channel)
			if err != nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "queue store unavailable")
				return
			}
			_, online := reg.Lookup(channel)
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"channel":  channel,
				"pending":  pending,
				"reserved": reserved,
				"inflight": eng.InflightLen(channel),
				"online":   online,
			})
		})
	})

	wsHandler.RegisterRoutes(r)

	return r
}
