package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/onemorebsmith/coinduel/src/engine"
	"go.uber.org/zap"
)

// NewRouter registers every player, pool and health endpoint on a chi router
func NewRouter(eng *engine.Engine, logger *zap.Logger) http.Handler {
	h := NewHandler(eng, logger)
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/pool", h.PoolHandler)

	r.Route("/players/{playerId}", func(r chi.Router) {
		r.Post("/connect", h.ConnectHandler)
		r.Post("/disconnect", h.DisconnectHandler)

		r.Get("/session", h.withPlayer(h.SessionHandler))
		r.Post("/wager", h.withPlayer(h.WagerHandler))
		r.Post("/side", h.withPlayer(h.SideHandler))
		r.Post("/cancel", h.withPlayer(h.CancelHandler))
		r.Post("/play-again", h.withPlayer(h.PlayAgainHandler))

		r.Get("/balance", h.withPlayer(h.BalanceHandler))
		r.Post("/deposit", h.withPlayer(h.DepositHandler))
		r.Post("/withdraw", h.withPlayer(h.WithdrawHandler))
		r.Get("/transactions", h.withPlayer(h.TransactionsHandler))
		r.Get("/duels", h.withPlayer(h.DuelsHandler))
		r.Get("/stats", h.withPlayer(h.StatsHandler))

		r.Post("/assistant", h.withPlayer(h.AssistantHandler))
		r.Post("/duels/{duelId}/verify", h.withPlayer(h.VerifyHandler))
		r.Post("/duels/{duelId}/insight", h.withPlayer(h.InsightHandler))
	})

	return r
}
