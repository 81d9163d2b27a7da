package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	store, feed, identity := deps.Store, deps.Feed, deps.Identity
	gate := NewGate(store, feed, identity, logger)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Among Us IRL API", "/openapi.json", "/docs"))

	// Identity provider.
	r.Get("/api/auth/{provider}/start", handleAuthStart(identity))
	r.Get("/api/auth/{provider}/callback", handleAuthCallback(identity, logger))
	r.Post("/api/auth/local", handleLocalLogin(identity, logger))
	r.Delete("/api/session", handleDeleteSession(identity, logger))

	r.Group(func(r chi.Router) {
		r.Use(sessionMiddleware(identity, logger))
		r.Get("/api/session", handleGetSession())
		r.Get("/api/account", handleGetAccount())

		// Everything below resolves the player through the gate.
		r.Group(func(r chi.Router) {
			r.Use(playerMiddleware(gate, logger))

			r.Get("/api/me", handleMe(feed))
			r.Get("/api/me/events", handleEvents(store, feed, logger))
			r.Get("/api/realtime", handleRealtime(feed, logger, deps.OriginPatterns))

			r.Get("/api/tasks", handleListTasks(store, feed, logger))
			r.Post("/api/tasks/{taskID}/complete", handleCompleteTask(store, feed, logger))

			r.Post("/api/meetings", handleCallMeeting(store, feed, logger, deps.MeetingCooldown))
			r.Get("/api/game/phase", handleGetPhase(store, logger))
			r.Get("/api/game/events", handleListEvents(store, logger))

			r.Route("/api/imposter", func(r chi.Router) {
				r.Use(requireImposter)
				r.Get("/", handleImposter(store, logger))
				r.Post("/eliminate/{playerID}", handleEliminate(store, feed, logger))
			})

			r.Route("/api/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/players", handleAdminListPlayers(store, logger))
				r.Post("/players/{id}/role", handleAdminToggleRole(store, feed, logger))
				r.Post("/players/{id}/admin", handleAdminToggleAdmin(store, feed, logger))
				r.Put("/players/{id}/status", handleAdminSetStatus(store, feed, logger))
				r.Post("/tasks/{taskID}/approve", handleAdminApproveTask(store, feed, logger))
				r.Post("/game/start", handleAdminStartGame(store, feed, logger))
				r.Post("/game/end", handleAdminEndGame(store, feed, logger))
				r.Get("/qr", handleJoinQR(deps.PublicURL, logger))
			})
		})
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
