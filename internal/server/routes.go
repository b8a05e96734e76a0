package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	requireAuth := authMiddleware(deps.Accounts)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("High-lander API", "/openapi.json", "/docs"))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", handleRegister(logger, deps.Accounts))
		r.Post("/login", handleLogin(logger, deps.Accounts))
		r.Post("/refresh", handleRefresh(logger, deps.Accounts))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", handleLogout(logger, deps.Accounts))
			r.Get("/me", handleMe(logger, deps.Accounts, deps.Players))
		})
	})

	r.Get("/api/games", handleListGames(logger, deps.Games))
	r.Get("/api/config", handleGetConfig(deps.Tuning))

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/api/games/route", handleRoute(logger, deps.Router))
		r.Get("/api/games/{gameID}", handleGetGame(logger, deps.Games))
		r.Post("/api/players", handleCreatePlayer(logger, deps.Players))
		r.Get("/api/players/{playerID}", handleGetPlayer(logger, deps.Players))
	})

	r.Route("/api/admin/config", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(adminMiddleware(deps.Accounts))
		r.Get("/", handleAdminGetConfig(deps.Tuning))
		r.Patch("/distance", handleAdminUpdateDistance(logger, deps.Tuning))
		r.Get("/history", handleAdminConfigHistory(logger, deps.Tuning))
	})
}
