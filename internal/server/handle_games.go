package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/israelgr/High-lander-task/internal/game"
	"github.com/israelgr/High-lander-task/internal/highlander"
	"github.com/israelgr/High-lander-task/internal/routing"
)

// GameSummary is one entry of the open games list.
type GameSummary struct {
	ID          string                `json:"id"`
	Code        string                `json:"code"`
	HostName    string                `json:"hostName"`
	PlayerCount int                   `json:"playerCount"`
	MaxPlayers  int                   `json:"maxPlayers"`
	Status      highlander.GameStatus `json:"status"`
}

type GameListResponse struct {
	Games []GameSummary `json:"games"`
}

type GameResponse struct {
	Game *highlander.Game `json:"game"`
}

// RouteRequest is the request body for POST /api/games/route.
type RouteRequest struct {
	Start *highlander.Coordinates `json:"start"`
	End   *highlander.Coordinates `json:"end"`
}

type RouteResponse struct {
	Route highlander.Route `json:"route"`
}

func summarize(g highlander.Game) GameSummary {
	s := GameSummary{
		ID:          g.ID,
		Code:        g.Code,
		PlayerCount: len(g.Players),
		MaxPlayers:  g.Config.MaxPlayers,
		Status:      g.Status,
	}
	if host := g.Player(g.HostPlayerID); host != nil {
		s.HostName = host.Username
	}
	return s
}

func handleListGames(logger *slog.Logger, games *game.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := games.ListWaiting(r.Context())
		if err != nil {
			logger.Error("listing games", "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}

		resp := GameListResponse{Games: make([]GameSummary, 0, len(list))}
		for _, g := range list {
			resp.Games = append(resp.Games, summarize(g))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleGetGame returns the full game document to its participants only.
func handleGetGame(logger *slog.Logger, games *game.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "gameID")

		g, err := games.ByID(r.Context(), id)
		if errors.Is(err, game.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "game not found")
			return
		}
		if err != nil {
			logger.Error("loading game", "game_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}
		if !g.HasPlayer(identityFrom(r).PlayerID) {
			writeError(w, http.StatusForbidden, codeForbidden, "you are not a participant of this game")
			return
		}

		writeJSON(w, http.StatusOK, GameResponse{Game: g})
	}
}

func handleRoute(logger *slog.Logger, router Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RouteRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}
		if req.Start == nil || req.End == nil || !req.Start.Valid() || !req.End.Valid() {
			writeError(w, http.StatusBadRequest, codeValidation, "start and end must be valid coordinates")
			return
		}

		route, err := router.Route(r.Context(), *req.Start, *req.End)
		switch {
		case errors.Is(err, routing.ErrNoRoute):
			writeError(w, http.StatusBadGateway, codeNoRoute, "no walking route between these points")
			return
		case err != nil:
			logger.Error("computing route", "error", err)
			writeError(w, http.StatusBadGateway, codeUpstream, "routing service unavailable")
			return
		}

		writeJSON(w, http.StatusOK, RouteResponse{Route: route})
	}
}
