package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/israelgr/High-lander-task/internal/highlander"
	"github.com/israelgr/High-lander-task/internal/player"
)

// CreatePlayerRequest is the request body for POST /api/players.
type CreatePlayerRequest struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type PlayerResponse struct {
	Player highlander.Player `json:"player"`
}

// handleCreatePlayer returns the player with the given username, creating it
// on first use. Repeated calls are idempotent.
func handleCreatePlayer(logger *slog.Logger, players *player.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePlayerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if n := utf8.RuneCountInString(req.Username); n < 2 || n > 20 {
			writeError(w, http.StatusBadRequest, codeValidation, "username must be 2-20 characters")
			return
		}

		p, created, err := players.GetOrCreate(r.Context(), req.Username, req.AvatarURL)
		if err != nil {
			logger.Error("get or create player", "username", req.Username, "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, PlayerResponse{Player: p})
	}
}

func handleGetPlayer(logger *slog.Logger, players *player.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "playerID")
		if id != identityFrom(r).PlayerID {
			writeError(w, http.StatusForbidden, codeForbidden, "you can only view your own player")
			return
		}

		p, err := players.ByID(r.Context(), id)
		if errors.Is(err, player.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "player not found")
			return
		}
		if err != nil {
			logger.Error("loading player", "player_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, PlayerResponse{Player: p})
	}
}
