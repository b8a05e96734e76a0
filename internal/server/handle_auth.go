package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/israelgr/High-lander-task/internal/auth"
	"github.com/israelgr/High-lander-task/internal/highlander"
	"github.com/israelgr/High-lander-task/internal/player"
)

// RegisterRequest is the request body for POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	LogoutAll    bool   `json:"logoutAll,omitempty"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User   auth.User          `json:"user"`
	Player *highlander.Player `json:"player,omitempty"`
	Tokens auth.Tokens        `json:"tokens"`
}

// MeResponse is the response for GET /api/auth/me.
type MeResponse struct {
	User   auth.User         `json:"user"`
	Player highlander.Player `json:"player"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// writeAuthError maps account errors to HTTP responses.
func writeAuthError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, codeValidation, strings.TrimPrefix(err.Error(), auth.ErrInvalidInput.Error()+": "))
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, auth.ErrUsernameTaken):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err.Error())
	case errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	default:
		logger.Error("account request failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func handleRegister(logger *slog.Logger, accounts *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}

		u, p, tokens, err := accounts.Register(r.Context(), req.Email, req.Password, req.Username)
		if err != nil {
			writeAuthError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, AuthResponse{User: u, Player: &p, Tokens: tokens})
	}
}

func handleLogin(logger *slog.Logger, accounts *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, codeValidation, "email and password are required")
			return
		}

		u, tokens, err := accounts.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeAuthError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, AuthResponse{User: u, Tokens: tokens})
	}
}

func handleRefresh(logger *slog.Logger, accounts *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if err := readJSON(r, &req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, codeBadRequest, "refreshToken is required")
			return
		}

		tokens, err := accounts.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeAuthError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, tokens)
	}
}

func handleLogout(logger *slog.Logger, accounts *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LogoutRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}
		if !req.LogoutAll && req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, codeValidation, "refreshToken or logoutAll is required")
			return
		}

		token := req.RefreshToken
		if req.LogoutAll {
			token = ""
		}
		if err := accounts.Logout(r.Context(), identityFrom(r).UserID, token); err != nil {
			writeAuthError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}

func handleMe(logger *slog.Logger, accounts *auth.Service, players *player.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)

		u, err := accounts.User(r.Context(), id.UserID)
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "user not found")
			return
		}
		if err != nil {
			writeAuthError(w, logger, err)
			return
		}

		p, err := players.ByID(r.Context(), u.PlayerID)
		if errors.Is(err, player.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "player not found")
			return
		}
		if err != nil {
			writeAuthError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, MeResponse{User: u, Player: p})
	}
}
