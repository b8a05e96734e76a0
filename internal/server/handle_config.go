package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/israelgr/High-lander-task/internal/highlander"
	"github.com/israelgr/High-lander-task/internal/tuning"
)

// ConfigResponse carries the public distance config.
type ConfigResponse struct {
	Config highlander.DistanceConfig `json:"config"`
}

type SystemConfigResponse struct {
	Config highlander.SystemConfig `json:"config"`
}

// UpdateDistanceRequest is the request body for PATCH /api/admin/config/distance.
type UpdateDistanceRequest struct {
	Distance *tuning.DistancePatch `json:"distance"`
}

type HistoryResponse struct {
	History []highlander.SystemConfig `json:"history"`
	Total   int                       `json:"total"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func handleGetConfig(svc *tuning.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ConfigResponse{Config: svc.Distance(r.Context())})
	}
}

func handleAdminGetConfig(svc *tuning.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SystemConfigResponse{Config: svc.Get(r.Context())})
	}
}

func handleAdminUpdateDistance(logger *slog.Logger, svc *tuning.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateDistanceRequest
		if err := readJSON(r, &req); err != nil || req.Distance == nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "distance is required")
			return
		}

		cfg, err := svc.UpdateDistance(r.Context(), *req.Distance, identityFrom(r).Email)
		var verr *tuning.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
				Code:    codeValidation,
				Message: "invalid distance config",
				Details: verr.Problems,
			}})
			return
		}
		if err != nil {
			logger.Error("updating distance config", "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, SystemConfigResponse{Config: cfg})
	}
}

// queryInt reads a non-negative integer query parameter, falling back to def
// when absent.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func handleAdminConfigHistory(logger *slog.Logger, svc *tuning.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(r, "limit", defaultHistoryLimit)
		if !ok || limit == 0 {
			writeError(w, http.StatusBadRequest, codeValidation, "limit must be a positive integer")
			return
		}
		limit = min(limit, maxHistoryLimit)
		offset, ok := queryInt(r, "offset", 0)
		if !ok {
			writeError(w, http.StatusBadRequest, codeValidation, "offset must be a non-negative integer")
			return
		}

		history, total, err := svc.History(r.Context(), limit, offset)
		if err != nil {
			logger.Error("loading config history", "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}
		if history == nil {
			history = []highlander.SystemConfig{}
		}

		writeJSON(w, http.StatusOK, HistoryResponse{History: history, Total: total, Limit: limit, Offset: offset})
	}
}
