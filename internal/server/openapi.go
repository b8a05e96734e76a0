package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/israelgr/High-lander-task/internal/auth"
)

// HealthStatus is one dependency entry of the /healthz response.
type HealthStatus struct {
	Status string `json:"status"`
}

// HealthResponse maps dependency names (sqlite, redis, osrm) to their status.
type HealthResponse map[string]HealthStatus

type operation struct {
	method, path  string
	summary, desc string
	req           any
	ok            any
	okStatus      int
	errorStatuses []int
	okContentType string
}

var operations = []operation{
	{
		method: http.MethodGet, path: "/healthz",
		summary: "Health check", desc: "Returns the health status of SQLite, Redis and the routing service.",
		ok: HealthResponse{}, errorStatuses: []int{http.StatusServiceUnavailable},
	},
	{
		method: http.MethodGet, path: "/ws",
		summary: "Realtime gateway",
		desc: "Upgrades to a WebSocket. Pass the access token as the token query parameter or a Bearer header. " +
			"Frames are JSON objects {type, data}.",
		okStatus: http.StatusSwitchingProtocols, okContentType: "text/plain",
	},
	{
		method: http.MethodPost, path: "/api/auth/register",
		summary: "Register", desc: "Creates an account and its player, and signs in.",
		req: RegisterRequest{}, ok: AuthResponse{}, okStatus: http.StatusCreated,
		errorStatuses: []int{http.StatusBadRequest, http.StatusConflict},
	},
	{
		method: http.MethodPost, path: "/api/auth/login",
		summary: "Login", desc: "Exchanges email and password for an access and refresh token.",
		req: LoginRequest{}, ok: AuthResponse{},
		errorStatuses: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	},
	{
		method: http.MethodPost, path: "/api/auth/refresh",
		summary: "Refresh tokens", desc: "Rotates a refresh token. The old token stops working.",
		req: RefreshRequest{}, ok: auth.Tokens{},
		errorStatuses: []int{http.StatusBadRequest, http.StatusUnauthorized},
	},
	{
		method: http.MethodPost, path: "/api/auth/logout",
		summary: "Logout", desc: "Revokes one refresh token, or all of them with logoutAll. Requires Bearer token.",
		req: LogoutRequest{}, ok: StatusResponse{},
		errorStatuses: []int{http.StatusBadRequest, http.StatusUnauthorized},
	},
	{
		method: http.MethodGet, path: "/api/auth/me",
		summary: "Current user", desc: "Returns the signed-in user and player. Requires Bearer token.",
		ok: MeResponse{}, errorStatuses: []int{http.StatusUnauthorized, http.StatusNotFound},
	},
	{
		method: http.MethodGet, path: "/api/games",
		summary: "List open games", desc: "Returns the 20 newest games still waiting for players.",
		ok: GameListResponse{},
	},
	{
		method: http.MethodGet, path: "/api/games/{gameID}",
		summary: "Get game", desc: "Returns a game to its participants. Requires Bearer token.",
		ok: GameResponse{},
		errorStatuses: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	},
	{
		method: http.MethodPost, path: "/api/games/route",
		summary: "Walking route", desc: "Computes a walking route between two points. Requires Bearer token.",
		req: RouteRequest{}, ok: RouteResponse{},
		errorStatuses: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusBadGateway},
	},
	{
		method: http.MethodGet, path: "/api/config",
		summary: "Distance config", desc: "Returns the current distance tuning used for new games.",
		ok: ConfigResponse{},
	},
	{
		method: http.MethodPost, path: "/api/players",
		summary: "Get or create player", desc: "Returns the player with this username, creating it on first use.",
		req: CreatePlayerRequest{}, ok: PlayerResponse{},
		errorStatuses: []int{http.StatusBadRequest, http.StatusUnauthorized},
	},
	{
		method: http.MethodGet, path: "/api/players/{playerID}",
		summary: "Get player", desc: "Returns the caller's own player with stats. Requires Bearer token.",
		ok: PlayerResponse{},
		errorStatuses: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	},
	{
		method: http.MethodGet, path: "/api/admin/config",
		summary: "System config", desc: "Returns the full system config with metadata. Admin only.",
		ok: SystemConfigResponse{}, errorStatuses: []int{http.StatusUnauthorized, http.StatusForbidden},
	},
	{
		method: http.MethodPatch, path: "/api/admin/config/distance",
		summary: "Update distance config", desc: "Validates and applies a partial distance config. Admin only.",
		req: UpdateDistanceRequest{}, ok: SystemConfigResponse{},
		errorStatuses: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	},
	{
		method: http.MethodGet, path: "/api/admin/config/history",
		summary: "Config history", desc: "Lists past config versions, newest first. Admin only.",
		ok: HistoryResponse{}, errorStatuses: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "High-lander API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the High-lander navigation game.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.desc)
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}

		status := op.okStatus
		if status == 0 {
			status = http.StatusOK
		}
		opts := []openapi.ContentOption{openapi.WithHTTPStatus(status)}
		if op.okContentType != "" {
			opts = append(opts, openapi.WithContentType(op.okContentType))
		}
		oc.AddRespStructure(op.ok, opts...)

		for _, s := range op.errorStatuses {
			if s == http.StatusServiceUnavailable {
				oc.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(s))
				continue
			}
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(s))
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
