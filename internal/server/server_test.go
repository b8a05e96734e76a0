package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/israelgr/High-lander-task/internal/auth"
	"github.com/israelgr/High-lander-task/internal/database"
	"github.com/israelgr/High-lander-task/internal/game"
	"github.com/israelgr/High-lander-task/internal/highlander"
	"github.com/israelgr/High-lander-task/internal/migrations"
	"github.com/israelgr/High-lander-task/internal/player"
	"github.com/israelgr/High-lander-task/internal/tuning"
)

var testDefaults = highlander.DistanceConfig{
	GoalRadiusMin:             1000,
	GoalRadiusMax:             2000,
	ProximityThresholds:       highlander.ProximityThresholds{Near: 100, VeryClose: 50, Reached: 30},
	DefaultProximityThreshold: 30,
	DefaultMaxPlayers:         10,
}

type stubGoals struct{}

func (stubGoals) Generate(_ context.Context, origin highlander.Coordinates, _ highlander.GameConfig) highlander.Goal {
	return highlander.Goal{Position: origin, GeneratedAt: time.Now().UTC(), GeneratedFromPosition: origin}
}

type stubRouter struct {
	route highlander.Route
	err   error
}

func (s *stubRouter) Route(context.Context, highlander.Coordinates, highlander.Coordinates) (highlander.Route, error) {
	return s.route, s.err
}

type testAPI struct {
	handler http.Handler
	deps    Deps
	router  *stubRouter
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(ctx, database.MemoryPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	players := player.NewStore(db)
	router := &stubRouter{}
	deps := Deps{
		Accounts: auth.NewService(logger, db, players, auth.Options{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    time.Hour,
			BcryptCost:    bcrypt.MinCost,
		}),
		Players: players,
		Games:   game.NewStore(db, stubGoals{}),
		Tuning:  tuning.NewService(logger, db, rdb, testDefaults),
		Router:  router,
	}

	return &testAPI{
		handler: New("", logger, deps, nil).Handler(),
		deps:    deps,
		router:  router,
	}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testAPI) register(t *testing.T, email, username string) AuthResponse {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email: email, Password: "password123", Username: username,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp AuthResponse
	decode(t, w, &resp)
	return resp
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decode(t, w, &resp)
	return resp.Error.Code
}
