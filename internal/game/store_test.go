package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/israelgr/High-lander-task/internal/database"
	"github.com/israelgr/High-lander-task/internal/highlander"
	"github.com/israelgr/High-lander-task/internal/migrations"
)

type fixedGoals struct {
	mu    sync.Mutex
	calls int
}

func (f *fixedGoals) Generate(_ context.Context, origin highlander.Coordinates, _ highlander.GameConfig) highlander.Goal {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return highlander.Goal{
		Position:              highlander.Coordinates{Latitude: origin.Latitude + 0.01, Longitude: origin.Longitude},
		GeneratedAt:           time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		GeneratedFromPosition: origin,
	}
}

var (
	testConfig = highlander.GameConfig{MaxPlayers: 4, GoalRadiusMin: 1000, GoalRadiusMax: 2000, ProximityThreshold: 30}
	origin     = highlander.Coordinates{Latitude: 32.0853, Longitude: 34.7818}
)

func setupStore(t *testing.T) (*Store, *fixedGoals) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.MemoryPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	goals := &fixedGoals{}
	return NewStore(db, goals), goals
}

func mustCreate(t *testing.T, s *Store, cfg highlander.GameConfig) *highlander.Game {
	t.Helper()
	g, err := s.Create(context.Background(), "host", "Hana", cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return g
}

func mustJoin(t *testing.T, s *Store, gameID, playerID string) *highlander.Game {
	t.Helper()
	g, err := s.Join(context.Background(), gameID, playerID, "name-"+playerID)
	if err != nil {
		t.Fatalf("join %s: %v", playerID, err)
	}
	if g == nil {
		t.Fatalf("join %s rejected", playerID)
	}
	return g
}

func TestCreate(t *testing.T) {
	s, _ := setupStore(t)
	g := mustCreate(t, s, testConfig)

	if g.Status != highlander.GameStatusWaiting {
		t.Errorf("status = %q, want waiting", g.Status)
	}
	if g.Goal != nil {
		t.Error("waiting game has a goal")
	}
	if len(g.Players) != 1 || g.Players[0].ID != "host" || g.HostPlayerID != "host" {
		t.Errorf("players = %+v, host = %q", g.Players, g.HostPlayerID)
	}
	if len(g.Code) != CodeLength {
		t.Errorf("code %q has length %d", g.Code, len(g.Code))
	}
	for _, r := range g.Code {
		if !strings.ContainsRune(CodeAlphabet, r) {
			t.Errorf("code %q contains %q", g.Code, r)
		}
	}

	got, err := s.ByID(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got.Code != g.Code || got.Config != testConfig {
		t.Errorf("ByID = %+v", got)
	}
}

func TestCreateRetriesCodeCollision(t *testing.T) {
	s, _ := setupStore(t)
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	s.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first := mustCreate(t, s, testConfig)
	second := mustCreate(t, s, testConfig)
	if first.Code != "AAAAAA" || second.Code != "BBBBBB" {
		t.Errorf("codes = %q, %q", first.Code, second.Code)
	}
}

func TestByCodeNormalizesCase(t *testing.T) {
	s, _ := setupStore(t)
	g := mustCreate(t, s, testConfig)

	for _, code := range []string{g.Code, strings.ToLower(g.Code), " " + strings.ToLower(g.Code[:3]) + g.Code[3:] + " "} {
		got, err := s.ByCode(context.Background(), code)
		if err != nil {
			t.Fatalf("ByCode(%q): %v", code, err)
		}
		if got.ID != g.ID {
			t.Errorf("ByCode(%q) = %s, want %s", code, got.ID, g.ID)
		}
	}

	if _, err := s.ByCode(context.Background(), "ZZZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown code: err = %v, want ErrNotFound", err)
	}
}

func TestJoinPreconditions(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	cfg := testConfig
	cfg.MaxPlayers = 2
	g := mustCreate(t, s, cfg)

	if got, err := s.Join(ctx, g.ID, "host", "Hana"); err != nil || got != nil {
		t.Errorf("duplicate join = %v, %v; want nil, nil", got, err)
	}

	joined := mustJoin(t, s, g.ID, "p2")
	if len(joined.Players) != 2 || joined.Players[1].ID != "p2" {
		t.Errorf("players = %+v", joined.Players)
	}

	if got, err := s.Join(ctx, g.ID, "p3", "Third"); err != nil || got != nil {
		t.Errorf("join full game = %v, %v; want nil, nil", got, err)
	}
	if got, err := s.Join(ctx, "missing", "p3", "Third"); err != nil || got != nil {
		t.Errorf("join missing game = %v, %v; want nil, nil", got, err)
	}
}

func TestJoinStartedGameRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	g := mustCreate(t, s, testConfig)

	if _, err := s.Start(ctx, g.ID, origin); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got, err := s.Join(ctx, g.ID, "late", "Late"); err != nil || got != nil {
		t.Errorf("join active game = %v, %v; want nil, nil", got, err)
	}
}

func TestConcurrentJoinLastSlot(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 10; round++ {
		s, _ := setupStore(t)
		cfg := testConfig
		cfg.MaxPlayers = 3
		g := mustCreate(t, s, cfg)
		mustJoin(t, s, g.ID, "p2")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				got, err := s.Join(ctx, g.ID, id, id)
				if err != nil {
					t.Errorf("join %s: %v", id, err)
					return
				}
				if got != nil {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}(fmt.Sprintf("racer-%d", i))
		}
		wg.Wait()

		if success != 1 {
			t.Fatalf("round %d: %d joins succeeded, want 1", round, success)
		}
		final, err := s.ByID(ctx, g.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(final.Players) != 3 {
			t.Fatalf("round %d: %d players, want 3", round, len(final.Players))
		}
	}
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	g := mustCreate(t, s, testConfig)
	mustJoin(t, s, g.ID, "p2")
	mustJoin(t, s, g.ID, "p3")

	got, err := s.Leave(ctx, g.ID, "p2")
	if err != nil || got == nil {
		t.Fatalf("leave = %v, %v", got, err)
	}
	if len(got.Players) != 2 || got.HasPlayer("p2") || got.Players[1].ID != "p3" {
		t.Errorf("players after leave = %+v", got.Players)
	}

	if got, err := s.Leave(ctx, "missing", "p2"); err != nil || got != nil {
		t.Errorf("leave missing game = %v, %v; want nil, nil", got, err)
	}

	_, before, err := s.load(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := s.Leave(ctx, g.ID, "p2"); err != nil || got != nil {
		t.Errorf("leave as non-member = %v, %v; want nil, nil", got, err)
	}
	if _, after, _ := s.load(ctx, g.ID); after != before {
		t.Errorf("version moved from %d to %d on a no-op leave", before, after)
	}
}

func TestSetReady(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	g := mustCreate(t, s, testConfig)
	mustJoin(t, s, g.ID, "p2")

	got, err := s.SetReady(ctx, g.ID, "p2")
	if err != nil || got == nil {
		t.Fatalf("ready = %v, %v", got, err)
	}
	if got.Player("p2").Status != highlander.PlayerStatusReady {
		t.Errorf("status = %q, want ready", got.Player("p2").Status)
	}
	if got, _ := s.SetReady(ctx, g.ID, "stranger"); got != nil {
		t.Error("non-member marked ready")
	}
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	s, goals := setupStore(t)
	g := mustCreate(t, s, testConfig)
	mustJoin(t, s, g.ID, "p2")
	if _, err := s.SetReady(ctx, g.ID, "p2"); err != nil {
		t.Fatal(err)
	}

	started, err := s.Start(ctx, g.ID, origin)
	if err != nil || started == nil {
		t.Fatalf("start = %v, %v", started, err)
	}
	if started.Status != highlander.GameStatusActive || started.StartedAt == nil {
		t.Errorf("status = %q, startedAt = %v", started.Status, started.StartedAt)
	}
	if started.Goal == nil || started.Goal.GeneratedFromPosition != origin {
		t.Errorf("goal = %+v", started.Goal)
	}
	for _, p := range started.Players {
		if p.Status != highlander.PlayerStatusPlaying {
			t.Errorf("player %s status = %q, want playing", p.ID, p.Status)
		}
	}

	again, err := s.Start(ctx, g.ID, origin)
	if err != nil || again != nil {
		t.Errorf("second start = %v, %v; want nil, nil", again, err)
	}
	if goals.calls != 1 {
		t.Errorf("goal generated %d times, want 1", goals.calls)
	}

	if got, err := s.Start(ctx, "missing", origin); err != nil || got != nil {
		t.Errorf("start missing = %v, %v", got, err)
	}
}

func TestReachGoalRanks(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	g := mustCreate(t, s, testConfig)
	for _, id := range []string{"p2", "p3"} {
		mustJoin(t, s, g.ID, id)
	}

	if got, _ := s.ReachGoal(ctx, g.ID, "host"); got != nil {
		t.Error("goal reached in a waiting game")
	}
	if _, err := s.Start(ctx, g.ID, origin); err != nil {
		t.Fatal(err)
	}

	order := []string{"p3", "host", "p2"}
	for i, id := range order {
		got, err := s.ReachGoal(ctx, g.ID, id)
		if err != nil || got == nil {
			t.Fatalf("reach %s = %v, %v", id, got, err)
		}
		p := got.Player(id)
		if p.Rank != i+1 || p.Status != highlander.PlayerStatusFinished || p.FinishedAt == nil {
			t.Errorf("%s: rank %d status %q", id, p.Rank, p.Status)
		}
		if got.WinnerID != "p3" {
			t.Errorf("winner = %q, want p3", got.WinnerID)
		}
		wantStatus := highlander.GameStatusActive
		if i == len(order)-1 {
			wantStatus = highlander.GameStatusFinished
		}
		if got.Status != wantStatus {
			t.Errorf("after %s: status = %q, want %q", id, got.Status, wantStatus)
		}
	}

	final, _ := s.ByID(ctx, g.ID)
	if final.FinishedAt == nil {
		t.Error("finished game has no finishedAt")
	}
	if got, _ := s.ReachGoal(ctx, g.ID, "p2"); got != nil {
		t.Error("goal reached twice")
	}
}

func TestReachGoalAfterFinisherLeaves(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	g := mustCreate(t, s, testConfig)
	mustJoin(t, s, g.ID, "p2")
	mustJoin(t, s, g.ID, "p3")
	if _, err := s.Start(ctx, g.ID, origin); err != nil {
		t.Fatal(err)
	}

	if got, err := s.ReachGoal(ctx, g.ID, "host"); err != nil || got == nil {
		t.Fatalf("reach host = %v, %v", got, err)
	}
	if got, err := s.Leave(ctx, g.ID, "host"); err != nil || got == nil {
		t.Fatalf("leave host = %v, %v", got, err)
	}

	got, err := s.ReachGoal(ctx, g.ID, "p2")
	if err != nil || got == nil {
		t.Fatalf("reach p2 = %v, %v", got, err)
	}
	if r := got.Player("p2").Rank; r != 2 {
		t.Errorf("p2 rank = %d, want 2", r)
	}
	if got.WinnerID != "host" {
		t.Errorf("winner = %q, want host", got.WinnerID)
	}

	got, err = s.ReachGoal(ctx, g.ID, "p3")
	if err != nil || got == nil {
		t.Fatalf("reach p3 = %v, %v", got, err)
	}
	if r := got.Player("p3").Rank; r != 3 {
		t.Errorf("p3 rank = %d, want 3", r)
	}
	if got.Status != highlander.GameStatusFinished || got.Finishers != 3 {
		t.Errorf("status = %q, finishers = %d", got.Status, got.Finishers)
	}
}

func TestConcurrentReachGoalDenseRanks(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	cfg := testConfig
	cfg.MaxPlayers = 8
	g := mustCreate(t, s, cfg)
	ids := []string{"host"}
	for i := 2; i <= 8; i++ {
		id := fmt.Sprintf("p%d", i)
		mustJoin(t, s, g.ID, id)
		ids = append(ids, id)
	}
	if _, err := s.Start(ctx, g.ID, origin); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if got, err := s.ReachGoal(ctx, g.ID, id); err != nil || got == nil {
				t.Errorf("reach %s = %v, %v", id, got, err)
			}
		}(id)
	}
	wg.Wait()

	final, err := s.ByID(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[int]bool)
	for _, p := range final.Players {
		if p.Rank < 1 || p.Rank > len(ids) || seen[p.Rank] {
			t.Errorf("player %s has rank %d", p.ID, p.Rank)
		}
		seen[p.Rank] = true
		if p.Rank == 1 && final.WinnerID != p.ID {
			t.Errorf("winner = %q, rank 1 is %q", final.WinnerID, p.ID)
		}
	}
	if final.Status != highlander.GameStatusFinished {
		t.Errorf("status = %q, want finished", final.Status)
	}
}

func TestCommitDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	g := mustCreate(t, s, testConfig)

	stale, version, err := s.load(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	mustJoin(t, s, g.ID, "p2")

	ok, err := s.commit(ctx, stale, version)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("commit at a stale version succeeded")
	}
}

func TestListWaiting(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < WaitingListLimit+2; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		ids = append(ids, mustCreate(t, s, testConfig).ID)
	}
	if _, err := s.Start(ctx, ids[len(ids)-1], origin); err != nil {
		t.Fatal(err)
	}

	games, err := s.ListWaiting(ctx)
	if err != nil {
		t.Fatalf("ListWaiting: %v", err)
	}
	if len(games) != WaitingListLimit {
		t.Fatalf("got %d games, want %d", len(games), WaitingListLimit)
	}
	if games[0].ID != ids[len(ids)-2] {
		t.Errorf("newest waiting game = %s, want %s", games[0].ID, ids[len(ids)-2])
	}
	for _, g := range games {
		if g.Status != highlander.GameStatusWaiting {
			t.Errorf("listed %s with status %q", g.ID, g.Status)
		}
	}
}

func TestNewCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		c, err := NewCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(c) != CodeLength || strings.ContainsAny(c, "IO01") {
			t.Fatalf("bad code %q", c)
		}
		seen[c] = true
	}
	if len(seen) < 190 {
		t.Errorf("only %d distinct codes out of 200", len(seen))
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	done := make(chan struct{})
	go func() {
		k.Lock("a")()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Lock did not block")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-done

	if len(k.locks) != 0 {
		t.Errorf("%d lock entries left", len(k.locks))
	}
}
