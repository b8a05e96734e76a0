package player

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/israelgr/High-lander-task/internal/database"
	"github.com/israelgr/High-lander-task/internal/highlander"
	"github.com/israelgr/High-lander-task/internal/migrations"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(context.Background(), database.MemoryPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db)
}

func TestGetOrCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	first, created, err := s.GetOrCreate(ctx, "walker", "")
	if err != nil || !created {
		t.Fatalf("first GetOrCreate = %v, %v", created, err)
	}
	second, created, err := s.GetOrCreate(ctx, "walker", "https://example.com/a.png")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second call created a player")
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %s vs %s", first.ID, second.ID)
	}
	if second.AvatarURL != "" {
		t.Errorf("avatar overwritten: %q", second.AvatarURL)
	}

	var n int
	s.db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&n)
	if n != 1 {
		t.Errorf("%d rows, want 1", n)
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[string]bool)
		creates int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, created, err := s.GetOrCreate(ctx, "racer", "")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			mu.Lock()
			ids[p.ID] = true
			if created {
				creates++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != 1 || creates != 1 {
		t.Errorf("ids = %v, creates = %d", ids, creates)
	}
}

func TestCreateRejectsTakenUsername(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	p, err := s.Create(ctx, "dana", "https://example.com/d.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, "dana", ""); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("err = %v, want ErrUsernameTaken", err)
	}

	got, err := s.ByID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Username != "dana" || got.AvatarURL != "https://example.com/d.png" || got.CreatedAt.IsZero() {
		t.Errorf("ByID = %+v", got)
	}
	if got.Stats != (highlander.PlayerStats{}) {
		t.Errorf("new player stats = %+v", got.Stats)
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	if _, err := s.ByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ByID err = %v", err)
	}
	if _, err := s.ByUsername(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ByUsername err = %v", err)
	}
	if err := s.RecordResult(ctx, "nope", highlander.Outcome{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordResult err = %v", err)
	}
}

func TestRecordResult(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	p, err := s.Create(ctx, "eli", "")
	if err != nil {
		t.Fatal(err)
	}

	outcomes := []highlander.Outcome{
		{Won: true, Finished: true, Distance: 1200, TimeToGoal: 600},
		{Finished: true, Distance: 800, TimeToGoal: 300},
		{Distance: 150},
	}
	for _, o := range outcomes {
		if err := s.RecordResult(ctx, p.ID, o); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ByID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := highlander.PlayerStats{GamesPlayed: 3, GamesWon: 1, TotalDistance: 2150, AverageTimeToGoal: 450}
	if got.Stats != want {
		t.Errorf("stats = %+v, want %+v", got.Stats, want)
	}
}
