package goal

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/israelgr/High-lander-task/internal/geo"
	"github.com/israelgr/High-lander-task/internal/highlander"
)

type stubOracle struct {
	answers []bool // consumed in order; false once exhausted
	calls   atomic.Int32
}

func (o *stubOracle) IsRoutable(_ context.Context, _ highlander.Coordinates) bool {
	n := int(o.calls.Add(1)) - 1
	return n < len(o.answers) && o.answers[n]
}

var (
	origin = highlander.Coordinates{Latitude: 32.0853, Longitude: 34.7818}
	cfg    = highlander.GameConfig{MaxPlayers: 4, GoalRadiusMin: 1000, GoalRadiusMax: 2000, ProximityThreshold: 30}
)

func newTestGenerator(o Oracle) (*Generator, *int) {
	g := NewGenerator(slog.New(slog.NewTextHandler(io.Discard, nil)), o)
	calls := new(int)
	g.sample = func(c highlander.Coordinates, min, max float64) highlander.Coordinates {
		*calls++
		return geo.RandomPointInRadius(c, min, max)
	}
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }
	return g, calls
}

func TestGenerateAcceptsFirstRoutable(t *testing.T) {
	o := &stubOracle{answers: []bool{false, false, true}}
	g, samples := newTestGenerator(o)

	got := g.Generate(context.Background(), origin, cfg)

	if *samples != 3 {
		t.Errorf("sampler calls = %d, want 3", *samples)
	}
	if o.calls.Load() != 3 {
		t.Errorf("oracle calls = %d, want 3", o.calls.Load())
	}
	if got.GeneratedFromPosition != origin {
		t.Errorf("GeneratedFromPosition = %v, want %v", got.GeneratedFromPosition, origin)
	}
	if !got.GeneratedAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("GeneratedAt = %v", got.GeneratedAt)
	}
	d := geo.Distance(origin, got.Position)
	if d < cfg.GoalRadiusMin*0.99 || d > cfg.GoalRadiusMax*1.01 {
		t.Errorf("goal distance %.1f outside radius range", d)
	}
}

func TestGenerateFallsBackAfterCap(t *testing.T) {
	o := &stubOracle{}
	g, samples := newTestGenerator(o)

	got := g.Generate(context.Background(), origin, cfg)

	if *samples != MaxAttempts+1 {
		t.Errorf("sampler calls = %d, want %d", *samples, MaxAttempts+1)
	}
	if int(o.calls.Load()) != MaxAttempts {
		t.Errorf("oracle calls = %d, want %d", o.calls.Load(), MaxAttempts)
	}
	if !got.Position.Valid() {
		t.Errorf("fallback goal invalid: %v", got.Position)
	}
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	o := &stubOracle{}
	g, samples := newTestGenerator(o)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := g.Generate(ctx, origin, cfg)

	if *samples != 1 || o.calls.Load() != 0 {
		t.Errorf("samples = %d, oracle calls = %d; want 1 and 0", *samples, o.calls.Load())
	}
	if got.GeneratedFromPosition != origin {
		t.Errorf("GeneratedFromPosition = %v", got.GeneratedFromPosition)
	}
}
