// Package goal places a playable goal around a starting position.
package goal

import (
	"context"
	"log/slog"
	"time"

	"github.com/israelgr/High-lander-task/internal/geo"
	"github.com/israelgr/High-lander-task/internal/highlander"
)

// MaxAttempts is how many candidates are checked against the routing oracle
// before the generator settles for an unchecked one.
const MaxAttempts = 10

// Oracle reports whether a point sits near a walkable path. It must not fail:
// any upstream error is reported as false.
type Oracle interface {
	IsRoutable(ctx context.Context, p highlander.Coordinates) bool
}

// Sampler draws a candidate point between minRadius and maxRadius from center.
type Sampler func(center highlander.Coordinates, minRadius, maxRadius float64) highlander.Coordinates

type Generator struct {
	oracle Oracle
	sample Sampler
	now    func() time.Time
	logger *slog.Logger
}

func NewGenerator(logger *slog.Logger, oracle Oracle) *Generator {
	return &Generator{
		oracle: oracle,
		sample: geo.RandomPointInRadius,
		now:    time.Now,
		logger: logger,
	}
}

// Generate returns the first reachable candidate within MaxAttempts, or a
// final unchecked candidate so game start never blocks on the oracle.
func (g *Generator) Generate(ctx context.Context, origin highlander.Coordinates, cfg highlander.GameConfig) highlander.Goal {
	var pos highlander.Coordinates
	found := false

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		candidate := g.sample(origin, cfg.GoalRadiusMin, cfg.GoalRadiusMax)
		if g.oracle.IsRoutable(ctx, candidate) {
			pos = candidate
			found = true
			break
		}
		g.logger.Debug("goal candidate not routable", "attempt", attempt,
			"lat", candidate.Latitude, "lng", candidate.Longitude)
	}

	if !found {
		pos = g.sample(origin, cfg.GoalRadiusMin, cfg.GoalRadiusMax)
		g.logger.Warn("no routable goal found, using fallback candidate",
			"attempts", MaxAttempts, "lat", pos.Latitude, "lng", pos.Longitude)
	}

	return highlander.Goal{
		Position:              pos,
		GeneratedAt:           g.now().UTC(),
		GeneratedFromPosition: origin,
	}
}
