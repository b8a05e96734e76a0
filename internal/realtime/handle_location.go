package realtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/israelgr/High-lander-task/internal/game"
	"github.com/israelgr/High-lander-task/internal/geo"
	"github.com/israelgr/High-lander-task/internal/highlander"
)

func (g *Gateway) handleLocation(ctx context.Context, c *conn, pos highlander.Position) {
	sess := c.session()
	if sess.GameID == "" {
		c.fail(CodeNotInGame, "You are not in a game")
		return
	}
	if !pos.Valid() {
		c.fail(CodeInvalidPosition, "Position is out of range")
		return
	}

	gm, err := g.deps.Sessions.ByID(ctx, sess.GameID)
	if errors.Is(err, game.ErrNotFound) {
		c.fail(CodeGameNotFound, "Game not found")
		return
	}
	if err != nil {
		g.logger.Error("loading game", "event", EventLocationUpdate, "game_id", sess.GameID, "error", err)
		c.fail(CodeLocationFailed, "Failed to update location")
		return
	}
	if !g.member(ctx, c, gm) {
		return
	}

	active := gm.Status == highlander.GameStatusActive && gm.Goal != nil
	track := active && gm.Player(sess.PlayerID).Status == highlander.PlayerStatusPlaying
	if err := g.deps.Presence.UpdatePosition(ctx, gm.ID, sess.PlayerID, pos, track); err != nil {
		g.logger.Error("updating position", "game_id", gm.ID, "player_id", sess.PlayerID, "error", err)
		c.fail(CodeLocationFailed, "Failed to update location")
		return
	}
	if !active {
		return
	}

	playing := gm.PlayerIDs(highlander.PlayerStatusPlaying)
	positions, err := g.deps.Presence.Positions(ctx, gm.ID, playing)
	if err != nil {
		g.logger.Error("reading positions", "game_id", gm.ID, "error", err)
		c.fail(CodeLocationFailed, "Failed to update location")
		return
	}

	out := make([]PlayerPosition, 0, len(playing))
	for _, id := range playing {
		p, ok := positions[id]
		if !ok {
			continue
		}
		out = append(out, PlayerPosition{
			PlayerID:       id,
			Position:       p,
			DistanceToGoal: geo.Distance(p.Coordinates, gm.Goal.Position),
		})
	}
	g.publish(gm.ID, EventPositions, out)
}

// member reports whether c's player is still on gm's roster. A connection
// whose player was removed, for example by leaving from another tab, is
// taken out of the room.
func (g *Gateway) member(ctx context.Context, c *conn, gm *highlander.Game) bool {
	if gm.HasPlayer(c.session().PlayerID) {
		return true
	}
	g.leaveRoom(ctx, c)
	c.fail(CodeNotInGame, "You are no longer in this game")
	return false
}

// handleGoalReached measures the claimant's distance to the goal itself and
// only then records the finish.
func (g *Gateway) handleGoalReached(ctx context.Context, c *conn, pos highlander.Position) {
	sess := c.session()
	if sess.GameID == "" {
		c.fail(CodeNotInGame, "You are not in a game")
		return
	}
	if !pos.Valid() {
		c.fail(CodeInvalidPosition, "Position is out of range")
		return
	}

	gm, err := g.deps.Sessions.ByID(ctx, sess.GameID)
	if errors.Is(err, game.ErrNotFound) {
		c.fail(CodeGameNotFound, "Game not found")
		return
	}
	if err != nil {
		g.logger.Error("loading game", "event", EventGoalReached, "game_id", sess.GameID, "error", err)
		c.fail(CodeGoalFailed, "Failed to record goal")
		return
	}
	if !g.member(ctx, c, gm) {
		return
	}
	if gm.Status != highlander.GameStatusActive || gm.Goal == nil {
		c.fail(CodeGameNotActive, "Game is not active")
		return
	}

	d := geo.Distance(pos.Coordinates, gm.Goal.Position)
	if d > gm.Config.ProximityThreshold {
		c.emit(EventError, ErrorData{
			Code:     CodeNotAtGoal,
			Message:  fmt.Sprintf("You are %dm away from the goal", int(math.Round(d))),
			Distance: &d,
		})
		return
	}

	gm, err = g.deps.Sessions.ReachGoal(ctx, gm.ID, sess.PlayerID)
	if err != nil {
		g.logger.Error("recording goal", "game_id", sess.GameID, "player_id", sess.PlayerID, "error", err)
		c.fail(CodeGoalFailed, "Failed to record goal")
		return
	}
	if gm == nil {
		c.fail(CodeGoalFailed, "Cannot record goal for this game")
		return
	}

	p := gm.Player(sess.PlayerID)
	var finishTime float64
	if p.FinishedAt != nil {
		finishTime = gm.Elapsed(*p.FinishedAt)
	}
	g.publish(gm.ID, EventPlayerFinished, PlayerFinishedData{
		PlayerID:   p.ID,
		PlayerName: p.Username,
		FinishTime: finishTime,
		Rank:       p.Rank,
	})
	g.logger.Info("player reached goal", "game_id", gm.ID, "player_id", p.ID, "rank", p.Rank)

	if p.Rank == 1 {
		g.publish(gm.ID, EventWinner, WinnerData{
			WinnerID:   p.ID,
			WinnerName: p.Username,
			FinishTime: finishTime,
		})
	}

	if gm.Status == highlander.GameStatusFinished {
		g.finish(ctx, gm)
	}
}

// finish publishes the final standings and folds them into each member's
// lifetime stats.
func (g *Gateway) finish(ctx context.Context, gm *highlander.Game) {
	ids := make([]string, 0, len(gm.Players))
	for _, p := range gm.Players {
		ids = append(ids, p.ID)
	}

	traveled, err := g.deps.Presence.Traveled(ctx, gm.ID, ids)
	if err != nil {
		g.logger.Error("reading traveled distance", "game_id", gm.ID, "error", err)
		traveled = map[string]float64{}
	}

	var shortest float64
	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	route, err := g.deps.Router.Route(rctx, gm.Goal.GeneratedFromPosition, gm.Goal.Position)
	cancel()
	if err != nil {
		g.logger.Warn("shortest path unavailable", "game_id", gm.ID, "error", err)
	} else {
		shortest = route.Distance
	}

	result := highlander.BuildResult(gm, traveled, shortest)
	g.publish(gm.ID, EventFinished, FinishedData{Result: result})
	g.logger.Info("game finished", "game_id", gm.ID, "finished_players", result.Stats.FinishedPlayers)

	for _, p := range gm.Players {
		o := highlander.Outcome{
			Won:      p.ID == gm.WinnerID,
			Finished: p.Status == highlander.PlayerStatusFinished,
			Distance: traveled[p.ID],
		}
		if o.Finished && p.FinishedAt != nil {
			o.TimeToGoal = gm.Elapsed(*p.FinishedAt)
		}
		if err := g.deps.Players.RecordResult(ctx, p.ID, o); err != nil {
			g.logger.Error("recording player result", "game_id", gm.ID, "player_id", p.ID, "error", err)
		}
	}
}
