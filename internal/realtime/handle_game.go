package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/israelgr/High-lander-task/internal/game"
	"github.com/israelgr/High-lander-task/internal/highlander"
)

func (g *Gateway) handleCreate(ctx context.Context, c *conn, req CreateRequest) {
	sess := c.session()

	cfg, err := g.deps.Tuning.Distance(ctx).NewGameConfig(req.Config)
	if err != nil {
		c.fail(CodeInvalidConfig, err.Error())
		return
	}

	gm, err := g.deps.Sessions.Create(ctx, sess.PlayerID, sess.Username, cfg)
	if err != nil {
		g.logger.Error("creating game", "event", EventCreate, "player_id", sess.PlayerID, "error", err)
		c.fail(CodeCreateFailed, "Failed to create game")
		return
	}

	g.enterRoom(ctx, c, gm.ID)
	c.emit(EventCreated, GameData{Game: gm})
	g.logger.Info("game created", "game_id", gm.ID, "code", gm.Code, "player_id", sess.PlayerID)
}

// lookup resolves a join code, reporting GAME_NOT_FOUND or failCode to c.
func (g *Gateway) lookup(ctx context.Context, c *conn, code, failCode string) *highlander.Game {
	gm, err := g.deps.Sessions.ByCode(ctx, game.NormalizeCode(code))
	if errors.Is(err, game.ErrNotFound) {
		c.fail(CodeGameNotFound, "Game not found")
		return nil
	}
	if err != nil {
		g.logger.Error("looking up game", "code", code, "error", err)
		c.fail(failCode, "Failed to look up game")
		return nil
	}
	return gm
}

func (g *Gateway) handleJoin(ctx context.Context, c *conn, req JoinRequest) {
	sess := c.session()

	existing := g.lookup(ctx, c, req.GameCode, CodeJoinFailed)
	if existing == nil {
		return
	}

	gm, err := g.deps.Sessions.Join(ctx, existing.ID, sess.PlayerID, sess.Username)
	if err != nil {
		g.logger.Error("joining game", "event", EventJoin, "game_id", existing.ID, "player_id", sess.PlayerID, "error", err)
		c.fail(CodeJoinFailed, "Failed to join game")
		return
	}
	if gm == nil {
		g.logger.Debug("join rejected", "game_id", existing.ID, "player_id", sess.PlayerID)
		c.fail(CodeJoinFailed, "Cannot join this game")
		return
	}

	g.enterRoom(ctx, c, gm.ID)
	c.emit(EventJoined, GameData{Game: gm})
	if p := gm.Player(sess.PlayerID); p != nil {
		g.broker.Publish(gm.ID, encode(EventPlayerJoined, PlayerJoinedData{Player: *p}), c.send)
	}
}

// handleRejoin reattaches a connection to a game the player already
// belongs to, whatever its status.
func (g *Gateway) handleRejoin(ctx context.Context, c *conn, req JoinRequest) {
	sess := c.session()

	gm := g.lookup(ctx, c, req.GameCode, CodeRejoinFailed)
	if gm == nil {
		return
	}
	if !gm.HasPlayer(sess.PlayerID) {
		c.fail(CodeRejoinFailed, "You are not a member of this game")
		return
	}

	g.enterRoom(ctx, c, gm.ID)
	c.emit(EventJoined, GameData{Game: gm})
}

func (g *Gateway) handleLeave(ctx context.Context, c *conn) {
	sess := c.session()
	if sess.GameID == "" {
		c.fail(CodeNotInGame, "You are not in a game")
		return
	}

	gm, err := g.deps.Sessions.Leave(ctx, sess.GameID, sess.PlayerID)
	if err != nil {
		g.logger.Error("leaving game", "event", EventLeave, "game_id", sess.GameID, "player_id", sess.PlayerID, "error", err)
		c.fail(CodeLeaveFailed, "Failed to leave game")
		return
	}

	g.leaveRoom(ctx, c)
	if gm == nil {
		c.fail(CodeNotInGame, "You are no longer in this game")
		return
	}

	if err := g.deps.Presence.Forget(ctx, sess.GameID, sess.PlayerID); err != nil {
		g.logger.Error("forgetting position", "game_id", sess.GameID, "player_id", sess.PlayerID, "error", err)
	}
	g.publish(sess.GameID, EventPlayerLeft, PlayerRefData{PlayerID: sess.PlayerID})
}

func (g *Gateway) handleReady(ctx context.Context, c *conn) {
	sess := c.session()
	if sess.GameID == "" {
		c.fail(CodeNotInGame, "You are not in a game")
		return
	}

	gm, err := g.deps.Sessions.SetReady(ctx, sess.GameID, sess.PlayerID)
	if err != nil {
		g.logger.Error("marking ready", "event", EventReady, "game_id", sess.GameID, "player_id", sess.PlayerID, "error", err)
		c.fail(CodeReadyFailed, "Failed to mark ready")
		return
	}
	if gm == nil {
		c.fail(CodeReadyFailed, "Cannot mark ready in this game")
		return
	}
	g.publish(gm.ID, EventPlayerReady, PlayerRefData{PlayerID: sess.PlayerID})
}

// handleStart validates the request, then hands off to a countdown task so
// the connection keeps processing events while it runs.
func (g *Gateway) handleStart(ctx context.Context, c *conn) {
	sess := c.session()
	if sess.GameID == "" {
		c.fail(CodeNotInGame, "You are not in a game")
		return
	}

	gm, err := g.deps.Sessions.ByID(ctx, sess.GameID)
	if errors.Is(err, game.ErrNotFound) {
		c.fail(CodeGameNotFound, "Game not found")
		return
	}
	if err != nil {
		g.logger.Error("loading game", "event", EventStart, "game_id", sess.GameID, "error", err)
		c.fail(CodeStartFailed, "Failed to start game")
		return
	}
	if gm.HostPlayerID != sess.PlayerID {
		c.fail(CodeNotHost, "Only the host can start the game")
		return
	}
	if gm.Status != highlander.GameStatusWaiting {
		c.fail(CodeStartFailed, "Game has already started")
		return
	}

	origin, ok := g.startOrigin(ctx, c, gm.ID, sess.PlayerID)
	if !ok {
		return
	}

	g.mu.Lock()
	if g.base.Err() != nil {
		g.mu.Unlock()
		c.fail(CodeStartFailed, "Server is shutting down")
		return
	}
	if _, running := g.countdowns[gm.ID]; running {
		g.mu.Unlock()
		c.fail(CodeStartInProgress, "Game is already starting")
		return
	}
	g.countdowns[gm.ID] = struct{}{}
	g.tasks.Add(1)
	g.mu.Unlock()

	go g.countdown(c, gm.ID, origin)
}

// startOrigin is the host's last known position, or the configured
// fallback when allowed.
func (g *Gateway) startOrigin(ctx context.Context, c *conn, gameID, hostID string) (highlander.Coordinates, bool) {
	pos, err := g.deps.Presence.Position(ctx, gameID, hostID)
	if err != nil {
		g.logger.Error("reading host position", "game_id", gameID, "error", err)
		c.fail(CodeStartFailed, "Failed to start game")
		return highlander.Coordinates{}, false
	}
	if pos != nil {
		return pos.Coordinates, true
	}
	if !g.opts.AllowFallback {
		c.fail(CodeNoPosition, "Please share your location before starting")
		return highlander.Coordinates{}, false
	}
	g.logger.Warn("host has no position, using fallback", "game_id", gameID)
	return g.opts.Fallback, true
}

// countdown broadcasts one tick per step and then starts the game. It is
// not cancelled when the host disconnects; only Shutdown stops it.
func (g *Gateway) countdown(c *conn, gameID string, origin highlander.Coordinates) {
	defer g.tasks.Done()
	defer func() {
		g.mu.Lock()
		delete(g.countdowns, gameID)
		g.mu.Unlock()
	}()

	ctx := g.base
	for s := g.opts.CountdownSeconds; s > 0; s-- {
		g.publish(gameID, EventCountdown, CountdownData{Seconds: s})
		select {
		case <-time.After(g.opts.Tick):
		case <-ctx.Done():
			return
		}
	}

	gm, err := g.deps.Sessions.Start(ctx, gameID, origin)
	if err != nil {
		g.logger.Error("starting game", "event", EventStart, "game_id", gameID, "error", err)
		c.fail(CodeStartFailed, "Failed to start game")
		return
	}
	if gm == nil {
		c.fail(CodeStartFailed, "Game can no longer be started")
		return
	}

	g.publish(gameID, EventStarted, GameData{Game: gm})
	g.logger.Info("game started", "game_id", gameID, "code", gm.Code, "players", len(gm.Players))
}
