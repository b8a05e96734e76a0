// Package realtime is the websocket gateway players stay connected to while
// they play. It authenticates each connection once, routes client actions
// to the session store and fans the resulting state out to game rooms.
//
// Actions on one connection are handled in arrival order; different
// connections run concurrently. The game store is the only writer of game
// state: handlers broadcast what it returns.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/israelgr/High-lander-task/internal/highlander"
)

// Sessions is the game store as seen by the gateway. Operations whose
// precondition fails return a nil game and a nil error.
type Sessions interface {
	Create(ctx context.Context, hostID, hostName string, cfg highlander.GameConfig) (*highlander.Game, error)
	ByID(ctx context.Context, id string) (*highlander.Game, error)
	ByCode(ctx context.Context, code string) (*highlander.Game, error)
	Join(ctx context.Context, id, playerID, username string) (*highlander.Game, error)
	Leave(ctx context.Context, id, playerID string) (*highlander.Game, error)
	SetReady(ctx context.Context, id, playerID string) (*highlander.Game, error)
	Start(ctx context.Context, id string, origin highlander.Coordinates) (*highlander.Game, error)
	ReachGoal(ctx context.Context, id, playerID string) (*highlander.Game, error)
}

type Presence interface {
	UpdatePosition(ctx context.Context, gameID, playerID string, pos highlander.Position, track bool) error
	Position(ctx context.Context, gameID, playerID string) (*highlander.Position, error)
	Positions(ctx context.Context, gameID string, playerIDs []string) (map[string]highlander.Position, error)
	Traveled(ctx context.Context, gameID string, playerIDs []string) (map[string]float64, error)
	Forget(ctx context.Context, gameID, playerID string) error
	BindConn(ctx context.Context, connID, playerID string) error
	BindGame(ctx context.Context, connID, gameID, playerID string) error
	UnbindGame(ctx context.Context, connID string) error
	ConnGame(ctx context.Context, connID string) (string, error)
	Unbind(ctx context.Context, connID string) error
}

type Players interface {
	ByID(ctx context.Context, id string) (highlander.Player, error)
	RecordResult(ctx context.Context, id string, o highlander.Outcome) error
}

type Verifier interface {
	Authenticate(token string) (highlander.Identity, error)
}

type Tuning interface {
	Distance(ctx context.Context) highlander.DistanceConfig
	Watch(ctx context.Context, fn func(highlander.SystemConfig)) error
}

type Router interface {
	Route(ctx context.Context, start, end highlander.Coordinates) (highlander.Route, error)
}

type Deps struct {
	Sessions Sessions
	Presence Presence
	Players  Players
	Verifier Verifier
	Tuning   Tuning
	Router   Router
}

type Options struct {
	CountdownSeconds int
	// Tick is the countdown step; one second outside tests.
	Tick          time.Duration
	Fallback      highlander.Coordinates
	AllowFallback bool
	// OriginPatterns are passed to websocket.Accept; empty allows any origin.
	OriginPatterns []string
}

type Gateway struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	broker *Broker

	// base outlives connections; countdowns run on it.
	base   context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu         sync.Mutex
	conns      map[*conn]struct{}
	countdowns map[string]struct{}
}

func New(logger *slog.Logger, deps Deps, opts Options) *Gateway {
	if opts.Tick == 0 {
		opts.Tick = time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &Gateway{
		deps:       deps,
		opts:       opts,
		logger:     logger,
		broker:     NewBroker(),
		base:       base,
		cancel:     cancel,
		conns:      make(map[*conn]struct{}),
		countdowns: make(map[string]struct{}),
	}
}

// Run relays config changes from every instance to all connected clients
// until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	return g.deps.Tuning.Watch(ctx, func(cfg highlander.SystemConfig) {
		g.broker.Publish(lobby, encode(EventConfigUpdated, ConfigData{Config: cfg.Distance}), nil)
	})
}

// Shutdown cancels running countdowns, waits for them and closes every
// connection.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.cancel()
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	g.mu.Lock()
	for c := range g.conns {
		c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
	g.mu.Unlock()
	return ctx.Err()
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: len(g.opts.OriginPatterns) == 0,
		OriginPatterns:     g.opts.OriginPatterns,
	})
	if err != nil {
		g.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()
	c := newConn(uuid.NewString(), ws)

	sess, code, msg := g.authenticate(ctx, c, bearerToken(r))
	if code != "" {
		g.logger.Info("websocket rejected", "conn_id", c.id, "code", code)
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		wsjson.Write(wctx, ws, outFrame{Type: EventConnectionError, Data: ErrorData{Code: code, Message: msg}})
		cancel()
		ws.Close(websocket.StatusPolicyViolation, msg)
		return
	}
	c.setSession(sess)

	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
	g.broker.Subscribe(lobby, c.send)

	g.logger.Info("websocket connected", "conn_id", c.id, "player_id", sess.PlayerID)

	wctx, cancelWrite := context.WithCancel(ctx)
	go c.writeLoop(wctx)
	c.emit(EventAuthenticated, AuthenticatedData{PlayerID: sess.PlayerID})

	g.readLoop(ctx, c)

	close(c.done)
	cancelWrite()
	g.disconnect(c)
}

func (g *Gateway) authenticate(ctx context.Context, c *conn, token string) (session, string, string) {
	if token == "" {
		return session{}, CodeNotAuthenticated, "Authentication required"
	}
	id, err := g.deps.Verifier.Authenticate(token)
	if err != nil {
		return session{}, CodeNotAuthenticated, "Invalid authentication token"
	}
	p, err := g.deps.Players.ByID(ctx, id.PlayerID)
	if err != nil {
		g.logger.Debug("player lookup failed", "player_id", id.PlayerID, "error", err)
		return session{}, CodePlayerNotFound, "Player not found"
	}
	if err := g.deps.Presence.BindConn(ctx, c.id, p.ID); err != nil {
		g.logger.Error("binding connection", "conn_id", c.id, "error", err)
		return session{}, CodeAuthFailed, "Failed to authenticate player"
	}
	return session{PlayerID: p.ID, Username: p.Username}, "", ""
}

func (g *Gateway) readLoop(ctx context.Context, c *conn) {
	// Handlers finish what they started even if the socket drops.
	hctx := context.WithoutCancel(ctx)

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			g.logger.Debug("websocket read ended", "conn_id", c.id, "error", err)
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			c.fail(CodeInvalidMessage, "Message must be a JSON object with a type")
			continue
		}
		g.dispatch(hctx, c, f)
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *conn, f Frame) {
	switch f.Type {
	case EventAuthenticate:
		c.emit(EventAuthenticated, AuthenticatedData{PlayerID: c.session().PlayerID})
	case EventCreate:
		var req CreateRequest
		if decode(c, f.Data, &req) {
			g.handleCreate(ctx, c, req)
		}
	case EventJoin:
		var req JoinRequest
		if decode(c, f.Data, &req) {
			g.handleJoin(ctx, c, req)
		}
	case EventRejoin:
		var req JoinRequest
		if decode(c, f.Data, &req) {
			g.handleRejoin(ctx, c, req)
		}
	case EventLeave:
		g.handleLeave(ctx, c)
	case EventReady:
		g.handleReady(ctx, c)
	case EventStart:
		g.handleStart(ctx, c)
	case EventLocationUpdate:
		var req PositionRequest
		if decode(c, f.Data, &req) {
			g.handleLocation(ctx, c, req.Position)
		}
	case EventGoalReached:
		var req PositionRequest
		if decode(c, f.Data, &req) {
			g.handleGoalReached(ctx, c, req.Position)
		}
	default:
		c.fail(CodeUnknownEvent, "Unknown event "+f.Type)
	}
}

// decode unmarshals data into dst. An absent payload leaves dst zero.
func decode(c *conn, data json.RawMessage, dst any) bool {
	if len(data) == 0 || string(data) == "null" {
		return true
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.fail(CodeInvalidMessage, "Malformed event payload")
		return false
	}
	return true
}

// disconnect drops the connection's bookkeeping. Room members are told the
// player left; the game roster is not touched.
func (g *Gateway) disconnect(c *conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess := c.session()
	g.broker.Unsubscribe(lobby, c.send)
	if sess.GameID != "" {
		g.broker.Unsubscribe(sess.GameID, c.send)
	}

	// Notify the room the connection is bound to in Redis.
	gameID, err := g.deps.Presence.ConnGame(ctx, c.id)
	if err != nil {
		g.logger.Error("reading connection game", "conn_id", c.id, "error", err)
		gameID = sess.GameID
	}
	if gameID != "" {
		g.publish(gameID, EventPlayerLeft, PlayerRefData{PlayerID: sess.PlayerID})
	}
	if err := g.deps.Presence.Unbind(ctx, c.id); err != nil {
		g.logger.Error("unbinding connection", "conn_id", c.id, "error", err)
	}

	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()

	g.logger.Info("websocket disconnected", "conn_id", c.id, "player_id", sess.PlayerID, "game_id", sess.GameID)
}

// enterRoom moves c into the game's room, leaving any previous one.
func (g *Gateway) enterRoom(ctx context.Context, c *conn, gameID string) {
	sess := c.session()
	if sess.GameID != "" && sess.GameID != gameID {
		g.broker.Unsubscribe(sess.GameID, c.send)
	}
	g.broker.Subscribe(gameID, c.send)
	sess.GameID = gameID
	c.setSession(sess)

	if err := g.deps.Presence.BindGame(ctx, c.id, gameID, sess.PlayerID); err != nil {
		g.logger.Error("binding game", "conn_id", c.id, "game_id", gameID, "error", err)
	}
}

func (g *Gateway) leaveRoom(ctx context.Context, c *conn) {
	sess := c.session()
	if sess.GameID == "" {
		return
	}
	g.broker.Unsubscribe(sess.GameID, c.send)
	sess.GameID = ""
	c.setSession(sess)

	if err := g.deps.Presence.UnbindGame(ctx, c.id); err != nil {
		g.logger.Error("unbinding game", "conn_id", c.id, "error", err)
	}
}

func (g *Gateway) publish(gameID, event string, data any) {
	g.broker.Publish(gameID, encode(event, data), nil)
}
