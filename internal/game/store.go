// Package game is the authoritative store for game sessions. Every mutation
// is atomic per game: callers in this process queue on a per-game lock and
// the write itself is a version compare-and-swap, so a racing writer in
// another process forces a reload instead of a lost update.
//
// Operations whose precondition does not hold return a nil game and a nil
// error. Errors are reserved for storage failures.
package game

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/israelgr/High-lander-task/internal/highlander"
)

var (
	ErrNotFound = errors.New("game not found")
	ErrConflict = errors.New("game modified concurrently")
)

const (
	maxCommitAttempts = 5
	maxCodeAttempts   = 10

	// WaitingListLimit caps ListWaiting.
	WaitingListLimit = 20
)

// GoalGenerator places the goal when a game starts.
type GoalGenerator interface {
	Generate(ctx context.Context, origin highlander.Coordinates, cfg highlander.GameConfig) highlander.Goal
}

type Store struct {
	db      *sql.DB
	goals   GoalGenerator
	locks   *keyedMutex
	now     func() time.Time
	newCode func() (string, error)
}

func NewStore(db *sql.DB, goals GoalGenerator) *Store {
	return &Store{
		db:      db,
		goals:   goals,
		locks:   newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
		newCode: NewCode,
	}
}

// Create inserts a waiting game with the host as its only player.
func (s *Store) Create(ctx context.Context, hostID, hostName string, cfg highlander.GameConfig) (*highlander.Game, error) {
	now := s.now()
	g := &highlander.Game{
		ID:           uuid.NewString(),
		HostPlayerID: hostID,
		Status:       highlander.GameStatusWaiting,
		Config:       cfg,
		Players: []highlander.PlayerInGame{{
			ID:       hostID,
			Username: hostName,
			Status:   highlander.PlayerStatusWaiting,
			JoinedAt: now,
		}},
		CreatedAt: now,
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generating code: %w", err)
		}
		g.Code = code

		data, err := json.Marshal(g)
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO games (id, code, status, host_player_id, version, created_at, data)
			 VALUES (?, ?, ?, ?, 1, ?, jsonb(?))`,
			g.ID, g.Code, g.Status, g.HostPlayerID, formatTime(now), string(data),
		)
		if err == nil {
			return g, nil
		}
		if !isUniqueViolation(err, "games.code") {
			return nil, fmt.Errorf("inserting game: %w", err)
		}
	}
	return nil, fmt.Errorf("inserting game: no free code after %d attempts", maxCodeAttempts)
}

func (s *Store) ByID(ctx context.Context, id string) (*highlander.Game, error) {
	g, _, err := s.load(ctx, id)
	return g, err
}

// ByCode looks up a game by join code, ignoring case and surrounding space.
func (s *Store) ByCode(ctx context.Context, code string) (*highlander.Game, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM games WHERE code = ?`, NormalizeCode(code),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var g highlander.Game
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListWaiting returns the newest joinable games.
func (s *Store) ListWaiting(ctx context.Context) ([]highlander.Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT json(data) FROM games WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
		highlander.GameStatusWaiting, WaitingListLimit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	games := []highlander.Game{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var g highlander.Game
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// Join appends a player to a waiting game that has room and does not
// already contain them.
func (s *Store) Join(ctx context.Context, id, playerID, username string) (*highlander.Game, error) {
	return s.mutate(ctx, id, func(g *highlander.Game) bool {
		if g.Status != highlander.GameStatusWaiting ||
			g.HasPlayer(playerID) ||
			len(g.Players) >= g.Config.MaxPlayers {
			return false
		}
		g.Players = append(g.Players, highlander.PlayerInGame{
			ID:       playerID,
			Username: username,
			Status:   highlander.PlayerStatusWaiting,
			JoinedAt: s.now(),
		})
		return true
	})
}

// Leave removes a member whatever the game or player status. It returns
// nil without writing when the player is not on the roster.
func (s *Store) Leave(ctx context.Context, id, playerID string) (*highlander.Game, error) {
	return s.mutate(ctx, id, func(g *highlander.Game) bool {
		kept := g.Players[:0]
		for _, p := range g.Players {
			if p.ID != playerID {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(g.Players) {
			return false
		}
		g.Players = kept
		return true
	})
}

// SetReady marks a member of a waiting game as ready.
func (s *Store) SetReady(ctx context.Context, id, playerID string) (*highlander.Game, error) {
	return s.mutate(ctx, id, func(g *highlander.Game) bool {
		p := g.Player(playerID)
		if g.Status != highlander.GameStatusWaiting || p == nil {
			return false
		}
		p.Status = highlander.PlayerStatusReady
		return true
	})
}

// Start generates the goal around origin and moves a waiting game to active.
// The goal is generated before taking the game lock since it may wait on
// the routing oracle; the waiting check is repeated at commit.
func (s *Store) Start(ctx context.Context, id string, origin highlander.Coordinates) (*highlander.Game, error) {
	current, _, err := s.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if current.Status != highlander.GameStatusWaiting {
		return nil, nil
	}

	goal := s.goals.Generate(ctx, origin, current.Config)

	return s.mutate(ctx, id, func(g *highlander.Game) bool {
		if g.Status != highlander.GameStatusWaiting {
			return false
		}
		now := s.now()
		g.Status = highlander.GameStatusActive
		g.Goal = &goal
		g.StartedAt = &now
		for i := range g.Players {
			g.Players[i].Status = highlander.PlayerStatusPlaying
		}
		return true
	})
}

// ReachGoal records a playing member's arrival with the next dense rank and
// finishes the game once nobody is left playing.
func (s *Store) ReachGoal(ctx context.Context, id, playerID string) (*highlander.Game, error) {
	return s.mutate(ctx, id, func(g *highlander.Game) bool {
		p := g.Player(playerID)
		if g.Status != highlander.GameStatusActive || p == nil || p.Status != highlander.PlayerStatusPlaying {
			return false
		}
		now := s.now()
		g.Finishers++
		p.Rank = g.Finishers
		p.Status = highlander.PlayerStatusFinished
		p.FinishedAt = &now
		if g.WinnerID == "" {
			g.WinnerID = playerID
		}
		if g.AllDone() {
			g.Status = highlander.GameStatusFinished
			g.FinishedAt = &now
		}
		return true
	})
}

// mutate applies fn to a fresh copy of the game and commits it when fn
// reports that its precondition held.
func (s *Store) mutate(ctx context.Context, id string, fn func(*highlander.Game) bool) (*highlander.Game, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		g, version, err := s.load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !fn(g) {
			return nil, nil
		}

		ok, err := s.commit(ctx, g, version)
		if err != nil {
			return nil, err
		}
		if ok {
			return g, nil
		}
	}
	return nil, fmt.Errorf("updating game %s: %w", id, ErrConflict)
}

func (s *Store) load(ctx context.Context, id string) (*highlander.Game, int64, error) {
	var (
		version int64
		data    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, json(data) FROM games WHERE id = ?`, id,
	).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("loading game: %w", err)
	}
	var g highlander.Game
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, 0, fmt.Errorf("decoding game: %w", err)
	}
	return &g, version, nil
}

// commit writes g only if the row is still at version.
func (s *Store) commit(ctx context.Context, g *highlander.Game, version int64) (bool, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET status = ?, data = jsonb(?), version = version + 1
		 WHERE id = ? AND version = ?`,
		g.Status, string(data), g.ID, version,
	)
	if err != nil {
		return false, fmt.Errorf("saving game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func isUniqueViolation(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
