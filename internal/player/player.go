// Package player stores player accounts and their lifetime stats.
package player

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/israelgr/High-lander-task/internal/highlander"
)

var (
	ErrNotFound      = errors.New("player not found")
	ErrUsernameTaken = errors.New("username already taken")
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const selectPlayer = `SELECT id, username, COALESCE(avatar_url, ''), games_played, games_won,
	total_distance, goals_reached, total_time_to_goal, created_at FROM players`

func scanPlayer(row interface{ Scan(...any) error }) (highlander.Player, error) {
	var (
		p         highlander.Player
		goals     int
		totalTime float64
		createdAt string
	)
	err := row.Scan(&p.ID, &p.Username, &p.AvatarURL, &p.Stats.GamesPlayed, &p.Stats.GamesWon,
		&p.Stats.TotalDistance, &goals, &totalTime, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return highlander.Player{}, ErrNotFound
	}
	if err != nil {
		return highlander.Player{}, err
	}
	if goals > 0 {
		p.Stats.AverageTimeToGoal = totalTime / float64(goals)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return p, nil
}

func (s *Store) ByID(ctx context.Context, id string) (highlander.Player, error) {
	return scanPlayer(s.db.QueryRowContext(ctx, selectPlayer+` WHERE id = ?`, id))
}

func (s *Store) ByUsername(ctx context.Context, username string) (highlander.Player, error) {
	return scanPlayer(s.db.QueryRowContext(ctx, selectPlayer+` WHERE username = ?`, username))
}

// Create inserts a new player, failing with ErrUsernameTaken on a clash.
func (s *Store) Create(ctx context.Context, username, avatarURL string) (highlander.Player, error) {
	p, created, err := s.insert(ctx, username, avatarURL)
	if err != nil {
		return highlander.Player{}, err
	}
	if !created {
		return highlander.Player{}, ErrUsernameTaken
	}
	return p, nil
}

// GetOrCreate returns the player with username, creating it on first use.
// Concurrent callers with the same username all get the same player.
func (s *Store) GetOrCreate(ctx context.Context, username, avatarURL string) (highlander.Player, bool, error) {
	p, created, err := s.insert(ctx, username, avatarURL)
	if err != nil {
		return highlander.Player{}, false, err
	}
	if created {
		return p, true, nil
	}
	p, err = s.ByUsername(ctx, username)
	return p, false, err
}

func (s *Store) insert(ctx context.Context, username, avatarURL string) (highlander.Player, bool, error) {
	username = strings.TrimSpace(username)
	p := highlander.Player{
		ID:        uuid.NewString(),
		Username:  username,
		AvatarURL: avatarURL,
		CreatedAt: s.now(),
	}
	var avatar any
	if avatarURL != "" {
		avatar = avatarURL
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO players (id, username, avatar_url, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		p.ID, p.Username, avatar, p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return highlander.Player{}, false, fmt.Errorf("inserting player: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return highlander.Player{}, false, err
	}
	return p, n == 1, nil
}

// RecordResult folds one finished game into the player's stats.
func (s *Store) RecordResult(ctx context.Context, id string, o highlander.Outcome) error {
	var won, goals int
	var timeToGoal float64
	if o.Won {
		won = 1
	}
	if o.Finished {
		goals = 1
		timeToGoal = o.TimeToGoal
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET
			games_played = games_played + 1,
			games_won = games_won + ?,
			total_distance = total_distance + ?,
			goals_reached = goals_reached + ?,
			total_time_to_goal = total_time_to_goal + ?
		 WHERE id = ?`,
		won, o.Distance, goals, timeToGoal, id,
	)
	if err != nil {
		return fmt.Errorf("updating stats: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
