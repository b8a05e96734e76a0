// Package highlander defines the core domain types of the navigation game.
// It has no external dependencies.
package highlander

import (
	"errors"
	"time"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether c lies inside the WGS84 latitude/longitude ranges.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Position is a device fix as reported by a client.
type Position struct {
	Coordinates
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // unix ms
}

type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"
	GameStatusActive   GameStatus = "active"
	GameStatusFinished GameStatus = "finished"
	// GameStatusCancelled is reserved; nothing transitions into it yet.
	GameStatusCancelled GameStatus = "cancelled"
)

type PlayerStatus string

const (
	PlayerStatusWaiting      PlayerStatus = "waiting"
	PlayerStatusReady        PlayerStatus = "ready"
	PlayerStatusPlaying      PlayerStatus = "playing"
	PlayerStatusFinished     PlayerStatus = "finished"
	PlayerStatusDisconnected PlayerStatus = "disconnected"
)

type GameConfig struct {
	MaxPlayers         int     `json:"maxPlayers"`
	GoalRadiusMin      float64 `json:"goalRadiusMin"`
	GoalRadiusMax      float64 `json:"goalRadiusMax"`
	ProximityThreshold float64 `json:"proximityThreshold"`
	TimeLimit          int     `json:"timeLimit,omitempty"` // seconds, 0 = none
}

// GameConfigPatch carries the optional overrides a host sends with game:create.
type GameConfigPatch struct {
	MaxPlayers         *int     `json:"maxPlayers,omitempty"`
	GoalRadiusMin      *float64 `json:"goalRadiusMin,omitempty"`
	GoalRadiusMax      *float64 `json:"goalRadiusMax,omitempty"`
	ProximityThreshold *float64 `json:"proximityThreshold,omitempty"`
	TimeLimit          *int     `json:"timeLimit,omitempty"`
}

var (
	errMaxPlayers = errors.New("maxPlayers must be between 1 and 50")
	errRadius     = errors.New("goal radius must satisfy 50 <= goalRadiusMin <= goalRadiusMax <= 10000")
	errProximity  = errors.New("proximityThreshold must be between 5 and 100 meters")
	errTimeLimit  = errors.New("timeLimit must not be negative")
)

func (c GameConfig) Validate() error {
	switch {
	case c.MaxPlayers < 1 || c.MaxPlayers > 50:
		return errMaxPlayers
	case c.GoalRadiusMin < 50 || c.GoalRadiusMax > 10000 || c.GoalRadiusMin > c.GoalRadiusMax:
		return errRadius
	case c.ProximityThreshold < 5 || c.ProximityThreshold > 100:
		return errProximity
	case c.TimeLimit < 0:
		return errTimeLimit
	}
	return nil
}

// Goal is immutable once attached to a game.
type Goal struct {
	Position              Coordinates `json:"position"`
	GeneratedAt           time.Time   `json:"generatedAt"`
	GeneratedFromPosition Coordinates `json:"generatedFromPosition"`
}

type PlayerInGame struct {
	ID         string       `json:"id"`
	Username   string       `json:"username"`
	Status     PlayerStatus `json:"status"`
	JoinedAt   time.Time    `json:"joinedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
	Rank       int          `json:"rank,omitempty"`
}

// Game is the authoritative session document. Players keep join order.
type Game struct {
	ID           string         `json:"id"`
	Code         string         `json:"code"`
	HostPlayerID string         `json:"hostPlayerId"`
	Status       GameStatus     `json:"status"`
	Config       GameConfig     `json:"config"`
	Goal         *Goal          `json:"goal,omitempty"`
	Players      []PlayerInGame `json:"players"`
	WinnerID     string         `json:"winnerId,omitempty"`
	// Finishers counts accepted goal claims, including players who left.
	Finishers    int            `json:"finishers,omitempty"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	FinishedAt   *time.Time     `json:"finishedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Player returns the roster entry for id, or nil.
func (g *Game) Player(id string) *PlayerInGame {
	for i := range g.Players {
		if g.Players[i].ID == id {
			return &g.Players[i]
		}
	}
	return nil
}

func (g *Game) HasPlayer(id string) bool { return g.Player(id) != nil }

// AllDone reports whether every member is finished or disconnected.
func (g *Game) AllDone() bool {
	for _, p := range g.Players {
		if p.Status != PlayerStatusFinished && p.Status != PlayerStatusDisconnected {
			return false
		}
	}
	return true
}

// PlayerIDs returns the ids of members currently in status s, in join order.
func (g *Game) PlayerIDs(s PlayerStatus) []string {
	var ids []string
	for _, p := range g.Players {
		if p.Status == s {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Elapsed returns the seconds between the game start and t.
func (g *Game) Elapsed(t time.Time) float64 {
	if g.StartedAt == nil {
		return 0
	}
	return t.Sub(*g.StartedAt).Seconds()
}

type PlayerStats struct {
	GamesPlayed       int     `json:"gamesPlayed"`
	GamesWon          int     `json:"gamesWon"`
	TotalDistance     float64 `json:"totalDistance"`
	AverageTimeToGoal float64 `json:"averageTimeToGoal"`
}

// Player is the account-level identity, distinct from a roster entry.
type Player struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	AvatarURL string      `json:"avatarUrl,omitempty"`
	Stats     PlayerStats `json:"stats"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Outcome is one finished game from a single player's point of view.
type Outcome struct {
	Won        bool
	Finished   bool
	Distance   float64
	TimeToGoal float64 // seconds, meaningful when Finished
}

// Identity is what a verified bearer credential resolves to.
type Identity struct {
	UserID   string
	PlayerID string
	Email    string
}

type LineString struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// Route is a walking route returned by the routing oracle.
type Route struct {
	Distance float64    `json:"distance"` // meters
	Duration float64    `json:"duration"` // seconds
	Geometry LineString `json:"geometry"`
}
