package realtime

import (
	"encoding/json"

	"github.com/israelgr/High-lander-task/internal/highlander"
)

// Client actions.
const (
	EventAuthenticate   = "player:authenticate"
	EventCreate         = "game:create"
	EventJoin           = "game:join"
	EventRejoin         = "game:rejoin"
	EventLeave          = "game:leave"
	EventReady          = "game:ready"
	EventStart          = "game:start"
	EventLocationUpdate = "location:update"
	EventGoalReached    = "goal:reached"
)

// Server events.
const (
	EventAuthenticated   = "connection:authenticated"
	EventConnectionError = "connection:error"
	EventCreated         = "game:created"
	EventJoined          = "game:joined"
	EventPlayerJoined    = "game:player_joined"
	EventPlayerLeft      = "game:player_left"
	EventPlayerReady     = "game:player_ready"
	EventCountdown       = "game:countdown"
	EventStarted         = "game:started"
	EventPositions       = "players:positions"
	EventPlayerFinished  = "player:reached_goal"
	EventWinner          = "game:winner"
	EventFinished        = "game:finished"
	EventError           = "error"
	EventConfigUpdated   = "config:updated"
)

// Error codes carried by error and connection:error events.
const (
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodePlayerNotFound   = "PLAYER_NOT_FOUND"
	CodeAuthFailed       = "AUTH_FAILED"
	CodeInvalidMessage   = "INVALID_MESSAGE"
	CodeUnknownEvent     = "UNKNOWN_EVENT"
	CodeInvalidConfig    = "INVALID_CONFIG"
	CodeCreateFailed     = "CREATE_FAILED"
	CodeGameNotFound     = "GAME_NOT_FOUND"
	CodeJoinFailed       = "JOIN_FAILED"
	CodeNotInGame        = "NOT_IN_GAME"
	CodeRejoinFailed     = "REJOIN_FAILED"
	CodeLeaveFailed      = "LEAVE_FAILED"
	CodeReadyFailed      = "READY_FAILED"
	CodeNotHost          = "NOT_HOST"
	CodeStartInProgress  = "START_IN_PROGRESS"
	CodeNoPosition       = "NO_POSITION"
	CodeStartFailed      = "START_FAILED"
	CodeInvalidPosition  = "INVALID_POSITION"
	CodeGameNotActive    = "GAME_NOT_ACTIVE"
	CodeNotAtGoal        = "NOT_AT_GOAL"
	CodeGoalFailed       = "GOAL_FAILED"
	CodeLocationFailed   = "LOCATION_FAILED"
)

// Frame is the envelope of every message in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func encode(event string, data any) []byte {
	b, _ := json.Marshal(outFrame{Type: event, Data: data})
	return b
}

type ErrorData struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Distance *float64 `json:"distance,omitempty"`
}

type AuthenticatedData struct {
	PlayerID string `json:"playerId"`
}

type CreateRequest struct {
	Config highlander.GameConfigPatch `json:"config"`
}

type JoinRequest struct {
	GameCode string `json:"gameCode"`
}

type PositionRequest struct {
	Position highlander.Position `json:"position"`
}

type GameData struct {
	Game *highlander.Game `json:"game"`
}

type PlayerJoinedData struct {
	Player highlander.PlayerInGame `json:"player"`
}

type PlayerRefData struct {
	PlayerID string `json:"playerId"`
}

type CountdownData struct {
	Seconds int `json:"seconds"`
}

type PlayerPosition struct {
	PlayerID       string              `json:"playerId"`
	Position       highlander.Position `json:"position"`
	DistanceToGoal float64             `json:"distanceToGoal"`
}

type PlayerFinishedData struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	FinishTime float64 `json:"finishTime"`
	Rank       int     `json:"rank"`
}

type WinnerData struct {
	WinnerID   string  `json:"winnerId"`
	WinnerName string  `json:"winnerName"`
	FinishTime float64 `json:"finishTime"`
}

type FinishedData struct {
	Result highlander.GameResult `json:"result"`
}

type ConfigData struct {
	Config highlander.DistanceConfig `json:"config"`
}
