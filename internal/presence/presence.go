// Package presence keeps the live, overwrite-only state of players in Redis:
// latest position per game member, the per-game GEO index, distance walked
// while a game is active, and which connection belongs to which player/game.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/israelgr/High-lander-task/internal/geo"
	"github.com/israelgr/High-lander-task/internal/highlander"
)

const (
	fieldPosition   = "position"
	fieldLastUpdate = "lastUpdate"
	fieldTraveled   = "traveled"
	fieldSocket     = "socketId"

	// maxGeoLatitude is the limit of the Web Mercator range Redis GEO accepts.
	maxGeoLatitude = 85.05112878
)

func playerKey(gameID, playerID string) string {
	return "game:" + gameID + ":player:" + playerID
}

func locationsKey(gameID string) string { return "game:" + gameID + ":locations" }
func connPlayerKey(connID string) string { return "socket:" + connID + ":player" }
func connGameKey(connID string) string   { return "socket:" + connID + ":game" }

type Cache struct {
	rdb *redis.Client
	now func() time.Time
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, now: time.Now}
}

// UpdatePosition overwrites the player's last known position. With track
// set, the great-circle step from the previous position is added to the
// player's walked distance.
func (c *Cache) UpdatePosition(ctx context.Context, gameID, playerID string, pos highlander.Position, track bool) error {
	key := playerKey(gameID, playerID)

	var step float64
	if track {
		prev, err := c.position(ctx, key)
		if err != nil {
			return err
		}
		if prev != nil {
			step = geo.Distance(prev.Coordinates, pos.Coordinates)
		}
	}

	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}

	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			fieldPosition, string(data),
			fieldLastUpdate, strconv.FormatInt(c.now().UnixMilli(), 10),
		)
		// Redis GEO cannot index the polar caps; those positions are
		// stored but left out of the index.
		if math.Abs(pos.Latitude) <= maxGeoLatitude {
			p.GeoAdd(ctx, locationsKey(gameID), &redis.GeoLocation{
				Name:      playerID,
				Longitude: pos.Longitude,
				Latitude:  pos.Latitude,
			})
		} else {
			p.ZRem(ctx, locationsKey(gameID), playerID)
		}
		if step > 0 {
			p.HIncrByFloat(ctx, key, fieldTraveled, step)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating position: %w", err)
	}
	return nil
}

// Position returns the player's last known position, or nil.
func (c *Cache) Position(ctx context.Context, gameID, playerID string) (*highlander.Position, error) {
	return c.position(ctx, playerKey(gameID, playerID))
}

func (c *Cache) position(ctx context.Context, key string) (*highlander.Position, error) {
	data, err := c.rdb.HGet(ctx, key, fieldPosition).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading position: %w", err)
	}
	var pos highlander.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("decoding position: %w", err)
	}
	return &pos, nil
}

// Positions batch-reads positions. Players without one are absent from
// the result.
func (c *Cache) Positions(ctx context.Context, gameID string, playerIDs []string) (map[string]highlander.Position, error) {
	out := make(map[string]highlander.Position, len(playerIDs))
	if len(playerIDs) == 0 {
		return out, nil
	}

	cmds := make([]*redis.StringCmd, len(playerIDs))
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range playerIDs {
			cmds[i] = p.HGet(ctx, playerKey(gameID, id), fieldPosition)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading positions: %w", err)
	}

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var pos highlander.Position
		if json.Unmarshal(data, &pos) != nil {
			continue
		}
		out[playerIDs[i]] = pos
	}
	return out, nil
}

// Traveled returns meters walked per player while the game was active.
func (c *Cache) Traveled(ctx context.Context, gameID string, playerIDs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(playerIDs))
	if len(playerIDs) == 0 {
		return out, nil
	}

	cmds := make([]*redis.StringCmd, len(playerIDs))
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range playerIDs {
			cmds[i] = p.HGet(ctx, playerKey(gameID, id), fieldTraveled)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading distance traveled: %w", err)
	}

	for i, cmd := range cmds {
		if v, err := cmd.Float64(); err == nil {
			out[playerIDs[i]] = v
		}
	}
	return out, nil
}

// Forget drops everything known about a player in a game.
func (c *Cache) Forget(ctx context.Context, gameID, playerID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, playerKey(gameID, playerID))
		p.ZRem(ctx, locationsKey(gameID), playerID)
		return nil
	})
	return err
}

// BindConn records which player owns a connection.
func (c *Cache) BindConn(ctx context.Context, connID, playerID string) error {
	return c.rdb.Set(ctx, connPlayerKey(connID), playerID, 0).Err()
}

// BindGame records the game a connection is in and the player's socket.
func (c *Cache) BindGame(ctx context.Context, connID, gameID, playerID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, connGameKey(connID), gameID, 0)
		p.HSet(ctx, playerKey(gameID, playerID), fieldSocket, connID)
		return nil
	})
	return err
}

func (c *Cache) UnbindGame(ctx context.Context, connID string) error {
	return c.rdb.Del(ctx, connGameKey(connID)).Err()
}

// ConnGame returns the game a connection is bound to, or "".
func (c *Cache) ConnGame(ctx context.Context, connID string) (string, error) {
	id, err := c.rdb.Get(ctx, connGameKey(connID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// Unbind removes both connection mappings.
func (c *Cache) Unbind(ctx context.Context, connID string) error {
	return c.rdb.Del(ctx, connPlayerKey(connID), connGameKey(connID)).Err()
}
