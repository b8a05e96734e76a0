// Package tuning owns the system-wide distance config: a versioned row in
// SQLite with an append-only history, mirrored into Redis and fanned out to
// every server instance over pub/sub.
//
// Reads go memory, then Redis, then SQLite, then built-in defaults.
package tuning

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/israelgr/High-lander-task/internal/highlander"
)

const (
	ConfigType = "system"
	cacheKey   = "config:system"
	Channel    = "config:updates"

	eventUpdated = "config:updated"
)

type updateMessage struct {
	Type   string                  `json:"type"`
	Config highlander.SystemConfig `json:"config"`
}

type Service struct {
	db       *sql.DB
	rdb      *redis.Client
	defaults highlander.DistanceConfig
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	cached *highlander.SystemConfig
	load   singleflight.Group

	updateMu sync.Mutex
}

func NewService(logger *slog.Logger, db *sql.DB, rdb *redis.Client, defaults highlander.DistanceConfig) *Service {
	return &Service{
		db:       db,
		rdb:      rdb,
		defaults: defaults,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Defaults returns the built-in config, used until an admin saves one.
func (s *Service) Defaults() highlander.SystemConfig {
	return highlander.SystemConfig{
		Distance: s.defaults,
		Metadata: highlander.ConfigMetadata{
			UpdatedAt: s.now(),
			UpdatedBy: "system",
			Version:   1,
		},
	}
}

// Get never fails: storage errors are logged and the next source is tried.
func (s *Service) Get(ctx context.Context) highlander.SystemConfig {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return *cached
	}

	v, _, _ := s.load.Do(cacheKey, func() (any, error) {
		return s.loadCold(ctx), nil
	})
	return v.(highlander.SystemConfig)
}

func (s *Service) Distance(ctx context.Context) highlander.DistanceConfig {
	return s.Get(ctx).Distance
}

func (s *Service) loadCold(ctx context.Context) highlander.SystemConfig {
	data, err := s.rdb.Get(ctx, cacheKey).Bytes()
	switch {
	case err == nil:
		var cfg highlander.SystemConfig
		if err := json.Unmarshal(data, &cfg); err == nil {
			s.remember(cfg)
			return cfg
		}
		s.logger.Warn("discarding malformed cached config")
	case !errors.Is(err, redis.Nil):
		s.logger.Error("reading config from redis", "error", err)
	}

	cfg, err := s.fromDB(ctx)
	switch {
	case err == nil:
		s.remember(cfg)
		s.writeCache(ctx, cfg)
		return cfg
	case !errors.Is(err, sql.ErrNoRows):
		s.logger.Error("reading config from database", "error", err)
	}

	return s.Defaults()
}

func (s *Service) fromDB(ctx context.Context) (highlander.SystemConfig, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM system_config WHERE type = ?`, ConfigType,
	).Scan(&data)
	if err != nil {
		return highlander.SystemConfig{}, err
	}
	var cfg highlander.SystemConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return highlander.SystemConfig{}, err
	}
	return cfg, nil
}

func (s *Service) remember(cfg highlander.SystemConfig) {
	s.mu.Lock()
	s.cached = &cfg
	s.mu.Unlock()
}

func (s *Service) writeCache(ctx context.Context, cfg highlander.SystemConfig) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey, data, 0).Err(); err != nil {
		s.logger.Error("writing config to redis", "error", err)
	}
}

// Invalidate drops the in-memory copy so the next Get reloads it.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// UpdateDistance validates and applies p, bumps the version, appends a
// history entry and notifies every instance. A *ValidationError is
// returned when p is rejected.
func (s *Service) UpdateDistance(ctx context.Context, p DistancePatch, updatedBy string) (highlander.SystemConfig, error) {
	if problems := p.Validate(); len(problems) > 0 {
		return highlander.SystemConfig{}, &ValidationError{Problems: problems}
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	current := s.Get(ctx)
	distance := p.Apply(current.Distance)
	if distance.GoalRadiusMin >= distance.GoalRadiusMax {
		return highlander.SystemConfig{}, &ValidationError{
			Problems: []string{"goalRadiusMin must be less than goalRadiusMax"},
		}
	}

	next := highlander.SystemConfig{
		Distance: distance,
		Metadata: highlander.ConfigMetadata{
			UpdatedAt: s.now(),
			UpdatedBy: updatedBy,
			Version:   current.Metadata.Version + 1,
		},
	}
	if err := s.save(ctx, next); err != nil {
		return highlander.SystemConfig{}, err
	}

	s.remember(next)
	s.writeCache(ctx, next)

	msg, _ := json.Marshal(updateMessage{Type: eventUpdated, Config: next})
	if err := s.rdb.Publish(ctx, Channel, msg).Err(); err != nil {
		s.logger.Error("publishing config update", "error", err)
	}

	s.logger.Info("distance config updated", "version", next.Metadata.Version, "by", updatedBy)
	return next, nil
}

func (s *Service) save(ctx context.Context, cfg highlander.SystemConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	at := cfg.Metadata.UpdatedAt.Format("2006-01-02T15:04:05.000Z")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO system_config (type, version, data, updated_at) VALUES (?, ?, jsonb(?), ?)
		 ON CONFLICT(type) DO UPDATE SET version = excluded.version, data = excluded.data, updated_at = excluded.updated_at`,
		ConfigType, cfg.Metadata.Version, string(data), at,
	); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO config_history (config_type, changed_by, changed_at, data) VALUES (?, ?, ?, jsonb(?))`,
		ConfigType, cfg.Metadata.UpdatedBy, at, string(data),
	); err != nil {
		return fmt.Errorf("recording config history: %w", err)
	}
	return tx.Commit()
}

// History returns saved configs newest first, plus the total count.
func (s *Service) History(ctx context.Context, limit, offset int) ([]highlander.SystemConfig, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM config_history WHERE config_type = ?`, ConfigType,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting config history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT json(data) FROM config_history WHERE config_type = ?
		 ORDER BY changed_at DESC, id DESC LIMIT ? OFFSET ?`,
		ConfigType, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing config history: %w", err)
	}
	defer rows.Close()

	history := []highlander.SystemConfig{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, 0, err
		}
		var cfg highlander.SystemConfig
		if err := json.Unmarshal([]byte(data), &cfg); err != nil {
			return nil, 0, err
		}
		history = append(history, cfg)
	}
	return history, total, rows.Err()
}

// Watch listens for updates published by any instance until ctx is done,
// refreshing the local copy and passing each new config to fn.
func (s *Service) Watch(ctx context.Context, fn func(highlander.SystemConfig)) error {
	sub := s.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribing to %s: %w", Channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg updateMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil || msg.Type != eventUpdated {
				s.logger.Warn("ignoring config message", "payload", m.Payload)
				continue
			}
			s.remember(msg.Config)
			fn(msg.Config)
		}
	}
}
