package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":3001"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/highlander.db"`
	RedisURL string     `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	OSRMURL       string        `env:"OSRM_URL" envDefault:"http://localhost:5000"`
	OSRMTimeout   time.Duration `env:"OSRM_TIMEOUT" envDefault:"5s"`
	RouteCacheTTL time.Duration `env:"ROUTE_CACHE_TTL" envDefault:"1h"`

	JWT        JWT   `envPrefix:"JWT_"`
	BcryptCost int   `env:"BCRYPT_COST" envDefault:"12"`
	Admin      Admin `envPrefix:"ADMIN_"`

	Game     Game
	Distance Distance `envPrefix:"DEFAULT_"`
}

type JWT struct {
	AccessSecret  string        `env:"ACCESS_SECRET" envDefault:"dev-access-secret-change-in-prod"`
	RefreshSecret string        `env:"REFRESH_SECRET" envDefault:"dev-refresh-secret-change-in-prod"`
	AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
}

// Admin seeds an administrator account on startup when Email is set.
type Admin struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
	Username string `env:"USERNAME" envDefault:"admin"`
}

type Game struct {
	CountdownSeconds      int     `env:"COUNTDOWN_SECONDS" envDefault:"3"`
	FallbackLat           float64 `env:"FALLBACK_LAT" envDefault:"32.0853"`
	FallbackLng           float64 `env:"FALLBACK_LNG" envDefault:"34.7818"`
	AllowFallbackPosition bool    `env:"ALLOW_FALLBACK_POSITION" envDefault:"true"`
}

type Distance struct {
	GoalRadiusMin      float64 `env:"GOAL_RADIUS_MIN" envDefault:"1000"`
	GoalRadiusMax      float64 `env:"GOAL_RADIUS_MAX" envDefault:"2000"`
	ProximityNear      float64 `env:"PROXIMITY_NEAR" envDefault:"100"`
	ProximityVeryClose float64 `env:"PROXIMITY_VERY_CLOSE" envDefault:"50"`
	ProximityReached   float64 `env:"PROXIMITY_REACHED" envDefault:"30"`
	ProximityThreshold float64 `env:"PROXIMITY_THRESHOLD" envDefault:"30"`
	MaxPlayers         int     `env:"MAX_PLAYERS" envDefault:"10"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.Game.CountdownSeconds < 0 {
		return nil, fmt.Errorf("COUNTDOWN_SECONDS must not be negative")
	}
	return &cfg, nil
}
