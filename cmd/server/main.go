package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/israelgr/High-lander-task/internal/auth"
	"github.com/israelgr/High-lander-task/internal/config"
	"github.com/israelgr/High-lander-task/internal/database"
	"github.com/israelgr/High-lander-task/internal/game"
	"github.com/israelgr/High-lander-task/internal/goal"
	"github.com/israelgr/High-lander-task/internal/handler/health"
	"github.com/israelgr/High-lander-task/internal/highlander"
	"github.com/israelgr/High-lander-task/internal/migrations"
	"github.com/israelgr/High-lander-task/internal/player"
	"github.com/israelgr/High-lander-task/internal/presence"
	"github.com/israelgr/High-lander-task/internal/realtime"
	"github.com/israelgr/High-lander-task/internal/routing"
	"github.com/israelgr/High-lander-task/internal/server"
	"github.com/israelgr/High-lander-task/internal/tuning"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	// A missing .env is fine; the environment alone is enough.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	// --- Redis ---
	rdb, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()
	logger.Info("connected to redis")

	// --- Domain ---
	router := routing.NewClient(logger, rdb, cfg.OSRMURL, cfg.OSRMTimeout, cfg.RouteCacheTTL)
	games := game.NewStore(db, goal.NewGenerator(logger, router))
	players := player.NewStore(db)
	positions := presence.New(rdb)
	tuner := tuning.NewService(logger, db, rdb, highlander.DistanceConfig{
		GoalRadiusMin: cfg.Distance.GoalRadiusMin,
		GoalRadiusMax: cfg.Distance.GoalRadiusMax,
		ProximityThresholds: highlander.ProximityThresholds{
			Near:      cfg.Distance.ProximityNear,
			VeryClose: cfg.Distance.ProximityVeryClose,
			Reached:   cfg.Distance.ProximityReached,
		},
		DefaultProximityThreshold: cfg.Distance.ProximityThreshold,
		DefaultMaxPlayers:         cfg.Distance.MaxPlayers,
	})
	accounts := auth.NewService(logger, db, players, auth.Options{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		BcryptCost:    cfg.BcryptCost,
	})

	if cfg.Admin.Email != "" {
		if err := accounts.SeedAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Username); err != nil {
			return fmt.Errorf("seeding admin: %w", err)
		}
	}

	gateway := realtime.New(logger, realtime.Deps{
		Sessions: games,
		Presence: positions,
		Players:  players,
		Verifier: accounts,
		Tuning:   tuner,
		Router:   router,
	}, realtime.Options{
		CountdownSeconds: cfg.Game.CountdownSeconds,
		Fallback:         highlander.Coordinates{Latitude: cfg.Game.FallbackLat, Longitude: cfg.Game.FallbackLng},
		AllowFallback:    cfg.Game.AllowFallbackPosition,
	})

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Accounts: accounts,
		Players:  players,
		Games:    games,
		Tuning:   tuner,
		Router:   router,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, map[string]health.Checker{
			"sqlite": health.SQL(db),
			"redis":  health.Redis(rdb),
			"osrm":   router,
		}).Routes())
		r.Handle("/ws", gateway)
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("watching config updates", "channel", tuning.Channel)
		return gateway.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return errors.Join(
			gateway.Shutdown(sctx),
			srv.Shutdown(sctx),
		)
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
