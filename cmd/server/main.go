package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/amongirl/internal/amongirl"
	"github.com/playperu/amongirl/internal/config"
	"github.com/playperu/amongirl/internal/database"
	"github.com/playperu/amongirl/internal/handler/health"
	"github.com/playperu/amongirl/internal/migrations"
	"github.com/playperu/amongirl/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	catalog := amongirl.DefaultCatalog()
	if cfg.TaskCatalog != "" {
		if catalog, err = amongirl.LoadCatalog(cfg.TaskCatalog); err != nil {
			return fmt.Errorf("loading task catalog: %w", err)
		}
		logger.Info("loaded task catalog", "path", cfg.TaskCatalog)
	}

	// --- SQLite ---
	db, schema, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to sqlite", "path", cfg.DBPath, "schema_version", schema.To)
	if schema.Applied() {
		logger.Info("applied migrations", "from", schema.From, "to", schema.To)
	}

	checks := map[string]health.Checker{"sqlite": health.CheckerFunc(db.PingContext)}
	g, gctx := errgroup.WithContext(ctx)

	// --- Realtime ---
	var broker server.Broker = server.NewMemoryBroker()
	if cfg.RedisURL != "" {
		rdb, err := openRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("configuring redis: %w", err)
		}
		defer rdb.Close()
		if err := pingRedis(ctx, rdb); err != nil {
			logger.Warn("redis unreachable, relay will retry", "error", err)
		} else {
			logger.Info("connected to redis")
		}

		rb := server.NewRedisBroker(rdb, logger, cfg.RealtimeRetries, cfg.RealtimeRetryDelay)
		g.Go(func() error { return rb.Run(gctx) })
		broker = rb
		checks["redis"] = health.CheckerFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	store := server.NewDocStore(db, catalog)
	deps := server.Deps{
		Store: store,
		Feed: server.NewFeed(broker, server.Collections{
			Players: cfg.PlayersCollection,
			Tasks:   cfg.TasksCollection,
			Events:  cfg.EventsCollection,
		}, logger),
		Identity:        server.NewIdentity(store, cfg),
		PublicURL:       cfg.PublicURL,
		OriginPatterns:  originPatterns(cfg.PublicURL),
		MeetingCooldown: cfg.MeetingCooldown,
		SPADir:          cfg.SPADir,
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, deps, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	})

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// openDB opens the database and brings the schema up to date.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, migrations.Result, error) {
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, migrations.Result{}, fmt.Errorf("connecting to sqlite: %w", err)
	}
	res, err := migrations.Run(ctx, db)
	if err != nil {
		db.Close()
		return nil, res, fmt.Errorf("running migrations: %w", err)
	}
	return db, res, nil
}

// openRedis builds the client without dialing. The relay owns
// reconnection, so an unreachable server is not fatal here.
func openRedis(rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func pingRedis(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}

// originPatterns allows websocket upgrades from the public host only.
func originPatterns(publicURL string) []string {
	u, err := url.Parse(publicURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
