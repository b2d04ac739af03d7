package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/payload-cache/internal/config"
	"github.com/Sternrassler/payload-cache/internal/proxy"
	"github.com/Sternrassler/payload-cache/pkg/cache"
	"github.com/Sternrassler/payload-cache/pkg/logging"
	"github.com/Sternrassler/payload-cache/pkg/metrics"
	"github.com/Sternrassler/payload-cache/pkg/payload"
)

const shutdownTimeout = 15 * time.Second

// set by the release build
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Version = version
	logging.Setup(logCfg)
	metrics.SetBuildInfo(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Cache proxy failed")
	}
}

type app struct {
	manager *cache.Manager
	handler http.Handler
}

func newApp(cfg config.Config, redisClient redis.UniversalClient) (*app, error) {
	upstream, err := payload.New(cfg.PayloadConfig(), logging.NewLogger("payload"))
	if err != nil {
		return nil, fmt.Errorf("payload client: %w", err)
	}

	manager := cache.NewManager(redisClient, upstream, cfg.CacheConfig(), logging.NewLogger("cache"))
	handler := proxy.NewHandler(manager, redisClient, logging.NewLogger("proxy")).Routes()

	return &app{manager: manager, handler: handler}, nil
}

func run(ctx context.Context, cfg config.Config) error {
	opts, err := cfg.RedisOptions()
	if err != nil {
		return fmt.Errorf("redis options: %w", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		// requests fall back to Payload until Redis is reachable
		log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis not reachable at startup")
	} else {
		log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}
	cancel()

	a, err := newApp(cfg, redisClient)
	if err != nil {
		return err
	}

	var warming *cache.WarmingService
	if cfg.Warming.Enabled {
		warming = a.manager.StartWarmingService(ctx, cfg.WarmingConfig())
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", server.Addr).
			Str("upstream", cfg.Upstream.Endpoint).
			Str("version", version).
			Msg("Starting cache proxy")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if warming != nil {
			warming.Stop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
		}
		if err := a.manager.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Background refreshes still running at shutdown")
		}
		return nil
	})

	return g.Wait()
}
