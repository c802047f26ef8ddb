package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	app "github.com/kode4food/flume"
	"github.com/kode4food/flume/internal/archive"
	"github.com/kode4food/flume/internal/config"
	"github.com/kode4food/flume/internal/engine"
	"github.com/kode4food/flume/internal/loader"
	"github.com/kode4food/flume/internal/registry"
	"github.com/kode4food/flume/internal/server"
	"github.com/kode4food/flume/internal/store"
	"github.com/kode4food/flume/pkg/log"
)

type flume struct {
	cfg         *config.Config
	redis       *redis.Client
	registry    *registry.Registry
	store       *store.Store
	loader      *loader.Loader
	archiver    *archive.BlobArchiver
	hub         *engine.Hub
	coordinator *engine.Coordinator
	apiServer   *server.Server
	httpServer  *http.Server
	quit        chan os.Signal
}

var (
	ErrConnectRedis   = errors.New("failed to connect to redis")
	ErrCreateRegistry = errors.New("failed to create workflow registry")
	ErrOpenArchive    = errors.New("failed to open archive bucket")
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &flume{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *flume) run() error {
	if err := s.initializeStores(); err != nil {
		return err
	}

	s.initializeEngine()
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *flume) setupLogging() {
	level, ok := logLevels[s.cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Flume Engine starting",
		slog.String("log_level", s.cfg.LogLevel),
		slog.String("redis_addr", s.cfg.Redis.Addr),
		slog.Int("redis_db", s.cfg.Redis.DB),
		slog.String("script_root", s.cfg.ScriptRoot),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *flume) initializeStores() error {
	ctx := context.Background()

	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectRedis, err)
	}

	reg, err := registry.New(ctx, s.redis, s.cfg.Redis.Prefix)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateRegistry, err)
	}
	s.registry = reg
	s.store = store.New(s.redis, s.cfg.Redis.Prefix)

	if s.cfg.ArchiveBucketURL != "" {
		arch, err := archive.New(
			ctx, s.cfg.ArchiveBucketURL, s.cfg.ArchivePrefix,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpenArchive, err)
		}
		s.archiver = arch
	}

	return nil
}

func (s *flume) initializeEngine() {
	s.loader = loader.New(
		s.cfg.ScriptRoot, s.cfg.LoaderCacheSize, s.cfg.StepTimeout,
	)
	s.hub = engine.NewHub()

	var archiver engine.Archiver
	if s.archiver != nil {
		archiver = s.archiver
	}
	s.coordinator = engine.New(
		s.registry, s.store, s.loader, s.hub, archiver,
	)
}

func (s *flume) startServer() {
	s.apiServer = server.NewServer(
		s.coordinator, s.registry, s.hub,
		server.PingerFunc(func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		}),
	)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *flume) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()

	if err := s.coordinator.Stop(s.cfg.ShutdownTimeout); err != nil {
		slog.Error("Engine shutdown failed", log.Error(err))
	}
	s.hub.Close()

	if s.archiver != nil {
		if err := s.archiver.Close(); err != nil {
			slog.Error("Archive close failed", log.Error(err))
		}
	}

	if err := s.redis.Close(); err != nil {
		slog.Error("Redis close failed", log.Error(err))
	}

	slog.Info("Server exited")
}
