package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/face-check/internal/config"
	"github.com/example/face-check/internal/embedding"
	"github.com/example/face-check/internal/embedding/deepface"
	"github.com/example/face-check/internal/grpcclient"
	"github.com/example/face-check/internal/logging"
	"github.com/example/face-check/internal/repository"
	"github.com/example/face-check/internal/transient"
	"github.com/example/face-check/internal/usecase"
)

// app holds everything a command needs, opened once at process start.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	temp   *transient.Dir
	faces  *usecase.FaceUseCase

	store *repository.Store
	redis *redis.Client
	conn  *grpc.ClientConn
}

// openApp loads configuration and wires the application. Interactive
// commands get a console logger so log lines do not drown their output.
func openApp(ctx context.Context, interactive bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	newLogger := logging.NewLogger
	if interactive {
		newLogger = logging.NewConsoleLogger
	}
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	db, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	a.store = repository.NewStore(db, logger)
	if err := a.store.AutoMigrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	var cache usecase.Cache = usecase.NopCache{}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		cache = usecase.NewRedisCache(a.redis)
	}

	provider, err := a.dialProvider(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.temp = transient.NewDir(cfg.TempDir)
	if err := os.MkdirAll(a.temp.Path(), 0o700); err != nil {
		a.Close()
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	a.faces = usecase.NewFaceUseCase(a.store, cache, provider, a.temp, logger)
	return a, nil
}

func (a *app) dialProvider(ctx context.Context) (embedding.Provider, error) {
	switch a.cfg.Embedding.Transport {
	case config.TransportGRPC:
		provider, conn, err := grpcclient.DialEmbeddingService(ctx, a.cfg.Embedding.GRPCAddr, a.cfg.Embedding.Timeout, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to embedding service: %w", err)
		}
		a.conn = conn
		return provider, nil
	default:
		return deepface.NewClient(a.cfg.Embedding.URL, a.cfg.Embedding.Timeout, a.logger), nil
	}
}

// Close releases the store, the cache and the provider connection.
func (a *app) Close() {
	var errs []error
	if a.conn != nil {
		errs = append(errs, a.conn.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown cleanup failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
