package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/api"
	"github.com/nidhogg/mnemo/internal/archive"
	"github.com/nidhogg/mnemo/internal/config"
	"github.com/nidhogg/mnemo/internal/embedding"
	"github.com/nidhogg/mnemo/internal/graph"
	"github.com/nidhogg/mnemo/internal/memory"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Mnemo...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/mnemo.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize embedding provider
	embCfg := embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	}
	var embedder embedding.Provider
	switch cfg.Embedding.Provider {
	case "local":
		embedder = embedding.NewLocalProvider(embCfg)
	default:
		embedder = embedding.NewAPIProvider(embCfg)
	}

	// Wrap with the Redis cache when configured
	var embCache *embedding.Cache
	if cfg.Database.Redis.URL != "" {
		ttl := time.Duration(cfg.Embedding.CacheTTLMins) * time.Minute
		c, cacheErr := embedding.NewCache(embedder, cfg.Database.Redis.URL, cfg.Embedding.Model, ttl, logger)
		if cacheErr != nil {
			logger.Warn("Redis unavailable, running without embedding cache", zap.Error(cacheErr))
		} else {
			embCache = c
			embedder = c
		}
	}

	svc := memory.NewService(embedder, logger)

	// Initialize snapshot archive
	var arch *archive.Store
	if cfg.Database.Postgres.DSN != "" {
		a, pgErr := archive.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := a.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			arch = a

			snap, loadErr := a.Load(context.Background())
			if loadErr != nil {
				logger.Warn("failed to load archived snapshot", zap.Error(loadErr))
			} else if len(snap.Items) > 0 {
				svc.Restore(snap)
			}
		}
	}

	// Initialize graph mirror
	var mirror *graph.Mirror
	if cfg.Database.Neo4j.URI != "" {
		m, gErr := graph.New(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr == nil {
			gErr = m.Ping(context.Background())
		}
		if gErr != nil {
			logger.Warn("Neo4j unavailable, running without graph mirror", zap.Error(gErr))
		} else {
			mirror = m
		}
	}

	// Maintenance loop: periodic forgetting, consolidation and snapshots
	maintCtx, stopMaint := context.WithCancel(context.Background())
	go maintain(maintCtx, svc, arch, mirror, cfg.Memory, logger)

	// Build HTTP handler
	handler := api.NewHandler(svc, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Mnemo listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Mnemo...")
	stopMaint()
	ctx := context.Background()
	srv.Shutdown(ctx)
	if arch != nil {
		// Final snapshot so nothing stored since the last tick is lost.
		if err := arch.Save(ctx, svc.Snapshot()); err != nil {
			logger.Error("final snapshot failed", zap.Error(err))
		}
		arch.Close()
	}
	if mirror != nil {
		mirror.Close(ctx)
	}
	if embCache != nil {
		embCache.Close()
	}
}

// maintain runs the periodic sweeps until the context is cancelled.
func maintain(ctx context.Context, svc *memory.Service, arch *archive.Store, mirror *graph.Mirror, cfg config.MemoryConfig, logger *zap.Logger) {
	forgetTick := time.NewTicker(cfg.ForgetEvery())
	consolidateTick := time.NewTicker(cfg.ConsolidateEvery())
	snapshotTick := time.NewTicker(cfg.SnapshotEvery())
	defer forgetTick.Stop()
	defer consolidateTick.Stop()
	defer snapshotTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-forgetTick.C:
			svc.Forget(cfg.ForgetThreshold)
		case <-consolidateTick.C:
			if _, err := svc.Consolidate(ctx); err != nil {
				logger.Warn("consolidation pass failed", zap.Error(err))
			}
		case <-snapshotTick.C:
			snap := svc.Snapshot()
			if arch != nil {
				if err := arch.Save(ctx, snap); err != nil {
					logger.Warn("snapshot save failed", zap.Error(err))
				}
			}
			if mirror != nil {
				if err := mirror.SyncAll(ctx, snap); err != nil {
					logger.Warn("graph mirror sync failed", zap.Error(err))
				}
			}
		}
	}
}
