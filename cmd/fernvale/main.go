package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/fernvale/server/internal/api"
	"github.com/fernvale/server/internal/config"
	"github.com/fernvale/server/internal/core/event"
	"github.com/fernvale/server/internal/data"
	"github.com/fernvale/server/internal/engine"
	"github.com/fernvale/server/internal/ledger"
	"github.com/fernvale/server/internal/memstore"
	"github.com/fernvale/server/internal/persist"
	"github.com/fernvale/server/internal/sched"
	"github.com/fernvale/server/internal/scripting"
	"github.com/fernvale/server/internal/spatial"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath  = flag.String("config", "config/server.toml", "path to the config file")
		inMemory = flag.Bool("memory", false, "run on the in-memory store instead of Postgres")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = config.Default()
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: one memstore serves every interface in -memory mode, the
	// Postgres repos split the same surface in the default mode.
	var (
		npcStore   engine.NpcStore
		players    engine.PlayerLocator
		objects    engine.ObjectSource
		spatialSt  spatial.Store
		locations  ledger.Store
		resolver   spatial.PositionResolver
		audit      spatial.AuditSink
		chunks     api.ChunkStore
	)
	if *inMemory {
		store := memstore.New()
		npcStore, players, objects = store, store, store
		spatialSt, locations = store, store
		resolver, audit, chunks = store, store, store
		log.Info("storage: in-memory")
	} else {
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(initCtx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()

		if err := persist.RunMigrations(initCtx, db.Pool); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}

		npcRepo := persist.NewNpcRepo(db)
		playerRepo := persist.NewPlayerRepo(db)
		npcStore = npcRepo
		players = playerRepo
		objects = persist.NewObjectRepo(db)
		spatialSt = persist.NewSpatialRepo(db)
		locations = persist.NewLocationRepo(db)
		resolver = persist.NewResolver(npcRepo, playerRepo)
		audit = persist.NewAuditRepo(db)
		chunks = persist.NewChunkRepo(db)
		log.Info("storage: postgres", zap.Int32("max_conns", cfg.Database.MaxConns))
	}

	sprites, err := data.LoadSpriteTable(cfg.Data.SpriteFile)
	if err != nil {
		return fmt.Errorf("load sprite table: %w", err)
	}
	log.Info("sprite table loaded", zap.Int("sprites", sprites.Count()))

	scripts, err := scripting.NewEngine(cfg.Scripts.Dir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer scripts.Close()

	eng := engine.New(npcStore, players, objects, sprites, scripts, tunables(cfg.Engine), sched.New(), log)
	defer eng.Stop()

	bus := event.NewBus()
	eng.BindBus(bus)

	ix, err := spatial.New(spatialSt, cfg.Spatial.ChunkWidth, cfg.Spatial.ChunkHeight, log)
	if err != nil {
		return fmt.Errorf("spatial index: %w", err)
	}
	led := ledger.New(locations, log)

	// Wake the behavior loop if persisted rows exist from a prior run.
	if _, err := eng.EnsureRunning(ctx); err != nil {
		log.Warn("engine ensure on boot failed", zap.Error(err))
	}

	srv := &api.Server{
		Engine:       eng,
		Index:        ix,
		Ledger:       led,
		Locations:    led,
		Resolver:     resolver,
		Audit:        audit,
		Chunks:       chunks,
		WorldKey:     cfg.Server.WorldKey,
		StreamPeriod: cfg.Engine.TickPeriod(),
		Log:          log,
	}
	httpServer := &http.Server{
		Addr:    cfg.API.Bind,
		Handler: srv.Routes(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.API.Bind), zap.String("world", cfg.Server.WorldKey))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func tunables(e config.EngineConfig) engine.Tunables {
	return engine.Tunables{
		TickPeriod:          e.TickPeriod(),
		IdleMin:             e.IdleMin(),
		IdleMax:             e.IdleMax(),
		RespawnIdle:         e.RespawnIdle(),
		StalenessMultiplier: e.StalenessMultiplier,
		AggroStopDistance:   e.AggroStopDistance,
		AggroDuration:       e.AggroDuration(),
		MaxLeashDistance:    e.MaxLeashDistance,
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
