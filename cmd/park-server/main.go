// Package main is the entry point for the parkpilot server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/infra/ai"
	"github.com/parkpilot/server/internal/infra/cache"
	"github.com/parkpilot/server/internal/infra/storage"
	"github.com/parkpilot/server/internal/infra/stream"
	"github.com/parkpilot/server/internal/insight"
	"github.com/parkpilot/server/internal/lot"
	"github.com/parkpilot/server/internal/network"
	"github.com/parkpilot/server/internal/occupancy"
	"github.com/parkpilot/server/internal/platform/config"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/internal/platform/metrics"
	"github.com/parkpilot/server/internal/platform/optimization"
	"github.com/parkpilot/server/internal/voice"
)

const (
	eventPollInterval = 250 * time.Millisecond
	tuningInterval    = time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.NewLogger().Warn("could not load .env file", "error", err)
	}

	cfg := config.Load()
	appLogger := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat == "json")
	if err := cfg.Validate(); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server stopped")
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tuning := optimization.ForName(cfg.Server.Profile)
	gin.SetMode(cfg.Server.GinMode)

	l, err := buildLot(cfg.Simulation)
	if err != nil {
		return err
	}

	// Persistence
	var (
		persisters   []events.EventPersister
		activityRepo storage.ActivityRepository
		snapRepo     storage.SnapshotRepository
	)
	if path := cfg.Storage.SQLitePath; path != "" {
		appLogger.Info("initializing SQLite database", "path", path)
		db, err := storage.InitSQLite(path, storage.PoolOptions{
			MaxOpenConns: tuning.DBMaxOpenConns,
			MaxIdleConns: tuning.DBMaxIdleConns,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		repo := storage.NewSQLiteActivityRepository(db)
		activityRepo = repo
		snapRepo = storage.NewSQLiteSnapshotRepository(db)
		persisters = append(persisters, storage.NewActivityPersister(repo, l.ID))
	}

	if cfg.Kafka.Enabled {
		pc := stream.DefaultProducerConfig()
		pc.Brokers = cfg.Kafka.Brokers
		pc.Topic = cfg.Kafka.Topic
		pc.ClientID = cfg.Kafka.ClientID
		publisher, err := stream.NewActivityPublisher(pc, l.ID, appLogger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		persisters = append(persisters, publisher)
	}

	eventLog := events.NewBufferedEventLog(tuning.EventChannelBuffer, persisters...)
	eventLog.OnPersistError(func(e events.LotEvent, err error) {
		appLogger.Warn("activity write failed", "event", e.ID, "type", e.Type, "error", err)
	})
	defer eventLog.Close()

	// Engine
	sim := cfg.Simulation
	vehicle := parking.NewVehicle(sim.VehicleID, sim.StartX, sim.StartY, sim.StartHeading)
	eng := engine.NewEngine(l, vehicle, occupancy.NewClassifier(cfg.Classifier), eventLog, appLogger, engine.Options{
		Dynamics: engine.Dynamics{
			Acceleration: sim.Acceleration,
			Braking:      sim.Braking,
			Friction:     sim.Friction,
			MaxSpeed:     sim.MaxSpeed,
			MaxReverse:   sim.MaxReverse,
			TurnRate:     sim.TurnRate,
		},
		Guidance:         cfg.Guidance,
		PhysicsInterval:  sim.PhysicsInterval,
		GuidanceInterval: sim.GuidanceInterval,
		ClassifySlots:    tuning.ClassifyQueue,
	})

	if snapRepo != nil {
		restoreLot(ctx, snapRepo, eng, appLogger)
		eng.AddLotObserver(storage.NewSnapshotWriter(snapRepo, appLogger))
	}

	var lotCache *cache.LotCache
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cache.Config{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: tuning.RedisPoolSize,
		})
		if err != nil {
			// The mirror is optional.
			appLogger.Warn("redis unavailable, lot cache disabled", "error", err)
		} else {
			defer client.Close()
			lotCache = cache.NewLotCache(client, cfg.Redis.KeyPrefix+":", cfg.Redis.SnapshotTTL, appLogger)
			lotCache.OnLotUpdate(eng.Snapshot())
			eng.AddLotObserver(lotCache)
		}
	}

	// Websocket hub
	hub := network.NewHub(eng, tuning, appLogger)
	eng.AddLotObserver(hub)
	eng.AddVehicleObserver(hub)
	eng.AddGuidanceObserver(hub)

	// Generative collaborators
	providerCfg := ai.ProviderConfig{Timeout: cfg.AI.RequestTimeout}
	budgetGate := ai.NewBudgetGate(cfg.AI.DailyBudgetUSD, cfg.AI.MonthlyBudgetUSD)
	llm := buildLLM(cfg.AI, providerCfg, budgetGate)
	appLogger.Info("insight provider configured", "provider", llm.Name(), "available", llm.IsAvailable())

	var announcer *voice.Announcer
	if cfg.AI.SpeechEnabled {
		sc := providerCfg
		sc.APIKey = cfg.AI.OpenAIKey
		sc.BaseURL = cfg.AI.OpenAIBaseURL
		speech := ai.NewOpenAISpeechProvider(sc, cfg.AI.SpeechVoice)
		announcer = voice.NewAnnouncer(speech, hub, cfg.AI.SpeechTimeout, appLogger)
		defer announcer.Close()
		eng.SetAnnouncer(announcer)
	}

	narrator := insight.NewNarrator(llm, insight.NewPerceiver(eng, eventLog, appLogger), cfg.AI.InsightCacheTTL, appLogger)

	// HTTP
	var lotReader network.LotReader
	if lotCache != nil {
		lotReader = lotCache
	}
	api := network.NewAPI(eng, narrator, lotReader, tuning.ClassifyQueue, cfg.Server.MaxUploadSize, appLogger)
	limiter := network.NewRateLimiter(tuning.MaxMessagesPerSecond*60, time.Minute)
	if cfg.Auth.JWTSecret == "" {
		appLogger.Warn("JWT_SECRET is empty, admin routes are open")
	}
	router := network.NewRouter(network.RouterConfig{
		BasePath:    cfg.GetAPIBasePath(),
		CORSOrigins: cfg.Server.CORSOrigins,
		JWTSecret:   cfg.Auth.JWTSecret,
		RateLimit:   limiter,
		API:         api,
		Activity:    network.NewActivityHandler(l.ID, eventLog, activityRepo, appLogger),
		Hub:         hub,
		Logger:      appLogger,
	})
	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		limiter.Cleanup(ctx.Done())
		return nil
	})
	hub.StartEventPoller(ctx, eventLog, eventPollInterval)
	g.Go(func() error {
		optimization.Watch(ctx, tuningInterval, *tuning, metrics.Get().Snapshot, func(rec *optimization.Recommendations, suggested *optimization.Config) {
			appLogger.Warn("tuning recommendations",
				"profile", cfg.Server.Profile,
				"notes", rec.Notes,
				"event_buffer", suggested.EventChannelBuffer,
				"broadcast_buffer", suggested.BroadcastChannelBuffer,
				"client_send_buffer", suggested.ClientSendBuffer,
				"db_max_open", suggested.DBMaxOpenConns,
				"classify_queue", suggested.ClassifyQueue,
			)
		})
		return nil
	})
	if cfg.AI.InsightInterval > 0 {
		g.Go(func() error {
			narrator.Run(ctx, cfg.AI.InsightInterval, hub.BroadcastInsight)
			return nil
		})
	}
	g.Go(func() error {
		appLogger.Info("HTTP API & WS server listening", "addr", srv.Addr, "lot", l.ID, "spots", l.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		appLogger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildLot(sim config.SimulationConfig) (*lot.Lot, error) {
	spots := lot.SeedLayout()
	if sim.Layout == "grid" {
		var err error
		spots, err = lot.GenerateGrid(lot.GridOptions{
			Rows:            sim.GridRows,
			Cols:            sim.GridCols,
			MarginX:         8,
			MarginY:         10,
			AccessibleEvery: 8,
			EVEvery:         5,
		})
		if err != nil {
			return nil, err
		}
	}
	return lot.New(sim.LotID, spots)
}

func buildLLM(cfg config.AIConfig, base ai.ProviderConfig, gate *ai.BudgetGate) ai.LLMProvider {
	if cfg.InsightProvider == "anthropic" {
		pc := base
		pc.APIKey = cfg.AnthropicKey
		pc.BaseURL = cfg.AnthropicBaseURL
		pc.Model = cfg.AnthropicModel
		return ai.NewAnthropicProvider(pc, gate)
	}
	pc := base
	pc.APIKey = cfg.OpenAIKey
	pc.BaseURL = cfg.OpenAIBaseURL
	pc.Model = cfg.OpenAIModel
	return ai.NewOpenAIProvider(pc, gate)
}

// restoreLot applies the statuses persisted by a previous run.
func restoreLot(ctx context.Context, repo storage.SnapshotRepository, eng *engine.Engine, log *logger.Logger) {
	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	statuses, err := repo.LoadLot(loadCtx, eng.LotID())
	if err != nil {
		log.Warn("could not load lot snapshot, starting fresh", "error", err)
		return
	}
	if len(statuses) == 0 {
		log.Info("no lot snapshot found, starting fresh")
		return
	}
	n := eng.RestoreStatuses(statuses)
	log.Info("restored spot statuses from SQLite", "spots", n)
}
