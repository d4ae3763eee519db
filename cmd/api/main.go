package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/api/handlers"
	rediscache "github.com/family-profiler/backend/internal/cache/redis"
	"github.com/family-profiler/backend/internal/graph/neo4j"
	"github.com/family-profiler/backend/internal/ingestion"
	"github.com/family-profiler/backend/internal/insights"
	"github.com/family-profiler/backend/internal/llm"
	"github.com/family-profiler/backend/internal/metrics"
	"github.com/family-profiler/backend/internal/middleware/ratelimit"
	"github.com/family-profiler/backend/internal/middleware/security"
	"github.com/family-profiler/backend/internal/middleware/validation"
	"github.com/family-profiler/backend/internal/pipeline"
	"github.com/family-profiler/backend/internal/storage/sqlite"
	"github.com/family-profiler/backend/pkg/config"
	appLogger "github.com/family-profiler/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting family profiler API server")

	decimal.MarshalJSONWithoutQuotes = true

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		appLogger.Fatal("Failed to create data directory", zap.Error(err))
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	components := map[string]bool{
		"narrative":       false,
		"narrative_cache": false,
		"graph":           false,
	}

	orchestrator := pipeline.NewOrchestrator(cfg, pipeline.WithObserver(metrics.PipelineObserver{}))

	opts := []ingestion.Option{
		ingestion.WithTagExtractor(insights.NewKeywordTagExtractor()),
	}
	if cfg.LLM.TimeoutSec > 0 {
		opts = append(opts, ingestion.WithNarrativeTimeout(time.Duration(cfg.LLM.TimeoutSec)*time.Second))
	}

	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		opts = append(opts, ingestion.WithNarrator(llm.NewClient(cfg.LLM)))
		components["narrative"] = true
	} else {
		appLogger.Warn("Narrative generation disabled, profiles will carry the fallback narrative")
	}

	if cfg.Redis.Enabled {
		cache, err := rediscache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.NarrativeTTL)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Narrative cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer cache.Close()
			opts = append(opts, ingestion.WithNarrativeCache(cache))
			components["narrative_cache"] = true
		}
	}

	if cfg.Neo4j.Enabled {
		graph, err := neo4j.NewClient(cfg.Neo4j)
		if err != nil {
			appLogger.Warn("Household graph unavailable, continuing without it", zap.Error(err))
		} else {
			defer graph.Close(context.Background())
			if err := graph.InitSchema(context.Background()); err != nil {
				appLogger.Warn("Failed to initialize graph schema", zap.Error(err))
			}
			opts = append(opts, ingestion.WithGraphSink(graph))
			components["graph"] = true
		}
	}

	processor := ingestion.NewProcessor(orchestrator, sqliteClient, opts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.RateLimit,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	uploadValidator := validation.UploadMiddleware(validation.Config{
		MaxFiles:     cfg.Upload.MaxFiles,
		MaxFileBytes: cfg.Upload.MaxFileBytes,
		AllowedExts:  cfg.Upload.AllowedExts,
		Logger:       appLogger.GetLogger(),
	})

	familyHandler := handlers.NewFamilyHandler(processor, sqliteClient, cfg.Upload.MaxFileBytes)
	statusHandler := handlers.NewStatusHandler(sqliteClient, sqliteClient, components)
	wsHandler := handlers.NewWebSocketHandler(sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/families/upload", limiter.Middleware(), uploadValidator, familyHandler.Upload)
	api.Get("/families", familyHandler.List)
	api.Get("/families/:id", familyHandler.Get)

	api.Get("/status", statusHandler.Status)
	api.Get("/health", statusHandler.Health)

	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws/narrative", websocket.New(wsHandler.HandleConnection))

	if cfg.Metrics.Enabled {
		app.Get(cfg.Metrics.Path, metrics.MetricsHandler())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr), zap.Any("components", components))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
