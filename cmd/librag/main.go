package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"librag/internal/api"
	"librag/internal/api/handlers"
	"librag/internal/bootstrap"
	"librag/internal/ingest"
	"librag/internal/repository"
	"librag/internal/retrieval"
	"librag/internal/scoring"
	"librag/internal/selector"
	"librag/internal/service"
	"librag/pkg/auth"
	"librag/pkg/config"
	"librag/pkg/logger"

	"go.uber.org/zap"
)

// @title librag API
// @version 1.0
// @description Hierarchical retrieval over LLM-classified knowledge bases

// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and a JWT or the service token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting librag API")

	ctx := context.Background()
	core, err := bootstrap.NewCore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	defer core.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(core.DB, appLogger)
	kbRepo := repository.NewKnowledgeBaseRepository(core.DB, appLogger)

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)

	// Retrieval funnel
	cl, prompts := core.Classifier, core.Prompts
	funnel := retrieval.NewFunnel(
		selector.NewDomainSelector(core.Store, cl, prompts, appLogger),
		selector.NewCategorySelector(core.Store, cl, prompts, cfg.Selector, appLogger),
		selector.NewDocumentSelector(core.Store, cl, prompts, cfg.Selector, appLogger),
		selector.NewParagraphSelector(core.Store, cl, prompts, cfg.Selector, appLogger),
		core.Store,
		scoring.NewScorer(scoring.NewLLMRater(cl, prompts), core.Pool, cfg.Scoring, appLogger),
		appLogger,
	)

	queue := ingest.NewQueue(&cfg.Redis, cfg.Worker, appLogger)
	defer queue.Close()

	var recallCache service.RecallCache
	if core.Cache != nil {
		recallCache = core.Cache
	}
	invalidator := core.Invalidator()

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtManager, appLogger)
	kbService := service.NewKnowledgeService(kbRepo, core.Store, queue, invalidator, appLogger)
	recallService := service.NewRecallService(funnel, kbService, recallCache, appLogger)
	docService := service.NewDocumentService(core.Files, core.Tasks, core.Store, queue, kbService, invalidator, appLogger)

	// Setup router
	app := api.SetupRouter(api.Handlers{
		Auth:      handlers.NewAuthHandler(authService, appLogger),
		Knowledge: handlers.NewKnowledgeHandler(kbService, appLogger),
		Recall:    handlers.NewRecallHandler(recallService, cfg.Splitter, appLogger),
		Document:  handlers.NewDocumentHandler(docService, appLogger),
	}, jwtManager, cfg, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
