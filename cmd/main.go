package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/edumint/edumint-backend/internal/audio"
	"github.com/edumint/edumint-backend/internal/blob"
	"github.com/edumint/edumint-backend/internal/cache"
	"github.com/edumint/edumint-backend/internal/config"
	"github.com/edumint/edumint-backend/internal/curriculum"
	"github.com/edumint/edumint-backend/internal/db"
	"github.com/edumint/edumint-backend/internal/generators"
	"github.com/edumint/edumint-backend/internal/handlers"
	"github.com/edumint/edumint-backend/internal/llm"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/repos"
	"github.com/edumint/edumint-backend/internal/server"
	"github.com/edumint/edumint-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using process environment")
	}

	// Config
	cfg := config.Load(log)

	// Postgres
	postgresService, err := db.NewPostgresService(cfg, log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	packageRepo := repos.NewPackageRepo(thePG, repos.RetryPolicy{
		MaxAttempts: cfg.StoreMaxRetries,
		Delay:       cfg.StoreRetryDelay,
	}, log)

	// LLM client
	llmClient, err := llm.NewClient(cfg, log)
	if err != nil {
		log.Error("Could not init LLM client", "error", err)
		os.Exit(1)
	}

	// Audio pipeline
	encoder := audio.NewEncoder(audio.EncoderOptions{
		FFmpegPath: cfg.FFmpegPath,
		WorkDir:    cfg.AudioWorkDir,
		Bitrate:    cfg.AudioMP3Bitrate,
	}, log)
	if err := encoder.AssertReady(context.Background()); err != nil {
		log.Warn("ffmpeg not ready, audio will fall back to WAV", "error", err)
	}

	var audioStore blob.AudioStore
	if cfg.AudioBucketName != "" {
		audioStore, err = blob.NewAudioStore(context.Background(), cfg, log)
		if err != nil {
			log.Error("Could not init audio blob store", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("No audio bucket configured, TTS rendering unavailable")
	}

	// Cache (optional)
	pkgCache := cache.NewPackageCache(cfg, log)
	if err := pkgCache.Ping(context.Background()); err != nil {
		log.Warn("Redis unreachable, continuing without cache", "error", err)
		pkgCache = nil
	}

	// Curriculum (optional; generate-by-subskill-id needs it)
	var curriculumService curriculum.Service
	if cfg.CurriculumCSVPath != "" {
		curriculumService, err = curriculum.NewService(cfg.CurriculumCSVPath, log)
		if err != nil {
			log.Error("Could not load curriculum", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("No curriculum CSV configured, subskill_id lookups disabled")
	}

	// Generators
	log.Info("Setting up generators from main...")
	mcGen := generators.NewMasterContextGenerator(llmClient, log)
	gens := []generators.Generator{
		generators.NewReadingGenerator(llmClient, log),
		generators.NewVisualGenerator(llmClient, cfg.GeminiCodeModel, log),
		generators.NewAudioGenerator(llmClient, encoder, audioStore, cfg, log),
		generators.NewPracticeGenerator(llmClient, log),
	}

	// Services
	log.Info("Setting up services from main...")
	contentService := services.NewContentService(mcGen, gens, packageRepo, audioStore, pkgCache, cfg, log)
	revisionService := services.NewRevisionService(gens, packageRepo, audioStore, pkgCache, log)
	reviewService := services.NewReviewService(packageRepo, pkgCache, log)

	// Handlers
	log.Info("Setting up handlers from main...")
	contentHandler := handlers.NewContentHandler(contentService, curriculumService)
	reviewHandler := handlers.NewReviewHandler(reviewService, revisionService)
	curriculumHandler := handlers.NewCurriculumHandler(curriculumService)
	healthHandler := handlers.NewHealthHandler(thePG, audioStore, cfg)

	// Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.RouterConfig{
		ContentHandler:    contentHandler,
		ReviewHandler:     reviewHandler,
		CurriculumHandler: curriculumHandler,
		HealthHandler:     healthHandler,
	})

	fmt.Printf("Server listening on :%s\n", cfg.HTTPPort)
	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		log.Error("Server failed", "error", err)
	}
}
