package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chat-server/internal/config"
	"chat-server/internal/domain/conversation"
	"chat-server/internal/domain/user"
	"chat-server/internal/infrastructure/auth"
	"chat-server/internal/infrastructure/crontab"
	"chat-server/internal/infrastructure/database"
	"chat-server/internal/infrastructure/database/repository/conversationrepo"
	"chat-server/internal/infrastructure/database/repository/userrepo"
	"chat-server/internal/infrastructure/inference"
	"chat-server/internal/infrastructure/logger"
	"chat-server/internal/infrastructure/observability"
	"chat-server/internal/interfaces/httpserver"
	"chat-server/internal/interfaces/httpserver/handlers/conversationhandler"
	"chat-server/internal/interfaces/httpserver/handlers/webhookhandler"
)

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	dbCfg := database.Config{
		DatabaseURL: cfg.DatabaseURL,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxLifetime: cfg.DBConnLifetime,
		LogLevel:    gormlogger.Warn,
	}

	// The store is dialed on first use, not at startup. Migrations piggyback
	// on the first successful dial so a temporarily unreachable database does
	// not keep the server from coming up.
	cache := database.NewConnectionCacheWithDialer(func() (*gorm.DB, error) {
		db, err := database.Connect(dbCfg)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(ctx, db, log); err != nil {
			return nil, err
		}
		return db, nil
	}, log)

	conversationRepo := conversationrepo.NewConversationGormRepository(cache)
	userRepo := userrepo.NewUserGormRepository(cache)

	gateway := inference.NewOpenAIGateway(cfg, log)
	conversationService := conversation.NewConversationService(conversationRepo, gateway)
	syncService := user.NewSyncService(userRepo, log)

	var authValidator *auth.Validator
	if cfg.AuthEnabled {
		authValidator, err = auth.NewValidator(ctx, cfg.AuthJWKSURL, cfg.AuthIssuer, cfg.AuthAudience, cfg.JWKSRefresh, cfg.ClockSkew, log)
		if err != nil {
			log.Fatal().Err(err).Msg("initialize auth validator")
		}
	}

	conversationHandler := conversationhandler.NewConversationHandler(conversationService, log)
	webhookHandler, err := webhookhandler.NewWebhookHandler(cfg.WebhookSigningSecret, syncService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize webhook handler")
	}

	httpServer := httpserver.New(cfg, log, conversationHandler, webhookHandler, authValidator)
	maintenance := crontab.NewCrontab(cfg, conversationRepo, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Run(gctx)
	})
	g.Go(func() error {
		return maintenance.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
