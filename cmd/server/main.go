package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/jakekausler/campaign-manager/internal/api"
	"github.com/jakekausler/campaign-manager/internal/branching"
	"github.com/jakekausler/campaign-manager/internal/config"
	"github.com/jakekausler/campaign-manager/internal/db"
	"github.com/jakekausler/campaign-manager/internal/export"
	"github.com/jakekausler/campaign-manager/internal/merge"
	"github.com/jakekausler/campaign-manager/internal/middleware"
	"github.com/jakekausler/campaign-manager/internal/repository"
	"github.com/jakekausler/campaign-manager/internal/timeline"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialise logger: %v", err)
	}
	defer logger.Sync()

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	branchRepo := repository.NewBranchRepository(conn)
	versionRepo := repository.NewVersionRepository(conn)
	entityRepo := repository.NewEntityRepository(conn)

	registry := branching.NewRegistry(branchRepo, branching.WithMaxDepth(cfg.Timeline.MaxAncestryDepth))
	resolver := timeline.NewService(registry, versionRepo, timeline.WithClipAtFork(cfg.Timeline.ClipAtFork))
	merger := merge.NewService(registry, resolver)
	exporter := export.NewService(versionRepo)

	coreHandler := api.NewHTTPHandler(registry, resolver, merger, entityRepo)
	exportHandler := export.NewHTTPHandler(exporter)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	logging := middleware.LoggingMiddleware(logger)
	loading := middleware.DataLoaderMiddleware(branchRepo)

	mux := http.NewServeMux()
	mux.Handle("/api/", logging(loading(middleware.ActorMiddleware(coreHandler))))
	mux.Handle("/export/history", logging(exportHandler))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
