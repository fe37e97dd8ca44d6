package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"match-connect/internal/api"
	"match-connect/internal/database"
	"match-connect/internal/metrics"
	"match-connect/pkg/config"
	"match-connect/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to the server config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.NewLogger("error", "").Fatal("Failed to load config: %v", err)
	}
	log := logger.NewFromConfig(cfg.Logging).WithComponent("server")

	if err := cfg.ValidateServer(); err != nil {
		log.Fatal("Invalid server configuration: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunServerMigrations(db); err != nil {
		log.Fatal("Failed to run migrations: %v", err)
	}

	registry, m := metrics.NewRegistry()
	services := api.NewServices(db, log, cfg, registry, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := services.Start(ctx); err != nil {
		log.Fatal("Failed to start services: %v", err)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	stopLimiter := api.SetupRoutes(router, services)
	defer stopLimiter()

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Starting marketplace server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}
	services.Stop()
	log.Info("Server exited")
}
