package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/stockledger/internal/api"
	"github.com/andresuchdata/stockledger/internal/cache"
	"github.com/andresuchdata/stockledger/internal/config"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/andresuchdata/stockledger/internal/repository/memory"
	"github.com/andresuchdata/stockledger/internal/repository/postgres"
	"github.com/andresuchdata/stockledger/internal/service"
	"github.com/andresuchdata/stockledger/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()

	logger.Setup(cfg.Server.Mode)
	logger.SetLevel(cfg.Server.LogLevel)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	decimal.MarshalJSONWithoutQuotes = true

	store, closeStore := openStore(cfg)
	defer closeStore()

	inventoryCache, err := cache.NewInventoryCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("redis unavailable, continuing without cache")
		inventoryCache = cache.NewNoopInventoryCache()
	}

	services := &api.Services{
		Store:      store,
		Catalog:    service.NewCatalogService(store, inventoryCache),
		Inventory:  service.NewInventoryService(store, inventoryCache, decimal.NewFromFloat(cfg.Ledger.LowStockThreshold), time.Now),
		Production: service.NewProductionService(store, inventoryCache, time.Now),
		Reorder: service.NewReorderService(store, inventoryCache, service.MeanForecaster{}, service.ReorderOptions{
			HistoryWindow: time.Duration(cfg.Ledger.HistoryWindowDays) * 24 * time.Hour,
			Concurrency:   cfg.Ledger.AdvisorConcurrency,
		}, time.Now),
		ReorderDays:      cfg.Ledger.ReorderDays,
		ReorderThreshold: decimal.NewFromFloat(cfg.Ledger.ReorderThreshold),
		Now:              time.Now,
	}

	router := api.NewRouter(services, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Str("store", cfg.Ledger.StoreDriver).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}

// openStore returns the configured ledger store and its cleanup.
func openStore(cfg *config.Config) (repository.Store, func()) {
	if cfg.Ledger.StoreDriver == "memory" {
		logger.Log.Warn().Msg("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to apply schema")
	}
	return db, func() { db.Close() }
}
