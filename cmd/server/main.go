// Package main is the entry point for the forecast engine server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/properlytic/engine/internal/api"
	"github.com/properlytic/engine/internal/cache"
	"github.com/properlytic/engine/internal/config"
	"github.com/properlytic/engine/internal/forecast"
	"github.com/properlytic/engine/internal/geocode"
	"github.com/properlytic/engine/internal/store"
)

func main() {
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting forecast engine", "port", cfg.Server.Port, "area", cfg.Data.AreaID)

	dataStore, err := store.NewSQLiteStore(cfg.Data.SQLitePath)
	if err != nil {
		logger.Error("failed to open datastore", "path", cfg.Data.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer dataStore.Close()

	cacheManager, err := cache.NewManager(cache.Config{
		DetailCacheSizeMB: cfg.Cache.DetailSizeMB,
		DetailTTL:         time.Duration(cfg.Cache.DetailTTLMinutes) * time.Minute,
		LatticeEntries:    cfg.Cache.LatticeEntries,
		DatasetEntries:    cfg.Cache.DatasetEntries,
	})
	if err != nil {
		logger.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheManager.Close()

	forecastService := forecast.NewService(forecast.ServiceConfig{
		Store:  dataStore,
		Cache:  cacheManager,
		AreaID: cfg.Data.AreaID,
		Fetch: forecast.FetchConfig{
			PageSize:        cfg.Fetch.PageSize,
			RowCap:          cfg.Fetch.RowCap,
			MinChunk:        cfg.Fetch.MinChunk,
			MaxConcurrent:   cfg.Fetch.MaxConcurrent,
			LatticeCeiling:  cfg.Fetch.LatticeCeiling,
			PaddingFraction: cfg.Fetch.PaddingFraction,
		},
		Logger: logger,
	})

	detailResolver := forecast.NewDetailResolver(forecast.DetailConfig{
		Store:        dataStore,
		Logger:       logger,
		BaselineYear: cfg.Data.BaselineYear,
		HistoryFrom:  cfg.Data.HistoryFrom,
		HistoryTo:    cfg.Data.HistoryTo,
	})

	geocoder := geocode.NewClient(geocode.Config{
		Endpoint:    cfg.Geocode.Endpoint,
		MinInterval: time.Duration(cfg.Geocode.MinIntervalMS) * time.Millisecond,
	})

	router := api.NewRouter(api.RouterConfig{
		Forecast:    forecastService,
		Detail:      detailResolver,
		Geocoder:    geocoder,
		Cache:       cacheManager,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}
