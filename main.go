// Package main is the entry point for poolgate (pgw), the pooled-deposit
// settlement gateway. It wires the sqlite ledger, the asset ledger and
// carrier clients, the settlement dispatcher, the background scheduler,
// and the HTTP API together.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"poolgate.io/pgw/internal/api"
	"poolgate.io/pgw/internal/assets"
	"poolgate.io/pgw/internal/carrier"
	"poolgate.io/pgw/internal/config"
	"poolgate.io/pgw/internal/dispatcher"
	"poolgate.io/pgw/internal/docs"
	"poolgate.io/pgw/internal/events"
	"poolgate.io/pgw/internal/ledger"
	"poolgate.io/pgw/internal/logging"
	"poolgate.io/pgw/internal/scheduler"
	"poolgate.io/pgw/internal/telemetry"
	"poolgate.io/pgw/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("poolgate starting",
		zap.String("version", types.Version),
		zap.String("build_time", types.BuildTime))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "poolgate", cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	receivers, err := cfg.Receivers()
	if err != nil {
		logger.Fatal("Invalid destination configuration", zap.Error(err))
	}
	destinations := make([]types.Destination, 0, len(receivers))
	for dest := range receivers {
		destinations = append(destinations, dest)
	}

	led, err := ledger.Open(cfg.DBPath, destinations)
	if err != nil {
		logger.Fatal("Failed to open ledger", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer led.Close()
	logger.Info("ledger opened",
		zap.String("path", cfg.DBPath),
		zap.Int("destinations", len(destinations)))

	custody, feeAsset := buildAssets(cfg, logger)
	carr := buildCarrier(cfg, logger)

	threshold, err := cfg.ThresholdBase()
	if err != nil {
		logger.Fatal("Invalid threshold", zap.Error(err))
	}

	hub := events.NewHub()

	disp, err := dispatcher.New(dispatcher.Params{
		Ledger:    led,
		Custody:   custody,
		FeeAsset:  feeAsset,
		Carrier:   carr,
		Hub:       hub,
		Logger:    logger,
		Threshold: threshold,
		Asset:     cfg.Asset,
		FeeName:   cfg.FeeAsset,
		Receivers: receivers,
	})
	if err != nil {
		logger.Fatal("Failed to build dispatcher", zap.Error(err))
	}
	logger.Info("dispatcher ready",
		zap.Uint64("threshold", threshold),
		zap.String("asset", cfg.Asset),
		zap.String("fee_asset", cfg.FeeAsset))

	if err := ensurePortAvailable(cfg.Port); err != nil {
		logger.Fatal("Port unavailable", zap.Int("port", cfg.Port), zap.Error(err))
	}

	svc := api.NewService(led, disp, hub, docs.NewService("docs"), logger)
	server := api.NewServer(svc, cfg.Port, logger)
	serverErrors := server.Start()
	go func() {
		if err, ok := <-serverErrors; ok && err != nil {
			logger.Fatal("API server exited", zap.Error(err))
		}
	}()

	sched := scheduler.New(cfg.PollInterval, disp, logger)
	go sched.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown", zap.Error(err))
	}
}

// buildAssets selects the asset ledger backend: JSON-RPC clients when an
// endpoint is configured, else the in-process bank for development.
func buildAssets(cfg *config.Config, logger *zap.Logger) (assets.Custody, assets.FeeAsset) {
	if cfg.AssetLedgerURL != "" {
		logger.Info("using remote asset ledger", zap.String("url", cfg.AssetLedgerURL))
		custody := assets.NewClient(cfg.AssetLedgerURL, cfg.Asset, cfg.Account)
		fee := assets.NewClient(cfg.AssetLedgerURL, cfg.FeeAsset, cfg.Account)
		return custody, fee
	}
	logger.Info("using in-memory asset bank")
	return assets.NewBank(), assets.NewFeeBank(0)
}

// buildCarrier selects the carrier backend: the JSON-RPC client when an
// endpoint is configured, else the free loopback carrier.
func buildCarrier(cfg *config.Config, logger *zap.Logger) carrier.Carrier {
	if cfg.CarrierURL != "" {
		logger.Info("using remote carrier", zap.String("url", cfg.CarrierURL))
		return carrier.NewClient(cfg.CarrierURL)
	}
	logger.Info("using loopback carrier")
	return carrier.NewLoopback(0)
}

func ensurePortAvailable(port int) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return listener.Close()
}
