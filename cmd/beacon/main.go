package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"beacon/internal/config"
	"beacon/internal/gameserver"
	"beacon/internal/metrics"
	"beacon/pkg/logger"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults built in if empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			println("beacon: failed to load config: " + err.Error())
			os.Exit(1)
		}
		cfg = loaded
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		println("beacon: failed to build logger: " + err.Error())
		os.Exit(1)
	}
	defer log.Sync()

	logger.Banner(log, "beacon - Bedrock transport server", version)

	m := metrics.New()
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.ListenAddr, m)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.ListenAddr))
	}

	srv, err := gameserver.New(cfg, log, m)
	if err != nil {
		log.Fatal("failed to build server", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go func() {
		log.Info("raknet listening", zap.String("addr", cfg.RakNet.ListenAddr))
		errChan <- srv.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.Error("server stopped with error", zap.Error(err))
		}
	case sig := <-sigChan:
		log.Warn("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		<-errChan
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown error", zap.Error(err))
		}
	}

	log.Info("beacon stopped")
}
