package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skwasm/pluginhost/internal/config"
	"github.com/skwasm/pluginhost/internal/host"
	"github.com/skwasm/pluginhost/internal/interceptors"
	"github.com/skwasm/pluginhost/internal/logging"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/pluginhost.yaml", "Path to configuration file")
	pluginsDir := flag.String("plugins-dir", "plugins", "Directory containing one subdirectory per plugin")
	addr := flag.String("addr", ":3001", "HTTP listen address for plugin endpoints")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("signalk plugin host %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(logging.Config(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	logging.SetGlobal(logger)

	logger.Info("starting plugin host", zap.String("version", version), zap.String("config_root", cfg.ConfigRoot))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := host.New(ctx, cfg.ConfigRoot, nil, logger)
	if err != nil {
		logger.Fatal("failed to construct host", zap.Error(err))
	}

	if cfg.Logging.Output != "" && cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		h.RegisterLogRoute(interceptors.LogRetrievalCommand{
			Name:            "tail",
			Args:            []string{"-n", "50000", cfg.Logging.Output},
			FallbackLogPath: cfg.Logging.Output,
		})
	}

	entries, err := os.ReadDir(*pluginsDir)
	if err != nil {
		logger.Fatal("failed to read plugins directory", zap.String("dir", *pluginsDir), zap.Error(err))
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pluginID := entry.Name()
		manifestDir := filepath.Join(*pluginsDir, pluginID)
		if err := h.LoadPlugin(ctx, pluginID, manifestDir); err != nil {
			logger.Error("failed to load plugin", zap.String("plugin_id", pluginID), zap.Error(err))
			continue
		}

		pluginCfg, err := config.LoadPluginConfig(cfg.ConfigRoot, pluginID)
		if err != nil {
			logger.Error("failed to load plugin config", zap.String("plugin_id", pluginID), zap.Error(err))
			continue
		}
		if !pluginCfg.Enabled {
			logger.Info("plugin disabled, not starting", zap.String("plugin_id", pluginID))
			continue
		}
		configJSON, err := config.MergedStartJSON(pluginCfg)
		if err != nil {
			logger.Error("failed to encode plugin config", zap.String("plugin_id", pluginID), zap.Error(err))
			continue
		}
		if err := h.StartPlugin(ctx, pluginID, configJSON); err != nil {
			logger.Error("failed to start plugin", zap.String("plugin_id", pluginID), zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      h.Mux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("serving plugin endpoints", zap.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("plugin host server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}
