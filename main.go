package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"markestedt/typetool/config"
	"markestedt/typetool/dialog"
	"markestedt/typetool/platform"
)

func main() {
	// Setup logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	release, err := platform.AcquireInstance("typetool")
	if errors.Is(err, platform.ErrAlreadyRunning) {
		dialog.ShowError("TypeTool is already running!")
		os.Exit(1)
	}
	if err != nil {
		slog.Warn("Failed to acquire instance lock", "error", err)
	} else {
		defer release()
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		dialog.ShowError("Could not load the configuration: " + err.Error())
		os.Exit(1)
	}

	configPath, _ := config.ConfigPath()
	slog.Info("Configuration loaded", "path", configPath)

	agent, err := NewAgent(cfg, configPath)
	if err != nil {
		slog.Error("Failed to create agent", "error", err)
		os.Exit(1)
	}
	defer agent.Close()

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		slog.Error("Agent error", "error", err)
		return
	}

	slog.Info("TypeTool stopped")
}
