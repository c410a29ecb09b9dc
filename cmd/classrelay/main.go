// Package main is the entry point for the classroom relay server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classrelay/config"
	"classrelay/internal/app"
	"classrelay/internal/logging"
	"classrelay/internal/version"

	_ "classrelay/cmd/classrelay/docs"
)

// @title          classrelay API
// @version        1.0
// @description    Relay between the classroom web client and its script backend.
// @BasePath       /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	result, err := config.Load()
	if err != nil {
		// Logging is not configured yet
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := result.Config

	logCloser, err := logging.Setup(logging.Options{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	})
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("starting classrelay",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)
	if result.ConfigFile != "" {
		slog.Info("configuration file applied", "path", result.ConfigFile)
	}

	application, err := app.New(context.Background(), app.Config{AppConfig: result})
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := application.Start(":" + cfg.Server.Port); err != nil {
		slog.Error("server error", "error", err)
		_ = application.Shutdown(context.Background())
		os.Exit(1)
	}
	// Wait for the call log to flush
	<-done
}
