// Package main provides the docintel MCP server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/docintel/internal/app"
	"github.com/bull/docintel/internal/config"
	"github.com/bull/docintel/internal/logging"
	mcpserver "github.com/bull/docintel/internal/mcp"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if err := run(); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(getEnv("DOCINTEL_CONFIG", "docintel.yaml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stdout carries the MCP stream in stdio mode
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("Shutdown incomplete", "error", err)
		}
	}()

	server := mcpserver.NewServer(&mcpserver.Config{
		Store:     a.Store,
		Documents: a.Documents,
		Search:    a.Search,
		Cache:     a.Cache,
		Queue:     a.Pool,
		ModelName: a.Model.ModelName(),
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(a.Store, a.Cache))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))
	mux.HandleFunc("/", mcpserver.NewLandingHandler())

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.ServerMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			httpServer.Shutdown(shutdownCtx)
		}()

		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "health", "/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	}

	// Stdio mode: health endpoint in the background for local testing
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()
	defer httpServer.Close()

	return server.Run(ctx)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
