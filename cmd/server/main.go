// Package main runs the film search HTTP API and MCP server.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bull/filmsearch/internal/app"
	"github.com/bull/filmsearch/internal/config"
	"github.com/bull/filmsearch/internal/httpapi"
	"github.com/bull/filmsearch/internal/logger"
	mcpserver "github.com/bull/filmsearch/internal/mcp"
)

const shutdownTimeout = 30 * time.Second

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("FILMSEARCH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.Init(cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	server := mcpserver.NewServer(&mcpserver.Config{
		Backend:      a.Engine,
		Index:        a.Qdrant,
		Collection:   cfg.Qdrant.Collection,
		ContextTurns: cfg.Chat.ContextTurns,
		Version:      version,
		Logger:       l,
	})

	router := httpapi.NewRouter(httpapi.Config{
		Engine:         a.Engine,
		Health:         a.HealthChecks(),
		MCP:            mcpserver.NewHTTPHandler(server, &mcpserver.HTTPHandlerOptions{Stateless: true}),
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         l,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("Starting HTTP server", "addr", srv.Addr, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Server.Mode == "stdio" {
		// Stdio mode: MCP over stdin/stdout, HTTP stays up in the background.
		go func() {
			l.Info("Starting MCP server (stdio mode)")
			if err := server.Run(ctx); err != nil {
				l.Error("MCP server error", "error", err)
			}
			cancel()
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		l.Error("HTTP server error", "error", err)
	}

	l.Info("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("Forced shutdown", "error", err)
	}
}
