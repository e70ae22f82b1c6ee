// Package main provides filmctl, the command-line client for ingesting film
// pages and querying the index.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bull/filmsearch/internal/app"
	"github.com/bull/filmsearch/internal/config"
	"github.com/bull/filmsearch/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "filmctl",
	Short:         "Film search indexing and query tool",
	Long:          "CLI tool for loading film articles into the index and searching or chatting against it",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FILMSEARCH_CONFIG"), "path to a YAML config file")
	rootCmd.AddCommand(ingestCmd, searchCmd, chatCmd, healthCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

// buildApp loads config and wires every component. Logs go to stderr so
// command output stays clean.
func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	l := logger.Init(cfg.Log.Level, cfg.Log.Format)
	return app.New(ctx, cfg, l)
}
