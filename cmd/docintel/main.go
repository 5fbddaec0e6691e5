// Package main provides the docintel CLI: user management, ingestion,
// document reads and search against the configured store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docintel/internal/app"
	"github.com/bull/docintel/internal/config"
	"github.com/bull/docintel/internal/logging"
)

// opener builds the application for one command run.
type opener func(ctx context.Context, configPath string) (*app.App, error)

type cli struct {
	open       opener
	configPath string
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := newRootCmd(openApp).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func openApp(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "docintel",
		Short:         "Document enrichment and semantic search",
		Long:          "CLI for ingesting documents, reading their summaries and searching them.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", getEnv("DOCINTEL_CONFIG", "docintel.yaml"),
		"YAML config file; environment variables override it")

	root.AddCommand(
		c.userCmd(),
		c.ingestCmd(),
		c.ingestGitHubCmd(),
		c.getCmd(),
		c.searchCmd(),
		c.cacheCmd(),
	)
	return root
}

// withApp opens the application, runs fn and closes it again. Closing
// drains the enrichment queue.
func (c *cli) withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := c.open(cmd.Context(), c.configPath)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(context.WithoutCancel(cmd.Context())); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args, a)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
