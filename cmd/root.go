// Package cmd defines and implements the CLI commands for the bizdir executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizdir-crawler/internal/config"
	"github.com/JakeFAU/bizdir-crawler/internal/logging"
	"github.com/JakeFAU/bizdir-crawler/internal/pipeline"
	"github.com/JakeFAU/bizdir-crawler/internal/server"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
)

// App is what the subcommands need from the application container.
// *server.App satisfies it; tests inject fakes.
type App interface {
	Scrape(ctx context.Context, urls []string) (pipeline.Summary, error)
	Export(ctx context.Context, format string, params store.SearchParams) (string, error)
	Stats(ctx context.Context) server.Stats
	Handler() http.Handler
	Serve(ctx context.Context) error
	Close() error
}

// factories builds the logger and the App. Swapped in tests.
type factories struct {
	newLogger func(cfg config.LoggingConfig) (*zap.Logger, error)
	newApp    func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)
}

func defaultFactories() factories {
	return factories{
		newLogger: func(cfg config.LoggingConfig) (*zap.Logger, error) {
			return logging.New(logging.Options{
				Development: cfg.Development,
				Level:       cfg.Level,
				File:        cfg.File,
			})
		},
		newApp: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
			return server.Build(ctx, cfg, logger)
		},
	}
}

// runtime is the state shared by subcommands once PersistentPreRunE ran.
type runtime struct {
	cfgFile string
	logger  *zap.Logger
	app     App
}

// close releases the App when one was built.
func (rt *runtime) close() {
	if rt.app == nil {
		return
	}
	if err := rt.app.Close(); err != nil {
		rt.logger.Warn("close application", zap.Error(err))
	}
	rt.app = nil
}

func newRootCmd(f factories, rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bizdir",
		Short: "Collects business directory listings into a searchable store.",
		Long: `bizdir fetches business directory pages, extracts company records,
normalizes and deduplicates them, and stores them in SQLite or Postgres.
Stored records can be exported to CSV or Excel, summarized, or served over
a read-only HTTP API.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rt.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := f.newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt.logger = logger
			// Usage is only useful for argument errors, which cobra reports
			// before this hook runs.
			cmd.SilenceUsage = true

			app, err := f.newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			rt.app = app
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&rt.cfgFile, "config", "", "config file (default ./config.yaml when present)")

	cmd.AddCommand(
		newScrapeCmd(rt),
		newExportCmd(rt),
		newStatsCmd(rt),
		newServeCmd(rt),
	)
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return execute(context.Background(), defaultFactories(), os.Args[1:])
}

func execute(ctx context.Context, f factories, args []string) int {
	rt := &runtime{}
	defer rt.close()
	root := newRootCmd(f, rt)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		return 1
	}
	return 0
}
