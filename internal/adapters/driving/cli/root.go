// Package cli provides the lectern command line.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/adapters/driving/api"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

var verbose bool

// Workers runs the background ingestion pipeline.
type Workers interface {
	Start(ctx context.Context) error
	Stop() error
}

// Services holds everything the commands drive.
type Services struct {
	Ask       driving.AskService
	Ingestion driving.IngestionService
	Upload    driving.UploadService
	Progress  api.ProgressFeed
	Tasks     api.TaskReporter
	Workers   Workers

	Server      api.Config
	WatchSettle time.Duration

	// Config is the settings file edited by the config command.
	Config driven.ConfigStore
	// ValidateConfig checks the settings file after an edit.
	ValidateConfig func(driven.ConfigStore) error
}

var (
	askService       driving.AskService
	ingestionService driving.IngestionService
	uploadService    driving.UploadService
	progressFeed     api.ProgressFeed
	taskReporter     api.TaskReporter
	workers          Workers

	serverConfig api.Config
	watchSettle  time.Duration

	configStore    driven.ConfigStore
	validateConfig func(driven.ConfigStore) error
)

var errNotConfigured = errors.New("service not configured")

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Ask questions about your lecture slides",
	Long: `Lectern ingests lecture slide decks, indexes them per subject and lecture,
and answers questions grounded in the slides, with optional web fallback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			logger.SetVerbose(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetServices injects the application services.
func SetServices(s Services) {
	askService = s.Ask
	ingestionService = s.Ingestion
	uploadService = s.Upload
	progressFeed = s.Progress
	taskReporter = s.Tasks
	workers = s.Workers
	serverConfig = s.Server
	watchSettle = s.WatchSettle
	configStore = s.Config
	validateConfig = s.ValidateConfig
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// startWorkers starts the background pipeline if one is configured and
// returns the matching stop function.
func startWorkers(ctx context.Context) (func(), error) {
	if workers == nil {
		return func() {}, nil
	}
	if err := workers.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := workers.Stop(); err != nil {
			logger.Warn("Stopping workers: %v", err)
		}
	}, nil
}
