package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/lectern/internal/adapters/driven/config/file"
	"github.com/custodia-labs/lectern/internal/adapters/driving/cli"
	"github.com/custodia-labs/lectern/internal/app"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := file.NewConfigStore(os.Getenv(app.EnvName("config_dir")))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// The config command works on the file alone, so it stays usable when
	// the settings it would repair are broken.
	if cli.IsConfigCommand(os.Args[1:]) {
		cli.SetServices(cli.Services{Config: store, ValidateConfig: validateSettings})
		return cli.Execute(ctx)
	}

	settings, err := app.LoadSettings(store)
	if err != nil {
		return err
	}
	if settings.LogFormat != "" {
		logger.SetFormat(logger.ParseFormat(settings.LogFormat))
	}

	a, err := app.New(ctx, settings)
	if err != nil {
		return err
	}
	defer a.Close()

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Ask:            a.Ask,
		Ingestion:      a.Ingestion,
		Upload:         a.Upload,
		Progress:       a.Progress,
		Tasks:          a.Scheduler,
		Workers:        a,
		Server:         settings.Server,
		WatchSettle:    settings.Watch,
		Config:         store,
		ValidateConfig: validateSettings,
	})
	return cli.Execute(ctx)
}

// validateSettings reports whether the settings file still resolves to a
// valid configuration.
func validateSettings(store driven.ConfigStore) error {
	_, err := app.LoadSettings(store)
	return err
}
