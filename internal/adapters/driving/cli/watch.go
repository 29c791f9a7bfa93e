package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/adapters/driving/watch"
	"github.com/custodia-labs/lectern/internal/core/domain"
)

var (
	watchSubject string
	watchLecture string
	watchScan    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest PDFs dropped into an inbox directory",
	Long: `Watches a directory and submits every PDF written into it.

With --subject and --lecture every file goes to that lecture. Without them
files must be placed at <dir>/<subject>/<lecture>/<file>.pdf. Ingestion
workers run alongside the watcher.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	scopeFlags(watchCmd, &watchSubject, &watchLecture)
	watchCmd.Flags().BoolVar(&watchScan, "scan", false, "also submit files already in the directory")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if uploadService == nil {
		return fmt.Errorf("upload %w", errNotConfigured)
	}

	var scope domain.Scope
	if watchSubject != "" || watchLecture != "" {
		s, err := domain.NewScope(watchSubject, watchLecture)
		if err != nil {
			return err
		}
		scope = s
	}

	stop, err := startWorkers(cmd.Context())
	if err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}
	defer stop()

	w := watch.New(uploadService, watch.Config{
		Root:         args[0],
		Scope:        scope,
		Settle:       watchSettle,
		ScanExisting: watchScan,
	})
	cmd.Printf("Watching %s (Ctrl+C to stop)\n", args[0])
	return w.Run(cmd.Context())
}
