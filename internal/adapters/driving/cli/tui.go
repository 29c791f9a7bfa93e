package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui"
	"github.com/custodia-labs/lectern/internal/core/domain"
)

var errNotTerminal = errors.New("the terminal UI needs an interactive terminal")

var (
	tuiSubject string
	tuiLecture string
	tuiTopK    int
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal UI",
	Long: `Launch the interactive terminal interface for one lecture.

Ask questions with their sources shown alongside, follow ingestion jobs as
they progress and manage the lecture's documents. Ingestion workers run while
the UI is open.

Controls:
  ↑/k, ↓/j - Navigate
  Enter    - Ask / Select
  ctrl+w   - Toggle web search
  ctrl+s   - Toggle whole-subject search
  Esc      - Back
  ctrl+c   - Quit`,
	Example: `  lectern tui -s physics -l lecture-03`,
	Args:    cobra.NoArgs,
	RunE:    runTUI,
}

func init() {
	scopeFlags(tuiCmd, &tuiSubject, &tuiLecture)
	tuiCmd.Flags().IntVarP(&tuiTopK, "top-k", "k", domain.DefaultTopK, "slide chunks retrieved per question")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic in TUI: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
			err = fmt.Errorf("TUI panic: %v", r)
		}
	}()

	scope, err := domain.NewScope(tuiSubject, tuiLecture)
	if err != nil {
		return err
	}

	app, err := tui.NewApp(&tui.Ports{Ask: askService, Ingestion: ingestionService}, scope)
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errNotTerminal
	}

	stop, err := startWorkers(cmd.Context())
	if err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}
	defer stop()

	app.WithContext(cmd.Context()).WithTopK(tuiTopK)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
