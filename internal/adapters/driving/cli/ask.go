package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

var (
	askSubject string
	askLecture string
	askWeb     bool
	askWiden   bool
	askTopK    int
	askStream  bool
	askContext bool
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about a lecture",
	Long: `Answers a question from the indexed slides of one lecture.

Web results are added when the slides match poorly or when --web is set.
--widen searches every lecture of the subject. --context prints the
retrieved context without calling the language model.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	scopeFlags(askCmd, &askSubject, &askLecture)
	askCmd.Flags().BoolVar(&askWeb, "web", false, "always add web results")
	askCmd.Flags().BoolVar(&askWiden, "widen", false, "search every lecture of the subject")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", domain.DefaultTopK, "number of slide chunks to retrieve")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	askCmd.Flags().BoolVar(&askContext, "context", false, "print the retrieved context only")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askService == nil {
		return fmt.Errorf("ask %w", errNotConfigured)
	}
	scope, err := domain.NewScope(askSubject, askLecture)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	question := args[0]

	if askContext {
		res, err := askService.Retrieve(ctx, scope, question, domain.RetrievalOptions{
			TopK: askTopK, UseWeb: askWeb, WidenToSubject: askWiden,
		})
		if err != nil {
			return fmt.Errorf("retrieval failed: %w", err)
		}
		if askJSON {
			return printJSON(cmd, res)
		}
		printContext(cmd, res)
		return nil
	}

	opts := domain.AskOptions{UseWeb: askWeb, WidenToSubject: askWiden, TopK: askTopK}
	var answer *domain.Answer
	streamed := askStream && !askJSON
	if streamed {
		answer, err = askService.AskStream(ctx, scope, question, opts, func(chunk string) error {
			cmd.Print(chunk)
			return nil
		})
	} else {
		answer, err = askService.Ask(ctx, scope, question, opts)
	}
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return printJSON(cmd, answer)
	}
	if streamed && !answer.Unavailable {
		cmd.Println()
	} else {
		cmd.Println(answer.Text)
	}
	printSources(cmd, answer.Sources)
	return nil
}

func printSources(cmd *cobra.Command, sources []domain.Source) {
	if len(sources) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i := range sources {
		s := &sources[i]
		switch s.Kind {
		case domain.SourceWeb:
			cmd.Printf("  [web] %s - %s\n", s.Title, s.URL)
		default:
			title := s.Title
			if title == "" {
				title = s.DocumentID
			}
			cmd.Printf("  [page %d] %s (%.2f)\n", s.PageNumber, title, s.Score)
		}
	}
}

func printContext(cmd *cobra.Command, res *domain.RetrievalResult) {
	cmd.Printf("Confidence: %.2f", res.Confidence)
	if res.WebUsed {
		cmd.Print(" (web used)")
	}
	cmd.Println()
	if len(res.Entries) == 0 {
		cmd.Println("No context found.")
		return
	}
	for i := range res.Entries {
		e := &res.Entries[i]
		cmd.Println()
		if e.Kind == domain.SourceWeb {
			cmd.Printf("[web] %s (%s)\n", e.Title, e.URL)
		} else {
			cmd.Printf("[page %d] score %.2f\n", e.PageNumber, e.Score)
		}
		cmd.Println(e.Text)
	}
}
