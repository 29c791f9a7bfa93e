package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	documentsSubject string
	documentsLecture string
	documentsJSON    bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete [subject] [lecture]",
	Short: "Delete the indexed data of a subject or lecture",
	Long: `Removes documents, page images, figures, chunks and index entries of a
lecture, or of every lecture in a subject when no lecture is given.
Active jobs in the scope are cancelled. Job records are kept.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDelete,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List documents of a subject or lecture",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

func init() {
	scopeFlags(documentsCmd, &documentsSubject, &documentsLecture)
	documentsCmd.Flags().BoolVar(&documentsJSON, "json", false, "output documents as JSON")
	rootCmd.AddCommand(deleteCmd, documentsCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return fmt.Errorf("ingestion %w", errNotConfigured)
	}
	lecture := ""
	if len(args) == 2 {
		lecture = args[1]
	}
	scope, err := scopeOf(args[0], lecture)
	if err != nil {
		return err
	}
	if err := ingestionService.DeleteScopeData(cmd.Context(), scope); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("Deleted data for %s\n", scope)
	return nil
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return fmt.Errorf("ingestion %w", errNotConfigured)
	}
	scope, err := scopeOf(documentsSubject, documentsLecture)
	if err != nil {
		return err
	}
	docs, err := ingestionService.ListDocuments(cmd.Context(), scope)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if documentsJSON {
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for i := range docs {
		d := &docs[i]
		cmd.Printf("%s  %-10s %s  %s\n",
			d.ID, d.Status, d.Title, d.UploadedAt.Local().Format(time.DateTime))
	}
	return nil
}
