package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// scopeFlags registers --subject and --lecture on cmd.
func scopeFlags(cmd *cobra.Command, subject, lecture *string) {
	cmd.Flags().StringVarP(subject, "subject", "s", "", "subject the lecture belongs to")
	cmd.Flags().StringVarP(lecture, "lecture", "l", "", "lecture within the subject")
}

// scopeOf builds a lecture scope, or a subject-wide one when lecture is empty.
func scopeOf(subject, lecture string) (domain.Scope, error) {
	if strings.TrimSpace(lecture) != "" {
		return domain.NewScope(subject, lecture)
	}
	scope := domain.SubjectScope(subject)
	if err := scope.Validate(); err != nil {
		return domain.Scope{}, err
	}
	return scope, nil
}
