package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

var (
	documentNamespace = uuid.MustParse("1b4e28ba-2fa1-5d2a-8c9e-7a0b6d3f4c21")
	figureNamespace   = uuid.MustParse("9d2f6c40-8e1b-5f3a-b7c4-2e5a1d0f9b86")
)

// DocumentID returns the deterministic ID of a source document in scope.
func DocumentID(scope domain.Scope, sourceRef string) string {
	return uuid.NewSHA1(documentNamespace, []byte(scope.String()+"|"+sourceRef)).String()
}

// FigureID returns the deterministic ID of a figure crop.
func FigureID(documentID string, page, sequence int) string {
	return uuid.NewSHA1(figureNamespace, []byte(fmt.Sprintf("%s/%d/%d", documentID, page, sequence))).String()
}
