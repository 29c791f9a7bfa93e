// Package tui provides an interactive terminal interface for asking about a
// lecture and following its ingestion.
package tui

import (
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// Ports aggregates the driving ports the TUI uses.
type Ports struct {
	// Ask composes answers.
	Ask driving.AskService

	// Ingestion lists jobs and documents and deletes scope data.
	Ingestion driving.IngestionService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Ask == nil {
		return ErrMissingAskService
	}
	if p.Ingestion == nil {
		return ErrMissingIngestionService
	}
	return nil
}
