// Package styles holds the TUI palette and the lipgloss styles built on it.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Palette maps roles to colours. Each colour adapts to light and dark
// terminal backgrounds.
type Palette struct {
	Accent lipgloss.AdaptiveColor
	// Slide colours [page N] citations.
	Slide lipgloss.AdaptiveColor
	// Web colours material from outside the lecture.
	Web lipgloss.AdaptiveColor

	Text lipgloss.AdaptiveColor
	Dim  lipgloss.AdaptiveColor
	Edge lipgloss.AdaptiveColor
	Bar  lipgloss.AdaptiveColor

	Good lipgloss.AdaptiveColor
	Busy lipgloss.AdaptiveColor
	Bad  lipgloss.AdaptiveColor
}

// DefaultPalette is the built-in palette.
func DefaultPalette() Palette {
	return Palette{
		Accent: lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"},
		Slide:  lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"},
		Web:    lipgloss.AdaptiveColor{Light: "#C2410C", Dark: "#FB923C"},
		Text:   lipgloss.AdaptiveColor{Light: "#111827", Dark: "#E5E7EB"},
		Dim:    lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"},
		Edge:   lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#374151"},
		Bar:    lipgloss.AdaptiveColor{Light: "#F3F4F6", Dark: "#111827"},
		Good:   lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#86EFAC"},
		Busy:   lipgloss.AdaptiveColor{Light: "#A16207", Dark: "#FDE68A"},
		Bad:    lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#FCA5A5"},
	}
}

// Styles are the rendered roles used by the views.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Normal   lipgloss.Style
	Muted    lipgloss.Style
	Selected lipgloss.Style

	Error   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style

	PageMarker lipgloss.Style
	WebMarker  lipgloss.Style

	// Answer frames a composed answer; InputField frames the question box.
	Answer     lipgloss.Style
	InputField lipgloss.Style

	StatusBar lipgloss.Style
	Help      lipgloss.Style
}

// New builds styles from p.
func New(p Palette) *Styles {
	plain := lipgloss.NewStyle()
	framed := plain.BorderStyle(lipgloss.RoundedBorder()).BorderForeground(p.Edge).Padding(0, 1)

	return &Styles{
		Title:    plain.Bold(true).Foreground(p.Accent),
		Subtitle: plain.Foreground(p.Slide),
		Normal:   plain.Foreground(p.Text),
		Muted:    plain.Foreground(p.Dim),
		Selected: plain.Bold(true).Foreground(p.Accent),

		Error:   plain.Foreground(p.Bad),
		Success: plain.Foreground(p.Good),
		Warning: plain.Foreground(p.Busy),

		PageMarker: plain.Bold(true).Foreground(p.Slide),
		WebMarker:  plain.Bold(true).Foreground(p.Web),

		Answer:     framed,
		InputField: framed.BorderForeground(p.Accent),

		StatusBar: plain.Foreground(p.Dim).Background(p.Bar).Padding(0, 1),
		Help:      plain.Foreground(p.Dim).Italic(true),
	}
}

// DefaultStyles returns styles for the default palette.
func DefaultStyles() *Styles {
	return New(DefaultPalette())
}

// Stage returns the style of a job stage: done, failed, waiting or busy.
func (s *Styles) Stage(stage domain.Stage) lipgloss.Style {
	switch stage {
	case domain.StageCompleted:
		return s.Success
	case domain.StageFailed:
		return s.Error
	case domain.StageQueued:
		return s.Muted
	default:
		return s.Warning
	}
}

// Marker renders the provenance marker of a source kind.
func (s *Styles) Marker(kind domain.SourceKind, page int) string {
	if kind == domain.SourceWeb {
		return s.WebMarker.Render("[web]")
	}
	return s.PageMarker.Render(domain.ContextEntry{PageNumber: page}.Marker())
}
