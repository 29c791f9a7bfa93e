package services

import (
	"sort"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Default region policy thresholds.
const (
	DefaultOverlapThreshold = 0.5
	DefaultMinConfidence    = 0.6
)

// RegionPolicy turns raw classifier candidates into the ordered,
// non-overlapping region list stored for a page.
type RegionPolicy struct {
	// OverlapThreshold is the intersection over smaller-area ratio above
	// which the lower-confidence of two regions is discarded. At or below
	// it the lower-confidence region is clipped to its largest part
	// outside the other.
	OverlapThreshold float64

	// MinConfidence is the score below which a region is relabelled as text.
	MinConfidence float64
}

// DefaultRegionPolicy returns the policy with default thresholds.
func DefaultRegionPolicy() RegionPolicy {
	return RegionPolicy{
		OverlapThreshold: DefaultOverlapThreshold,
		MinConfidence:    DefaultMinConfidence,
	}
}

// Apply suppresses or clips overlaps, relabels low-confidence regions and
// orders the result top-to-bottom then left-to-right. Indexes are renumbered
// from 0. No two returned boxes intersect.
func (p RegionPolicy) Apply(candidates []domain.Region) []domain.Region {
	// Highest confidence first; on ties the earlier candidate wins.
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Confidence > candidates[order[b]].Confidence
	})

	kept := make([]domain.Region, 0, len(candidates))
	for _, idx := range order {
		c := candidates[idx]
		if c.Box.Area() == 0 {
			continue
		}
		overlaps := false
		for _, k := range kept {
			if c.Box.OverlapRatio(k.Box) > p.OverlapThreshold {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		// Clipping only shrinks the box, so one pass over the kept
		// regions leaves it clear of all of them.
		for _, k := range kept {
			c.Box = c.Box.Clip(k.Box)
		}
		if c.Box.Area() == 0 {
			continue
		}
		if c.Confidence < p.MinConfidence {
			c.Label = domain.LabelText
		}
		switch c.Label {
		case domain.LabelText, domain.LabelFigure:
		default:
			c.Label = domain.LabelText
		}
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(a, b int) bool {
		if kept[a].Box.Y != kept[b].Box.Y {
			return kept[a].Box.Y < kept[b].Box.Y
		}
		return kept[a].Box.X < kept[b].Box.X
	})
	for i := range kept {
		kept[i].Index = i
	}
	return kept
}
