package scheduling

import (
	"context"
	"fmt"
	"math"
	"time"
)

// ConflictAnalytics aggregates the conflict log for reporting.
type ConflictAnalytics struct {
	TotalConflicts    int            `json:"total_conflicts"`
	ResolvedConflicts int            `json:"resolved_conflicts"`
	ResolutionRate    float64        `json:"resolution_rate"`
	ConflictTypes     map[string]int `json:"conflict_types"`
	ConflictsByDay    map[string]int `json:"conflicts_by_day"`
}

// ConflictAnalytics summarizes logged conflicts in the optional
// [start, end] window. Days are grouped by when the conflict was logged,
// not by the attempted appointment date. The resolution rate is a
// percentage rounded to two decimals, and 0 when nothing was logged.
func (s *Service) ConflictAnalytics(ctx context.Context, start, end *time.Time) (*ConflictAnalytics, error) {
	conflicts, err := s.repo.ListConflicts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}

	out := &ConflictAnalytics{
		ConflictTypes:  make(map[string]int),
		ConflictsByDay: make(map[string]int),
	}

	for _, c := range conflicts {
		out.TotalConflicts++
		if c.Resolved {
			out.ResolvedConflicts++
		}
		out.ConflictTypes[string(c.Type)]++
		out.ConflictsByDay[c.CreatedAt.Format("2006-01-02")]++
	}

	if out.TotalConflicts > 0 {
		rate := float64(out.ResolvedConflicts) / float64(out.TotalConflicts) * 100
		out.ResolutionRate = math.Round(rate*100) / 100
	}

	return out, nil
}
