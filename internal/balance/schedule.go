package balance

import (
	"github.com/gravitas-games/screwsort/internal/planner"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// BuildSchedule walks the distribution in descending-count order. Whenever
// the containers implied by the colors walked so far would exceed limit, it
// records a replacement at the running item count, targeting the colors with
// the most items still uncollected at that point.
func BuildSchedule(dist planner.Distribution, limit, capacity int) Schedule {
	var s Schedule
	if capacity < 1 || limit < 1 {
		return s
	}

	remaining := make(map[models.Color]int, len(dist.Counts))
	for c, n := range dist.Counts {
		remaining[c] = n
	}

	running, containers := 0, 0
	for _, cc := range models.SortedCounts(dist.Counts) {
		need := ceilDiv(cc.Count, capacity)
		if containers > 0 && containers+need > limit {
			s.Replacements = append(s.Replacements, Replacement{
				Threshold: running,
				Colors:    topRemaining(remaining, limit),
				Reason:    reasonFor(running, dist.Total, containers, limit),
			})
			containers = 0
		}
		if len(s.Replacements) == 0 {
			s.Initial = append(s.Initial, cc.Color)
		}
		containers += need
		running += cc.Count
		remaining[cc.Color] = 0
	}

	s.Expected = FinalState{
		FilledContainers:      dist.Total / capacity,
		OccupiedHoles:         dist.Total % capacity,
		ContainersExactlyFull: dist.Total%capacity == 0,
	}
	return s
}

func topRemaining(remaining map[models.Color]int, limit int) []models.Color {
	sorted := models.SortedCounts(remaining)
	out := make([]models.Color, 0, limit)
	for _, cc := range sorted {
		if len(out) == limit {
			break
		}
		out = append(out, cc.Color)
	}
	return out
}

// reasonFor tags a replacement by where it falls in the level.
func reasonFor(threshold, total, containersPlaced, limit int) Reason {
	progress := 0.0
	if total > 0 {
		progress = float64(threshold) / float64(total)
	}
	switch {
	case progress >= 0.75:
		return ReasonCompletionPrep
	case containersPlaced >= limit:
		return ReasonPreventOverflow
	case progress < 0.25:
		return ReasonColorReoptimization
	default:
		return ReasonBalanceRequirement
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
