// Package planner derives color distributions and container demand.
package planner

import "github.com/gravitas-games/screwsort/pkg/models"

// Distribution assigns a level's total item count to colors.
type Distribution struct {
	Counts   map[models.Color]int `json:"counts"`
	Order    []models.Color       `json:"order"` // chosen colors, in palette iteration order
	Total    int                  `json:"total"`
	Capacity int                  `json:"capacity"`

	// PerfectlyDivisible is true when Total is a multiple of Capacity.
	PerfectlyDivisible bool `json:"perfectly_divisible"`
	// ExpectedOverflow is Total mod Capacity: the holes expected to stay
	// occupied at the end of the level.
	ExpectedOverflow int `json:"expected_overflow"`
}

// Sum adds up the per-color counts.
func (d Distribution) Sum() int {
	n := 0
	for _, c := range d.Counts {
		n += c
	}
	return n
}

// Distribute spreads total over min(len(palette), ceil(total/capacity))
// colors as evenly as possible. The first total%k colors in palette order get
// one extra item. A total below 1 yields an empty distribution.
func Distribute(total int, palette []models.Color, capacity int) Distribution {
	if capacity < 1 {
		capacity = 1
	}
	d := Distribution{
		Counts:   make(map[models.Color]int),
		Total:    total,
		Capacity: capacity,
	}
	if total < 1 || len(palette) == 0 {
		d.Total = max(total, 0)
		d.PerfectlyDivisible = d.Total%capacity == 0
		d.ExpectedOverflow = d.Total % capacity
		return d
	}

	k := min(len(palette), ceilDiv(total, capacity))
	base := total / k
	extra := total % k
	for i := 0; i < k; i++ {
		n := base
		if i < extra {
			n++
		}
		d.Counts[palette[i]] = n
		d.Order = append(d.Order, palette[i])
	}
	d.ExpectedOverflow = total % capacity
	d.PerfectlyDivisible = d.ExpectedOverflow == 0
	return d
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
