package models

import "sort"

// Color identifies one entry of the level palette. The core never interprets
// the value beyond equality.
type Color string

// Common palette entries. Levels may use any Color value; these exist so that
// configs and tests share spelling.
const (
	Red    Color = "red"
	Blue   Color = "blue"
	Green  Color = "green"
	Yellow Color = "yellow"
	Purple Color = "purple"
	Orange Color = "orange"
	Pink   Color = "pink"
	Cyan   Color = "cyan"
)

// DefaultPalette is used when configuration does not provide one.
var DefaultPalette = []Color{Red, Blue, Green, Yellow, Purple, Orange, Pink, Cyan}

// ColorCount pairs a color with a count.
type ColorCount struct {
	Color Color `json:"color"`
	Count int   `json:"count"`
}

// SortedCounts returns the non-zero entries of counts ordered by count
// descending, breaking ties by color name so the order is reproducible.
func SortedCounts(counts map[Color]int) []ColorCount {
	out := make([]ColorCount, 0, len(counts))
	for c, n := range counts {
		if n > 0 {
			out = append(out, ColorCount{Color: c, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Color < out[j].Color
	})
	return out
}
