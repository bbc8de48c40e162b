package balance

import (
	"math"

	"github.com/gravitas-games/screwsort/internal/config"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// Tolerance accepts up to MaxOverflow leftover holes for levels up to UpToLevel.
type Tolerance struct {
	UpToLevel   int
	MaxOverflow int
}

// Params are the planner inputs that do not change between levels.
type Params struct {
	Capacity       int
	ContainerLimit int
	HoldingHoles   int
	Palette        []models.Color

	BaseItemsPerLayer float64
	ComplexityWeight  float64
	DensityWeight     float64
	MinLayers         int
	MaxLayers         int
	MaxItems          int

	Strict    bool
	Tolerance []Tolerance
}

// ParamsFromConfig extracts planner params from server config.
func ParamsFromConfig(cfg *config.Config) Params {
	p := Params{
		Capacity:          cfg.Board.ContainerCapacity,
		ContainerLimit:    cfg.Board.ContainerLimit,
		HoldingHoles:      cfg.Board.HoldingHoles,
		Palette:           append([]models.Color(nil), cfg.Balance.Palette...),
		BaseItemsPerLayer: cfg.Balance.BaseItemsPerLayer,
		ComplexityWeight:  cfg.Balance.ComplexityWeight,
		DensityWeight:     cfg.Balance.DensityWeight,
		MinLayers:         cfg.Balance.MinLayers,
		MaxLayers:         cfg.Balance.MaxLayers,
		MaxItems:          cfg.Balance.MaxItems,
		Strict:            !cfg.Balance.Lenient,
	}
	for _, t := range cfg.Balance.Tolerance {
		p.Tolerance = append(p.Tolerance, Tolerance{UpToLevel: t.UpToLevel, MaxOverflow: t.MaxOverflow})
	}
	return p
}

// DifficultyFor maps a level number to its difficulty. Layers grow every
// three levels; complexity saturates at level 21 and density at level 31.
func (p Params) DifficultyFor(level int) Difficulty {
	if level < 1 {
		level = 1
	}
	layers := p.MinLayers + (level-1)/3
	layers = min(max(layers, p.MinLayers), p.MaxLayers)
	return Difficulty{
		Level:      level,
		Layers:     layers,
		Complexity: math.Min(1, float64(level-1)/20),
		Density:    math.Min(1, float64(level-1)/30),
	}
}

// RawCount is layers × base items per layer, where each difficulty axis
// contributes its own multiplier.
func (p Params) RawCount(d Difficulty) int {
	perLayer := p.BaseItemsPerLayer *
		(1 + d.Complexity*p.ComplexityWeight) *
		(1 + d.Density*p.DensityWeight)
	return int(math.Round(float64(d.Layers) * perLayer))
}

// TotalFor rounds raw up to a multiple of the container capacity, clamps it
// to MaxItems and enforces a floor of two full containers. It returns notes
// describing any clamping.
func (p Params) TotalFor(raw int) (int, []string) {
	var notes []string
	c := p.Capacity
	if c < 1 {
		return max(raw, 0), []string{"container capacity is not positive"}
	}
	total := roundUp(max(raw, 0), c)
	if p.MaxItems > 0 && total > p.MaxItems {
		clamped := (p.MaxItems / c) * c
		notes = append(notes, "item count clamped to max_items")
		total = clamped
	}
	if floor := 2 * c; total < floor {
		total = floor
	}
	return total, notes
}

func (p Params) toleranceFor(level int) (Tolerance, bool) {
	for _, t := range p.Tolerance {
		if level <= t.UpToLevel {
			return t, true
		}
	}
	return Tolerance{}, false
}

func roundUp(n, m int) int {
	if m <= 0 {
		return n
	}
	return ((n + m - 1) / m) * m
}
