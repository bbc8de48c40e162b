package balance

import (
	"fmt"
	"math/rand"

	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/internal/metrics"
	"github.com/gravitas-games/screwsort/internal/planner"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// Planner computes level plans. It holds no state between calls; the only
// source of variation is the random source passed to Plan.
type Planner struct {
	params  Params
	logger  logging.Logger
	metrics metrics.Recorder
}

// New creates a balance planner.
func New(params Params, logger logging.Logger, rec metrics.Recorder) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Planner{params: params, logger: logger, metrics: rec}
}

// Params returns the planner configuration.
func (p *Planner) Params() Params { return p.params }

// Rules are the board rules plans are dealt and replayed under.
func (p *Planner) Rules() Rules {
	return Rules{Capacity: p.params.Capacity, ContainerLimit: p.params.ContainerLimit, HoldingHoles: p.params.HoldingHoles}
}

// PlanLevel plans the given level number with a source seeded by seed.
func (p *Planner) PlanLevel(level int, seed int64) (LevelPlan, error) {
	plan, err := p.Plan(p.params.DifficultyFor(level), rand.New(rand.NewSource(seed)))
	plan.Seed = seed
	return plan, err
}

// Plan derives the item total, color distribution and replacement schedule
// for d, deals the spawn order, then validates the projected final state and
// replays the deal. rng shuffles the palette and then the deal so that both
// vary between levels; a nil rng keeps palette order and deals the first
// open color each time.
//
// Under a strict configuration a failed validation returns the populated plan
// with Valid=false and a *ValidationError. Under a lenient one the plan is
// returned as valid with the issues moved to warnings.
func (p *Planner) Plan(d Difficulty, rng *rand.Rand) (LevelPlan, error) {
	plan := LevelPlan{Difficulty: d}
	plan.RawCount = p.params.RawCount(d)

	total, notes := p.params.TotalFor(plan.RawCount)
	plan.TotalItems = total
	plan.Report.Warnings = append(plan.Report.Warnings, notes...)

	palette := append([]models.Color(nil), p.params.Palette...)
	if rng != nil {
		rng.Shuffle(len(palette), func(i, j int) { palette[i], palette[j] = palette[j], palette[i] })
	}
	plan.Distribution = planner.Distribute(total, palette, p.params.Capacity)
	plan.Schedule = BuildSchedule(plan.Distribution, p.params.ContainerLimit, p.params.Capacity)
	plan.Deal = DealOrder(plan.Distribution, p.Rules(), rng)

	err := p.Check(&plan)
	p.logger.Debug("level plan computed",
		"level", d.Level,
		"raw", plan.RawCount,
		"total", plan.TotalItems,
		"colors", len(plan.Distribution.Counts),
		"replacements", len(plan.Schedule.Replacements),
		"valid", plan.Valid,
	)
	return plan, err
}

// Check validates plan in place, filling its report and Valid flag.
func (p *Planner) Check(plan *LevelPlan) error {
	plan.Report.Strict = p.params.Strict
	replay := Replay(plan.Deal, plan.Distribution.Counts, p.Rules())
	plan.Report.PeakPending = replay.PeakHeld
	plan.Report.RoutingFailures = replay.RoutingFailures
	plan.Report.Issues = p.validate(plan)

	if len(plan.Report.Issues) == 0 {
		plan.Valid = true
		p.metrics.PlanComputed("valid")
		return nil
	}
	if !p.params.Strict {
		plan.Valid = true
		for _, issue := range plan.Report.Issues {
			plan.Report.Warnings = append(plan.Report.Warnings, "accepted by lenient config: "+issue)
		}
		p.logger.Warn("imperfect level plan accepted", "level", plan.Difficulty.Level, "issues", plan.Report.Issues)
		p.metrics.PlanComputed("lenient")
		return nil
	}
	plan.Valid = false
	p.logger.Error("level plan failed validation", "level", plan.Difficulty.Level, "issues", plan.Report.Issues)
	p.metrics.PlanComputed("invalid")
	return &ValidationError{Issues: append([]string(nil), plan.Report.Issues...)}
}

func (p *Planner) validate(plan *LevelPlan) []string {
	var issues []string
	params := p.params
	if params.Capacity < 1 {
		return []string{fmt.Sprintf("container capacity must be positive, got %d", params.Capacity)}
	}
	if params.ContainerLimit < 1 {
		issues = append(issues, fmt.Sprintf("container limit must be positive, got %d", params.ContainerLimit))
	}
	if len(params.Palette) == 0 {
		issues = append(issues, "palette is empty")
	}

	n := plan.TotalItems
	if sum := plan.Distribution.Sum(); sum != n {
		issues = append(issues, fmt.Sprintf("distribution sums to %d, expected %d", sum, n))
	}
	if n < 2*params.Capacity {
		issues = append(issues, fmt.Sprintf("total %d is below two full containers (%d)", n, 2*params.Capacity))
	}

	overflow := n % params.Capacity
	plan.Schedule.Expected = FinalState{
		FilledContainers:      n / params.Capacity,
		OccupiedHoles:         overflow,
		ContainersExactlyFull: overflow == 0,
	}
	if overflow != 0 {
		msg := fmt.Sprintf("%d items would remain in holding holes at the end", overflow)
		if tol, ok := params.toleranceFor(plan.Difficulty.Level); ok && overflow <= tol.MaxOverflow {
			plan.Report.Warnings = append(plan.Report.Warnings, msg+" (within tolerance)")
		} else {
			issues = append(issues, msg)
		}
		if overflow > params.HoldingHoles {
			issues = append(issues, fmt.Sprintf("leftover %d exceeds the %d holding holes", overflow, params.HoldingHoles))
		}
	}

	prev := 0
	for i, r := range plan.Schedule.Replacements {
		if r.Threshold <= prev || r.Threshold >= n {
			issues = append(issues, fmt.Sprintf("replacement %d threshold %d out of order", i, r.Threshold))
		}
		if len(r.Colors) > params.ContainerLimit {
			issues = append(issues, fmt.Sprintf("replacement %d targets %d colors, limit %d", i, len(r.Colors), params.ContainerLimit))
		}
		prev = r.Threshold
	}

	if !dealMatches(plan.Deal, plan.Distribution.Counts) {
		issues = append(issues, fmt.Sprintf("deal of %d items does not match the distribution", len(plan.Deal)))
	}
	if f := plan.Report.RoutingFailures; f > 0 {
		issues = append(issues, fmt.Sprintf("deal order overruns the %d holding holes: %d items found no destination", params.HoldingHoles, f))
	}
	return issues
}

func dealMatches(deal []models.Color, counts map[models.Color]int) bool {
	seen := make(map[models.Color]int, len(counts))
	for _, c := range deal {
		seen[c]++
	}
	for c, n := range counts {
		if seen[c] != n {
			return false
		}
		delete(seen, c)
	}
	return len(seen) == 0
}
