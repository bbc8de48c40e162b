package balance

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/gravitas-games/screwsort/internal/planner"
	"github.com/gravitas-games/screwsort/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		Capacity:          3,
		ContainerLimit:    2,
		HoldingHoles:      5,
		Palette:           []models.Color{models.Red, models.Blue, models.Green, models.Yellow, models.Purple},
		BaseItemsPerLayer: 6,
		ComplexityWeight:  0.5,
		DensityWeight:     0.75,
		MinLayers:         2,
		MaxLayers:         12,
		MaxItems:          300,
		Strict:            true,
	}
}

func TestTwoColorPerfectLevel(t *testing.T) {
	params := testParams()
	params.Palette = []models.Color{models.Red, models.Blue}
	p := New(params, nil, nil)

	plan, err := p.Plan(Difficulty{Level: 1, Layers: 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, plan.TotalItems)
	assert.Equal(t, map[models.Color]int{models.Red: 3, models.Blue: 3}, plan.Distribution.Counts)
	assert.True(t, plan.Distribution.PerfectlyDivisible)
	assert.Empty(t, plan.Schedule.Replacements)
	assert.Equal(t, FinalState{FilledContainers: 2, OccupiedHoles: 0, ContainersExactlyFull: true}, plan.Schedule.Expected)
	assert.True(t, plan.Valid)
	assert.Empty(t, plan.Report.Issues)
}

func TestTotalIsMultipleOfCapacity(t *testing.T) {
	for _, capacity := range []int{2, 3, 4, 5} {
		params := testParams()
		params.Capacity = capacity
		params.MaxItems = 0
		for raw := 0; raw <= 400; raw++ {
			total, notes := params.TotalFor(raw)
			require.Empty(t, notes)
			require.Zero(t, total%capacity, "raw %d capacity %d", raw, capacity)
			require.GreaterOrEqual(t, total, 2*capacity)
			require.GreaterOrEqual(t, total, raw)
			require.Less(t, total-raw, max(capacity, 2*capacity-raw+1))
		}
	}
}

func TestTotalClampedToMaxItems(t *testing.T) {
	params := testParams()
	params.MaxItems = 50

	total, notes := params.TotalFor(200)
	assert.Equal(t, 48, total)
	assert.Len(t, notes, 1)
}

func TestPlansAcrossLevelsAndSeeds(t *testing.T) {
	p := New(testParams(), nil, nil)
	for level := 1; level <= 40; level++ {
		for seed := int64(1); seed <= 5; seed++ {
			plan, err := p.PlanLevel(level, seed)
			require.NoError(t, err, "level %d seed %d", level, seed)
			require.True(t, plan.Valid)
			require.Zero(t, plan.TotalItems%3)
			require.Equal(t, plan.TotalItems, plan.Distribution.Sum())
			require.Zero(t, plan.Schedule.Expected.OccupiedHoles)
			require.Len(t, plan.Deal, plan.TotalItems)
			require.Zero(t, plan.Report.RoutingFailures)
			require.Zero(t, plan.Report.PeakPending)
		}
	}
}

func TestPlanIsDeterministicForSeed(t *testing.T) {
	p := New(testParams(), nil, nil)
	a, err := p.PlanLevel(9, 42)
	require.NoError(t, err)
	b, err := p.PlanLevel(9, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, int64(42), a.Seed)
}

func TestBuildScheduleRetargetsWhenLimitExceeded(t *testing.T) {
	dist := planner.Distribution{
		Counts:   map[models.Color]int{models.Red: 6, models.Blue: 6, models.Green: 3, models.Yellow: 3},
		Total:    18,
		Capacity: 3,
	}
	s := BuildSchedule(dist, 2, 3)

	assert.Equal(t, []models.Color{models.Blue}, s.Initial)
	require.Len(t, s.Replacements, 2)
	assert.Equal(t, Replacement{Threshold: 6, Colors: []models.Color{models.Red, models.Green}, Reason: ReasonPreventOverflow}, s.Replacements[0])
	assert.Equal(t, Replacement{Threshold: 12, Colors: []models.Color{models.Green, models.Yellow}, Reason: ReasonPreventOverflow}, s.Replacements[1])
	assert.Equal(t, FinalState{FilledContainers: 6, ContainersExactlyFull: true}, s.Expected)

	assert.Equal(t, []models.Color{models.Blue}, s.ColorsAt(0))
	assert.Equal(t, []models.Color{models.Red, models.Green}, s.ColorsAt(6))
	assert.Equal(t, []models.Color{models.Green, models.Yellow}, s.ColorsAt(17))
}

func TestBuildScheduleFitsWithoutReplacement(t *testing.T) {
	dist := planner.Distribute(6, []models.Color{models.Red, models.Blue}, 3)
	s := BuildSchedule(dist, 2, 3)

	assert.Empty(t, s.Replacements)
	assert.ElementsMatch(t, []models.Color{models.Red, models.Blue}, s.Initial)
}

func threeColorDist() planner.Distribution {
	return planner.Distribution{
		Counts:   map[models.Color]int{models.Red: 3, models.Blue: 3, models.Green: 3},
		Total:    9,
		Capacity: 3,
	}
}

func TestReplayTracksHeldAndFailedItems(t *testing.T) {
	rules := Rules{Capacity: 3, ContainerLimit: 2, HoldingHoles: 1}
	// Blue and green open first; the first red is held, the second finds no
	// hole and waits until blue's removal opens a red container.
	order := []models.Color{
		models.Red, models.Red,
		models.Blue, models.Blue, models.Blue,
		models.Red,
		models.Green, models.Green, models.Green,
	}
	got := Replay(order, threeColorDist().Counts, rules)
	assert.Equal(t, ReplayResult{PeakHeld: 1, RoutingFailures: 1}, got)

	rules.HoldingHoles = 2
	got = Replay(order, threeColorDist().Counts, rules)
	assert.Equal(t, ReplayResult{PeakHeld: 2}, got)

	got = Replay([]models.Color{models.Yellow}, threeColorDist().Counts, rules)
	assert.Equal(t, ReplayResult{PeakHeld: 1, Unplaced: 1}, got)
}

func TestDealOrderNeverNeedsHoles(t *testing.T) {
	palette := []models.Color{models.Red, models.Blue, models.Green, models.Yellow, models.Purple, models.Orange, models.Pink, models.Cyan}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		capacity := 2 + rng.Intn(4)
		rules := Rules{Capacity: capacity, ContainerLimit: 1 + rng.Intn(3), HoldingHoles: 0}
		total := 2*capacity + rng.Intn(60)*capacity + rng.Intn(capacity)
		dist := planner.Distribute(total, palette[:2+rng.Intn(len(palette)-1)], capacity)

		deal := DealOrder(dist, rules, rng)
		require.Len(t, deal, total)
		require.True(t, dealMatches(deal, dist.Counts))
		require.Equal(t, ReplayResult{}, Replay(deal, dist.Counts, rules), "case %d rules %+v", i, rules)
	}
}

func TestDealOrderIsSeeded(t *testing.T) {
	rules := Rules{Capacity: 3, ContainerLimit: 2, HoldingHoles: 5}
	dist := planner.Distribute(60, []models.Color{models.Red, models.Blue, models.Green, models.Yellow}, 3)

	a := DealOrder(dist, rules, rand.New(rand.NewSource(3)))
	b := DealOrder(dist, rules, rand.New(rand.NewSource(3)))
	assert.Equal(t, a, b)
	assert.Equal(t, DealOrder(dist, rules, nil), DealOrder(dist, rules, nil))
	assert.Nil(t, DealOrder(dist, Rules{}, nil))
}

func TestCheckRejectsDealThatOverrunsHoles(t *testing.T) {
	params := testParams()
	params.HoldingHoles = 1
	p := New(params, nil, nil)
	dist := threeColorDist()

	plan := LevelPlan{
		Difficulty:   Difficulty{Level: 5},
		TotalItems:   9,
		Distribution: dist,
		Schedule:     BuildSchedule(dist, 2, 3),
		Deal: []models.Color{
			models.Red, models.Red,
			models.Blue, models.Blue, models.Blue,
			models.Red,
			models.Green, models.Green, models.Green,
		},
	}
	err := p.Check(&plan)
	require.ErrorIs(t, err, ErrPlanInvalid)
	assert.Equal(t, 1, plan.Report.RoutingFailures)
	assert.Contains(t, plan.Report.Issues, "deal order overruns the 1 holding holes: 1 items found no destination")

	plan.Report = Report{}
	plan.Deal = DealOrder(dist, p.Rules(), nil)
	require.NoError(t, p.Check(&plan))
	assert.Zero(t, plan.Report.RoutingFailures)

	plan.Report = Report{}
	plan.Deal = plan.Deal[1:]
	require.ErrorIs(t, p.Check(&plan), ErrPlanInvalid)
	assert.Contains(t, plan.Report.Issues, "deal of 8 items does not match the distribution")
}

func TestStrictValidationFailure(t *testing.T) {
	p := New(testParams(), nil, nil)
	plan, err := p.PlanLevel(1, 1)
	require.NoError(t, err)

	plan.TotalItems++
	err = p.Check(&plan)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlanInvalid))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Issues)
	assert.False(t, plan.Valid)
	assert.Contains(t, plan.Report.Issues[0], "distribution sums")
}

func TestLenientValidationWarns(t *testing.T) {
	params := testParams()
	params.Strict = false
	p := New(params, nil, nil)
	plan, err := p.PlanLevel(1, 1)
	require.NoError(t, err)

	plan.TotalItems++
	require.NoError(t, p.Check(&plan))
	assert.True(t, plan.Valid)
	assert.NotEmpty(t, plan.Report.Issues)
	assert.NotEmpty(t, plan.Report.Warnings)
	assert.False(t, plan.Report.Strict)
}

func TestToleranceAcceptsSmallOverflowOnEarlyLevels(t *testing.T) {
	params := testParams()
	params.Tolerance = []Tolerance{{UpToLevel: 3, MaxOverflow: 2}}
	p := New(params, nil, nil)

	build := func(level int) LevelPlan {
		dist := planner.Distribute(8, []models.Color{models.Red, models.Blue}, 3)
		return LevelPlan{
			Difficulty:   Difficulty{Level: level},
			TotalItems:   8,
			Distribution: dist,
			Schedule:     BuildSchedule(dist, 2, 3),
			Deal:         DealOrder(dist, p.Rules(), nil),
		}
	}

	early := build(2)
	require.NoError(t, p.Check(&early))
	assert.Equal(t, 2, early.Schedule.Expected.OccupiedHoles)
	assert.NotEmpty(t, early.Report.Warnings)

	late := build(10)
	require.ErrorIs(t, p.Check(&late), ErrPlanInvalid)
}

func TestInvalidParamsFailStrict(t *testing.T) {
	params := testParams()
	params.Palette = nil
	p := New(params, nil, nil)

	plan, err := p.PlanLevel(4, 1)
	require.ErrorIs(t, err, ErrPlanInvalid)
	assert.False(t, plan.Valid)
}

func TestDifficultyFor(t *testing.T) {
	params := testParams()

	d1 := params.DifficultyFor(1)
	assert.Equal(t, Difficulty{Level: 1, Layers: 2}, d1)

	d0 := params.DifficultyFor(-4)
	assert.Equal(t, d1, d0)

	d100 := params.DifficultyFor(100)
	assert.Equal(t, 12, d100.Layers)
	assert.Equal(t, 1.0, d100.Complexity)
	assert.Equal(t, 1.0, d100.Density)

	prev := 0
	for level := 1; level <= 60; level++ {
		raw := params.RawCount(params.DifficultyFor(level))
		require.GreaterOrEqual(t, raw, prev, "level %d", level)
		prev = raw
	}
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, ReasonCompletionPrep, reasonFor(80, 100, 1, 2))
	assert.Equal(t, ReasonPreventOverflow, reasonFor(40, 100, 2, 2))
	assert.Equal(t, ReasonColorReoptimization, reasonFor(10, 100, 1, 2))
	assert.Equal(t, ReasonBalanceRequirement, reasonFor(50, 100, 1, 2))
}
