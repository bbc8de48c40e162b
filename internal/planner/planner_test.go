package planner

import (
	"testing"

	"github.com/gravitas-games/screwsort/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributeEvenTwoColors(t *testing.T) {
	d := Distribute(6, []models.Color{models.Red, models.Blue}, 3)

	assert.Equal(t, map[models.Color]int{models.Red: 3, models.Blue: 3}, d.Counts)
	assert.True(t, d.PerfectlyDivisible)
	assert.Zero(t, d.ExpectedOverflow)
	assert.Equal(t, 6, d.Sum())
}

func TestDistributeRemainderGoesToFirstColors(t *testing.T) {
	palette := []models.Color{models.Red, models.Blue, models.Green, models.Yellow}
	d := Distribute(11, palette, 3)

	// ceil(11/3) = 4 colors, base 2, remainder 3
	assert.Equal(t, []models.Color{models.Red, models.Blue, models.Green, models.Yellow}, d.Order)
	assert.Equal(t, 3, d.Counts[models.Red])
	assert.Equal(t, 3, d.Counts[models.Blue])
	assert.Equal(t, 3, d.Counts[models.Green])
	assert.Equal(t, 2, d.Counts[models.Yellow])
	assert.False(t, d.PerfectlyDivisible)
	assert.Equal(t, 2, d.ExpectedOverflow)
	assert.Equal(t, 11, d.Sum())
}

func TestDistributeUsesFewColorsForSmallTotals(t *testing.T) {
	palette := []models.Color{models.Red, models.Blue, models.Green}
	d := Distribute(3, palette, 3)

	assert.Equal(t, map[models.Color]int{models.Red: 3}, d.Counts)
	assert.Equal(t, []models.Color{models.Red}, d.Order)
}

func TestDistributeSumsForManyTotals(t *testing.T) {
	palette := models.DefaultPalette
	for n := 1; n <= 200; n++ {
		d := Distribute(n, palette, 4)
		require.Equal(t, n, d.Sum(), "total %d", n)
		lo, hi := n, 0
		for _, c := range d.Counts {
			lo = min(lo, c)
			hi = max(hi, c)
		}
		require.LessOrEqual(t, hi-lo, 1, "total %d is unbalanced", n)
		require.Equal(t, n%4 == 0, d.PerfectlyDivisible)
	}
}

func TestDistributeDegenerate(t *testing.T) {
	d := Distribute(0, models.DefaultPalette, 3)
	assert.Empty(t, d.Counts)
	assert.True(t, d.PerfectlyDivisible)

	d = Distribute(5, nil, 3)
	assert.Empty(t, d.Counts)
	assert.Equal(t, 2, d.ExpectedOverflow)
}

func TestContainerPlannerTakesTopColors(t *testing.T) {
	cp := ContainerPlanner{Limit: 2, Capacity: 3}
	plan := cp.Plan(map[models.Color]int{
		models.Red:    2,
		models.Blue:   7,
		models.Green:  4,
		models.Yellow: 0,
	})

	require.Len(t, plan.Containers, 2)
	assert.Equal(t, ContainerSpec{Color: models.Blue, Slots: 3}, plan.Containers[0])
	assert.Equal(t, ContainerSpec{Color: models.Green, Slots: 3}, plan.Containers[1])
	assert.Equal(t, 6, plan.TotalSlots)
}

func TestContainerPlannerClampsToRemaining(t *testing.T) {
	cp := ContainerPlanner{Limit: 3, Capacity: 4}
	plan := cp.Plan(map[models.Color]int{models.Red: 2, models.Blue: 1})

	assert.Equal(t, []ContainerSpec{
		{Color: models.Red, Slots: 2},
		{Color: models.Blue, Slots: 1},
	}, plan.Containers)
}

func TestContainerPlannerTieBreakIsStable(t *testing.T) {
	cp := ContainerPlanner{Limit: 2, Capacity: 3}
	remaining := map[models.Color]int{models.Red: 3, models.Blue: 3, models.Green: 3}
	first := cp.Plan(remaining)
	for i := 0; i < 20; i++ {
		require.True(t, first.Equal(cp.Plan(remaining)))
	}
	assert.Equal(t, []models.Color{models.Blue, models.Green}, first.Colors())
}

func TestContainerPlanEquality(t *testing.T) {
	a := ContainerPlan{Containers: []ContainerSpec{{models.Red, 3}, {models.Blue, 2}}}
	b := ContainerPlan{Containers: []ContainerSpec{{models.Red, 3}, {models.Blue, 2}}}
	swapped := ContainerPlan{Containers: []ContainerSpec{{models.Blue, 2}, {models.Red, 3}}}
	resized := ContainerPlan{Containers: []ContainerSpec{{models.Red, 3}, {models.Blue, 3}}}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.False(t, a.Equal(swapped), "order matters")
	assert.NotEqual(t, a.Fingerprint(), swapped.Fingerprint())
	assert.False(t, a.Equal(resized))
	assert.False(t, a.Equal(ContainerPlan{}))
}

func TestAdditionsAreAdditiveOnly(t *testing.T) {
	plan := ContainerPlan{Containers: []ContainerSpec{{models.Red, 3}, {models.Blue, 3}, {models.Green, 2}}}

	adds := Additions(plan, map[models.Color]int{models.Red: 1}, 3)
	assert.Equal(t, []ContainerSpec{{models.Blue, 3}, {models.Green, 2}}, adds)

	adds = Additions(plan, map[models.Color]int{models.Yellow: 1, models.Red: 1}, 3)
	assert.Equal(t, []ContainerSpec{{models.Blue, 3}}, adds, "live count never exceeds the limit")

	adds = Additions(plan, map[models.Color]int{models.Red: 1, models.Blue: 1, models.Green: 1}, 3)
	assert.Empty(t, adds)
}
