package balance

import (
	"math/rand"

	"github.com/gravitas-games/screwsort/internal/planner"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// Rules are the board rules a deal is simulated under.
type Rules struct {
	Capacity       int
	ContainerLimit int
	HoldingHoles   int
}

// ReplayResult summarizes a simulated level.
type ReplayResult struct {
	// PeakHeld is the most items sitting in holding holes at once.
	PeakHeld int
	// RoutingFailures counts items that found neither a container slot nor
	// a free hole when collected.
	RoutingFailures int
	// Unplaced counts items still outside a container at the end.
	Unplaced int
}

type simContainer struct {
	color         models.Color
	slots, filled int
}

// liveBoard mirrors the runtime board: containers are sized by the container
// planner against remaining demand, added without replacing live ones, and
// removed as soon as they fill. Held items are promoted in hole order and
// items that could not be routed are retried oldest first.
type liveBoard struct {
	rules      Rules
	planner    planner.ContainerPlanner
	containers []*simContainer
	holes      []models.Color // "" marks a free hole
	queue      []models.Color
	remaining  map[models.Color]int // not yet in a container

	held   int
	result ReplayResult
}

func newLiveBoard(counts map[models.Color]int, r Rules) *liveBoard {
	b := &liveBoard{
		rules:     r,
		planner:   planner.ContainerPlanner{Limit: r.ContainerLimit, Capacity: r.Capacity},
		holes:     make([]models.Color, max(r.HoldingHoles, 0)),
		remaining: make(map[models.Color]int, len(counts)),
	}
	for c, n := range counts {
		b.remaining[c] = n
	}
	b.refresh()
	return b
}

func (b *liveBoard) open(color models.Color) *simContainer {
	for _, c := range b.containers {
		if c.color == color && c.filled < c.slots {
			return c
		}
	}
	return nil
}

// openColors lists colors with a free container slot, in container order.
func (b *liveBoard) openColors() []models.Color {
	var out []models.Color
	for _, c := range b.containers {
		if c.filled < c.slots {
			out = append(out, c.color)
		}
	}
	return out
}

func (b *liveBoard) collect(color models.Color) {
	if c := b.open(color); c != nil {
		b.fill(c)
		return
	}
	for i, h := range b.holes {
		if h == "" {
			b.holes[i] = color
			b.held++
			b.result.PeakHeld = max(b.result.PeakHeld, b.held)
			return
		}
	}
	b.result.RoutingFailures++
	b.queue = append(b.queue, color)
}

func (b *liveBoard) fill(c *simContainer) {
	c.filled++
	b.remaining[c.color]--
	if c.filled < c.slots {
		return
	}
	for i, live := range b.containers {
		if live == c {
			b.containers = append(b.containers[:i], b.containers[i+1:]...)
			break
		}
	}
	b.refresh()
}

func (b *liveBoard) refresh() {
	live := make(map[models.Color]int, len(b.containers))
	for _, c := range b.containers {
		live[c.color]++
	}
	plan := b.planner.Plan(b.remaining)
	for _, spec := range planner.Additions(plan, live, b.rules.ContainerLimit) {
		b.containers = append(b.containers, &simContainer{color: spec.Color, slots: spec.Slots})
	}

	for i, h := range b.holes {
		if h == "" {
			continue
		}
		if c := b.open(h); c != nil {
			b.holes[i] = ""
			b.held--
			b.fill(c)
		}
	}

	queued := b.queue
	b.queue = nil
	for _, color := range queued {
		b.collect(color)
	}
}

func (b *liveBoard) finish() ReplayResult {
	r := b.result
	r.Unplaced = b.held + len(b.queue)
	return r
}

// DealOrder is the sequence in which the level's items are spawned. Each
// item is drawn, uniformly by rng, from the colors that have a free container
// slot on a simulated board at that point; only when no such color is left
// does it fall back to the color with the most undealt items. Collected in
// this order, no item ever waits in a holding hole. A nil rng takes the first
// open color.
func DealOrder(dist planner.Distribution, r Rules, rng *rand.Rand) []models.Color {
	if r.Capacity < 1 || r.ContainerLimit < 1 {
		return nil
	}
	b := newLiveBoard(dist.Counts, r)
	undealt := make(map[models.Color]int, len(dist.Counts))
	total := 0
	for c, n := range dist.Counts {
		undealt[c] = n
		total += n
	}

	out := make([]models.Color, 0, total)
	for len(out) < total {
		var candidates []models.Color
		for _, c := range b.openColors() {
			if undealt[c] > 0 {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) == 0 {
			candidates = []models.Color{models.SortedCounts(undealt)[0].Color}
		}
		color := candidates[0]
		if rng != nil && len(candidates) > 1 {
			color = candidates[rng.Intn(len(candidates))]
		}
		undealt[color]--
		out = append(out, color)
		b.collect(color)
	}
	return out
}

// Replay collects items in order on a simulated board seeded with the
// planned counts and reports how the holding holes fared.
func Replay(order []models.Color, counts map[models.Color]int, r Rules) ReplayResult {
	if r.Capacity < 1 || r.ContainerLimit < 1 {
		return ReplayResult{Unplaced: len(order)}
	}
	b := newLiveBoard(counts, r)
	for _, color := range order {
		b.collect(color)
	}
	return b.finish()
}
