package planner

import (
	"encoding/binary"

	"github.com/gravitas-games/screwsort/pkg/models"
	"github.com/zeebo/xxh3"
)

// ContainerSpec is one planned container.
type ContainerSpec struct {
	Color models.Color `json:"color"`
	Slots int          `json:"slots"`
}

// ContainerPlan is the container set demanded by a remaining-items snapshot.
// It is compared against the last applied plan; it is not live state.
type ContainerPlan struct {
	Containers []ContainerSpec `json:"containers"`
	TotalSlots int             `json:"total_slots"`
}

// Equal reports whether both plans list the same (color, slots) pairs in the
// same order.
func (p ContainerPlan) Equal(o ContainerPlan) bool {
	if len(p.Containers) != len(o.Containers) {
		return false
	}
	for i := range p.Containers {
		if p.Containers[i] != o.Containers[i] {
			return false
		}
	}
	return true
}

// Colors lists the planned colors in order.
func (p ContainerPlan) Colors() []models.Color {
	out := make([]models.Color, len(p.Containers))
	for i, c := range p.Containers {
		out[i] = c.Color
	}
	return out
}

// Fingerprint hashes the ordered (color, slots) pairs. Equal plans have equal
// fingerprints.
func (p ContainerPlan) Fingerprint() uint64 {
	buf := make([]byte, 0, 16*len(p.Containers))
	var n [8]byte
	for _, c := range p.Containers {
		buf = append(buf, c.Color...)
		buf = append(buf, 0)
		binary.LittleEndian.PutUint64(n[:], uint64(c.Slots))
		buf = append(buf, n[:]...)
	}
	return xxh3.Hash(buf)
}

// ContainerPlanner sizes containers to remaining demand.
type ContainerPlanner struct {
	Limit    int // platform limit of live containers
	Capacity int // maximum slots per container
}

// Plan takes the Limit colors with the most remaining items and gives each a
// container of clamp(remaining, 1, Capacity) slots.
func (cp ContainerPlanner) Plan(remaining map[models.Color]int) ContainerPlan {
	var plan ContainerPlan
	for _, cc := range models.SortedCounts(remaining) {
		if len(plan.Containers) >= cp.Limit {
			break
		}
		slots := min(max(cc.Count, 1), cp.Capacity)
		plan.Containers = append(plan.Containers, ContainerSpec{Color: cc.Color, Slots: slots})
		plan.TotalSlots += slots
	}
	return plan
}

// Additions returns the planned containers whose color has no live container,
// in plan order, without letting the live count exceed limit. Live containers
// are never replaced.
func Additions(plan ContainerPlan, live map[models.Color]int, limit int) []ContainerSpec {
	liveCount := 0
	for _, n := range live {
		liveCount += n
	}
	var out []ContainerSpec
	for _, spec := range plan.Containers {
		if liveCount >= limit {
			break
		}
		if live[spec.Color] > 0 {
			continue
		}
		out = append(out, spec)
		liveCount++
	}
	return out
}
