package board

import (
	"errors"
	"fmt"
	"time"

	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/internal/metrics"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// Board owns the live containers and the holding hole pool of one level.
// It is not safe for concurrent use; the session event loop serializes access.
type Board struct {
	containers []*Container // live, creation order
	holes      []*HoldingHole
	nextID     models.ContainerID

	layout  Layout
	logger  logging.Logger
	metrics metrics.Recorder
}

// New creates a board with a fixed pool of holeCount holding holes.
func New(holeCount int, layout Layout, logger logging.Logger, rec metrics.Recorder) *Board {
	if logger == nil {
		logger = logging.NewNop()
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	b := &Board{
		holes:   make([]*HoldingHole, holeCount),
		layout:  layout,
		logger:  logger,
		metrics: rec,
	}
	for i := range b.holes {
		b.holes[i] = &HoldingHole{
			ID:       models.HoleID(i + 1),
			Position: layout.HolePosition(i),
		}
	}
	return b
}

// Containers returns the live containers in creation order.
func (b *Board) Containers() []*Container {
	out := make([]*Container, len(b.containers))
	copy(out, b.containers)
	return out
}

// Container looks up a live container.
func (b *Board) Container(id models.ContainerID) (*Container, bool) {
	for _, c := range b.containers {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Holes returns the holding hole pool in index order.
func (b *Board) Holes() []*HoldingHole {
	out := make([]*HoldingHole, len(b.holes))
	copy(out, b.holes)
	return out
}

// Hole looks up a hole by id.
func (b *Board) Hole(id models.HoleID) (*HoldingHole, bool) {
	i := int(id) - 1
	if i < 0 || i >= len(b.holes) {
		return nil, false
	}
	return b.holes[i], true
}

// HoleCount is the fixed pool size.
func (b *Board) HoleCount() int { return len(b.holes) }

// OccupiedHoles counts holes holding an item.
func (b *Board) OccupiedHoles() int {
	n := 0
	for _, h := range b.holes {
		if h.occupant != 0 {
			n++
		}
	}
	return n
}

// LiveColors counts live containers per color, including ones marked for removal.
func (b *Board) LiveColors() map[models.Color]int {
	out := make(map[models.Color]int, len(b.containers))
	for _, c := range b.containers {
		out[c.Color]++
	}
	return out
}

// AddContainer creates an empty container at the lowest free lane.
func (b *Board) AddContainer(color models.Color, slots int) (*Container, error) {
	if slots < 1 {
		return nil, b.violation("add_container", fmt.Errorf("container %s needs at least one slot, got %d", color, slots))
	}
	b.nextID++
	lane := b.freeLane()
	pos := b.layout.ContainerPosition(lane)
	c := &Container{
		ID:       b.nextID,
		Color:    color,
		Lane:     lane,
		Position: pos,
		slots:    make([]Slot, slots),
	}
	b.containers = append(b.containers, c)
	return c, nil
}

func (b *Board) freeLane() int {
	used := make(map[int]bool, len(b.containers))
	for _, c := range b.containers {
		used[c.Lane] = true
	}
	lane := 0
	for used[lane] {
		lane++
	}
	return lane
}

// MarkForRemoval flags a full container as fading out. It returns false if
// the container was already marked.
func (b *Board) MarkForRemoval(id models.ContainerID) (bool, error) {
	c, ok := b.Container(id)
	if !ok {
		return false, fmt.Errorf("mark container %d: %w", id, ErrUnknownContainer)
	}
	if !c.full {
		return false, b.violation("mark_for_removal", fmt.Errorf("container %d is not full", id))
	}
	if c.marked {
		return false, nil
	}
	c.marked = true
	return true, nil
}

// RemoveContainer drops a full container from the live set.
func (b *Board) RemoveContainer(id models.ContainerID) error {
	for i, c := range b.containers {
		if c.ID != id {
			continue
		}
		if !c.full {
			return b.violation("remove_container", fmt.Errorf("container %d is not full", id))
		}
		b.containers = append(b.containers[:i], b.containers[i+1:]...)
		return nil
	}
	return fmt.Errorf("remove container %d: %w", id, ErrUnknownContainer)
}

// SlotPosition returns the world position of a container slot.
func (b *Board) SlotPosition(c *Container, slot int) models.Vec2 {
	return b.layout.SlotPosition(c.Position, slot, len(c.slots))
}

// ReserveSlot claims an empty slot for item. The freedom check and the write
// happen in one step.
func (b *Board) ReserveSlot(id models.ContainerID, slot int, item models.ItemID) (models.Destination, error) {
	c, s, err := b.slot(id, slot)
	if err != nil {
		return models.Destination{}, err
	}
	if c.full || c.marked {
		return models.Destination{}, fmt.Errorf("reserve container %d slot %d: %w", id, slot, ErrSlotTaken)
	}
	if s.State != SlotEmpty {
		return models.Destination{}, fmt.Errorf("reserve container %d slot %d (%s by %d): %w", id, slot, s.State, s.Item, ErrSlotTaken)
	}
	s.State = SlotReserved
	s.Item = item
	return models.Destination{
		Kind:      models.DestContainer,
		Container: id,
		Slot:      slot,
		Position:  b.SlotPosition(c, slot),
	}, nil
}

// ReserveHole claims a free holding hole for item.
func (b *Board) ReserveHole(id models.HoleID, item models.ItemID) (models.Destination, error) {
	h, ok := b.Hole(id)
	if !ok {
		return models.Destination{}, fmt.Errorf("reserve hole %d: %w", id, ErrUnknownHole)
	}
	if !h.Free() {
		return models.Destination{}, fmt.Errorf("reserve hole %d: %w", id, ErrSlotTaken)
	}
	h.reservedBy = item
	return models.Destination{Kind: models.DestHoldingHole, Hole: id, Position: h.Position}, nil
}

// CommitSlot turns item's reservation into occupancy. filled reports whether
// this commit made the container full.
func (b *Board) CommitSlot(id models.ContainerID, slot int, item models.ItemID, now time.Time) (filled bool, err error) {
	c, s, err := b.slot(id, slot)
	if err != nil {
		return false, err
	}
	switch {
	case s.State == SlotOccupied:
		return false, b.violation("commit_slot", fmt.Errorf("item %d commits into container %d slot %d already occupied by %d", item, id, slot, s.Item))
	case s.State == SlotReserved && s.Item != item:
		return false, b.violation("commit_slot", fmt.Errorf("item %d commits into container %d slot %d reserved by %d", item, id, slot, s.Item))
	case s.State == SlotEmpty:
		return false, fmt.Errorf("commit container %d slot %d for item %d: %w", id, slot, item, ErrReservationLost)
	}
	s.State = SlotOccupied
	if c.allOccupied() && !c.full {
		c.full = true
		c.filledAt = now
		return true, nil
	}
	return false, nil
}

// CommitHole moves a hole from reserved to occupied by item.
func (b *Board) CommitHole(id models.HoleID, item models.ItemID) error {
	h, ok := b.Hole(id)
	if !ok {
		return fmt.Errorf("commit hole %d: %w", id, ErrUnknownHole)
	}
	if h.occupant != 0 {
		return b.violation("commit_hole", fmt.Errorf("item %d commits into hole %d occupied by %d", item, id, h.occupant))
	}
	if h.reservedBy != item {
		if h.reservedBy != 0 {
			return b.violation("commit_hole", fmt.Errorf("item %d commits into hole %d reserved by %d", item, id, h.reservedBy))
		}
		return fmt.Errorf("commit hole %d for item %d: %w", id, item, ErrReservationLost)
	}
	h.reservedBy = 0
	h.occupant = item
	return nil
}

// ReleaseSlot drops item's reservation on a container slot.
func (b *Board) ReleaseSlot(id models.ContainerID, slot int, item models.ItemID) error {
	_, s, err := b.slot(id, slot)
	if err != nil {
		return err
	}
	if s.State != SlotReserved || s.Item != item {
		return fmt.Errorf("release container %d slot %d for item %d: %w", id, slot, item, ErrReservationLost)
	}
	s.State = SlotEmpty
	s.Item = 0
	return nil
}

// ReleaseHole drops item's reservation on a hole.
func (b *Board) ReleaseHole(id models.HoleID, item models.ItemID) error {
	h, ok := b.Hole(id)
	if !ok {
		return fmt.Errorf("release hole %d: %w", id, ErrUnknownHole)
	}
	if h.reservedBy != item {
		return fmt.Errorf("release hole %d for item %d: %w", id, item, ErrReservationLost)
	}
	h.reservedBy = 0
	return nil
}

// VacateHole clears the occupant of a hole once its item has been committed
// elsewhere.
func (b *Board) VacateHole(id models.HoleID, item models.ItemID) error {
	h, ok := b.Hole(id)
	if !ok {
		return fmt.Errorf("vacate hole %d: %w", id, ErrUnknownHole)
	}
	if h.occupant != item {
		return b.violation("vacate_hole", fmt.Errorf("item %d vacates hole %d occupied by %d", item, id, h.occupant))
	}
	h.occupant = 0
	return nil
}

// Release drops whatever reservation dest describes for item.
func (b *Board) Release(dest models.Destination, item models.ItemID) error {
	switch dest.Kind {
	case models.DestContainer:
		return b.ReleaseSlot(dest.Container, dest.Slot, item)
	case models.DestHoldingHole:
		return b.ReleaseHole(dest.Hole, item)
	default:
		return nil
	}
}

// Holds reports whether item still holds the reservation described by dest.
func (b *Board) Holds(dest models.Destination, item models.ItemID) bool {
	switch dest.Kind {
	case models.DestContainer:
		c, ok := b.Container(dest.Container)
		if !ok || dest.Slot < 0 || dest.Slot >= len(c.slots) {
			return false
		}
		s := c.slots[dest.Slot]
		return s.State == SlotReserved && s.Item == item
	case models.DestHoldingHole:
		h, ok := b.Hole(dest.Hole)
		return ok && h.reservedBy == item
	default:
		return false
	}
}

func (b *Board) slot(id models.ContainerID, slot int) (*Container, *Slot, error) {
	c, ok := b.Container(id)
	if !ok {
		return nil, nil, fmt.Errorf("container %d: %w", id, ErrUnknownContainer)
	}
	if slot < 0 || slot >= len(c.slots) {
		return nil, nil, b.violation("slot_index", fmt.Errorf("container %d has no slot %d", id, slot))
	}
	return c, &c.slots[slot], nil
}

// violation logs loudly and returns an ErrInvariant wrapping cause.
func (b *Board) violation(op string, cause error) error {
	b.logger.Error("board invariant violation refused", "op", op, "error", cause)
	b.metrics.InvariantViolation(op)
	return fmt.Errorf("%w: %w", ErrInvariant, cause)
}

// Audit checks every board invariant and returns all breaches joined.
func (b *Board) Audit() error {
	var errs []error
	reserved := make(map[models.ItemID]int)
	occupied := make(map[models.ItemID]int)

	for _, c := range b.containers {
		for i, s := range c.slots {
			switch s.State {
			case SlotEmpty:
				if s.Item != 0 {
					errs = append(errs, fmt.Errorf("container %d slot %d is empty but names item %d", c.ID, i, s.Item))
				}
			case SlotReserved:
				reserved[s.Item]++
			case SlotOccupied:
				occupied[s.Item]++
			}
		}
		if c.full != c.allOccupied() {
			errs = append(errs, fmt.Errorf("container %d full flag %v disagrees with slots", c.ID, c.full))
		}
	}
	for _, h := range b.holes {
		if h.occupant != 0 && h.reservedBy != 0 {
			errs = append(errs, fmt.Errorf("hole %d is occupied by %d and reserved by %d", h.ID, h.occupant, h.reservedBy))
		}
		if h.reservedBy != 0 {
			reserved[h.reservedBy]++
		}
		if h.occupant != 0 {
			occupied[h.occupant]++
		}
	}
	for item, n := range reserved {
		if n > 1 {
			errs = append(errs, fmt.Errorf("item %d holds %d reservations", item, n))
		}
	}
	for item, n := range occupied {
		if n > 1 {
			errs = append(errs, fmt.Errorf("item %d occupies %d slots", item, n))
		}
	}
	return errors.Join(errs...)
}
