// Package board holds the live container and holding hole arena for one level.
//
// Containers and holes are addressed by stable integer ids. Slot state is
// private to this package: the reserve, commit and release methods on Board
// are the only writers of reservation and occupancy.
package board

import (
	"errors"
	"time"

	"github.com/gravitas-games/screwsort/pkg/models"
)

var (
	// ErrUnknownContainer is returned when a container id is not live.
	ErrUnknownContainer = errors.New("board: unknown container")
	// ErrUnknownHole is returned for a hole id outside the pool.
	ErrUnknownHole = errors.New("board: unknown holding hole")
	// ErrSlotTaken means the slot was not free at reservation time.
	ErrSlotTaken = errors.New("board: slot already claimed")
	// ErrReservationLost means the item no longer holds the reservation it
	// tries to commit or release.
	ErrReservationLost = errors.New("board: reservation lost")
	// ErrInvariant marks an operation refused because it would break a board
	// invariant. It indicates a broken caller.
	ErrInvariant = errors.New("board: invariant violation")
)

// SlotState is the state of one container slot.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotReserved
	SlotOccupied
)

// String returns a human-readable representation of the slot state.
func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "Empty"
	case SlotReserved:
		return "Reserved"
	case SlotOccupied:
		return "Occupied"
	default:
		return "Unknown"
	}
}

// Slot is a container slot. Item is the reserving or occupying item.
type Slot struct {
	State SlotState     `json:"state"`
	Item  models.ItemID `json:"item,omitempty"`
}

// Container is a fixed-capacity, single-color destination.
type Container struct {
	ID       models.ContainerID `json:"id"`
	Color    models.Color       `json:"color"`
	Lane     int                `json:"lane"`
	Position models.Vec2        `json:"position"`

	slots    []Slot
	full     bool
	marked   bool
	filledAt time.Time
}

// SlotCount returns the number of slots.
func (c *Container) SlotCount() int { return len(c.slots) }

// Slot returns a copy of slot i.
func (c *Container) Slot(i int) Slot { return c.slots[i] }

// Slots returns a copy of the slot array.
func (c *Container) Slots() []Slot {
	out := make([]Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

// Full reports whether every slot is occupied.
func (c *Container) Full() bool { return c.full }

// MarkedForRemoval reports whether the container is fading out.
func (c *Container) MarkedForRemoval() bool { return c.marked }

// FilledAt is when the last slot was committed.
func (c *Container) FilledAt() time.Time { return c.filledAt }

// FirstFreeSlot returns the lowest slot index that is neither reserved nor
// occupied, or -1.
func (c *Container) FirstFreeSlot() int {
	for i, s := range c.slots {
		if s.State == SlotEmpty {
			return i
		}
	}
	return -1
}

// FreeSlots counts empty slots.
func (c *Container) FreeSlots() int {
	n := 0
	for _, s := range c.slots {
		if s.State == SlotEmpty {
			n++
		}
	}
	return n
}

// Occupied counts occupied slots.
func (c *Container) Occupied() int {
	n := 0
	for _, s := range c.slots {
		if s.State == SlotOccupied {
			n++
		}
	}
	return n
}

func (c *Container) allOccupied() bool {
	for _, s := range c.slots {
		if s.State != SlotOccupied {
			return false
		}
	}
	return len(c.slots) > 0
}

// HoldingHole is one slot of the overflow pool.
type HoldingHole struct {
	ID       models.HoleID `json:"id"`
	Position models.Vec2   `json:"position"`

	occupant   models.ItemID
	reservedBy models.ItemID
}

// Occupant returns the item sitting in the hole, or zero.
func (h *HoldingHole) Occupant() models.ItemID { return h.occupant }

// ReservedBy returns the item holding a reservation on the hole, or zero.
func (h *HoldingHole) ReservedBy() models.ItemID { return h.reservedBy }

// Free reports whether the hole has no item and no reservation.
func (h *HoldingHole) Free() bool { return h.occupant == 0 && h.reservedBy == 0 }
