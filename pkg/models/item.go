package models

import "time"

// ItemID identifies a screw for the lifetime of a level. Zero means "none".
type ItemID int64

// ContainerID identifies a container in the board arena. Zero means "none".
type ContainerID int64

// HoleID identifies a holding hole. Holes are numbered from 1 in pool order.
type HoleID int

// ShapeID identifies the shape an item is attached to. Zero means detached.
type ShapeID int64

// Vec2 is a world position reported to the animation layer.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DestinationKind tells where a destination points.
type DestinationKind int

const (
	// DestNone means no destination.
	DestNone DestinationKind = iota
	// DestContainer is a container slot.
	DestContainer
	// DestHoldingHole is a hole in the overflow pool.
	DestHoldingHole
)

// String returns a human-readable representation of the destination kind.
func (k DestinationKind) String() string {
	switch k {
	case DestNone:
		return "None"
	case DestContainer:
		return "Container"
	case DestHoldingHole:
		return "HoldingHole"
	default:
		return "Unknown"
	}
}

// Destination is a reserved or occupied slot.
type Destination struct {
	Kind      DestinationKind `json:"kind"`
	Container ContainerID     `json:"container,omitempty"`
	Slot      int             `json:"slot"`
	Hole      HoleID          `json:"hole,omitempty"`
	Position  Vec2            `json:"position"`
}

// IsZero reports whether d points nowhere.
func (d Destination) IsZero() bool { return d.Kind == DestNone }

// ItemState is the lifecycle state of an item.
type ItemState int

const (
	// StateOnShape: attached to a shape, not yet routed.
	StateOnShape ItemState = iota
	// StateReserved: a destination is reserved, the move has not begun.
	StateReserved
	// StateCollecting: moving from the shape to its destination.
	StateCollecting
	// StatePlacedContainer: committed into a container slot. Terminal.
	StatePlacedContainer
	// StatePlacedHole: committed into a holding hole. Always eligible for promotion.
	StatePlacedHole
	// StateReReserved: sits in a hole and holds a container slot reservation.
	StateReReserved
	// StateTransferring: moving from a hole to a container slot.
	StateTransferring
)

// String returns a human-readable representation of the item state.
func (s ItemState) String() string {
	switch s {
	case StateOnShape:
		return "OnShape"
	case StateReserved:
		return "Reserved"
	case StateCollecting:
		return "Collecting"
	case StatePlacedContainer:
		return "PlacedContainer"
	case StatePlacedHole:
		return "PlacedHole"
	case StateReReserved:
		return "ReReserved"
	case StateTransferring:
		return "Transferring"
	default:
		return "Unknown"
	}
}

// InFlight reports whether the item holds a reservation that has not been
// committed yet.
func (s ItemState) InFlight() bool {
	switch s {
	case StateReserved, StateCollecting, StateReReserved, StateTransferring:
		return true
	}
	return false
}

// Item is a screw. Target holds the active reservation; Placement holds the
// slot the item currently occupies. While ReReserved or Transferring an item
// occupies a hole (Placement) and reserves a container slot (Target).
type Item struct {
	ID        ItemID      `json:"id"`
	Color     Color       `json:"color"`
	Shape     ShapeID     `json:"shape,omitempty"`
	State     ItemState   `json:"state"`
	Target    Destination `json:"target"`
	Placement Destination `json:"placement"`
	Removed   bool        `json:"removed,omitempty"`
	// Exposed is set once the shape layer reports the item as eligible.
	Exposed bool `json:"exposed,omitempty"`
	// Detached is set once the item has left its shape. A detached item on
	// its way back from a failed commit is routed without occlusion checks.
	Detached bool `json:"detached,omitempty"`
	// LastPosition is the item's last known position: where it left its
	// shape, or the slot it reached before a failed commit.
	LastPosition Vec2 `json:"last_position"`

	// Shaking is a visual sub-state; it never changes placement.
	Shaking    bool      `json:"shaking,omitempty"`
	ShakeUntil time.Time `json:"-"`
}

// InContainer reports whether the item is committed into a container or is
// moving toward one. Such items no longer count toward container demand.
func (it *Item) InContainer() bool {
	return it.Target.Kind == DestContainer || it.Placement.Kind == DestContainer
}
