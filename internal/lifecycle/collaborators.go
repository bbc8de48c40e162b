package lifecycle

import (
	"time"

	"github.com/gravitas-games/screwsort/pkg/models"
)

// Physics is the shape layer as seen from the core.
type Physics interface {
	// IsReachable is the occlusion query for a click.
	IsReachable(id models.ItemID) bool
	// Position is the item's current world position on its shape.
	Position(id models.ItemID) models.Vec2
	// Detach releases the item from its shape.
	Detach(id models.ItemID)
}

// MoveID identifies one animation request.
type MoveID int64

// MoveKind tells a collection from a promotion transfer.
type MoveKind int

const (
	MoveCollect MoveKind = iota
	MoveTransfer
)

// String returns a human-readable representation of the move kind.
func (k MoveKind) String() string {
	switch k {
	case MoveCollect:
		return "collect"
	case MoveTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// MoveRequest asks the animation layer to move an item from A to B over
// Duration. The animator must report completion exactly once per ID.
type MoveRequest struct {
	ID          MoveID             `json:"id"`
	Item        models.ItemID      `json:"item"`
	Kind        MoveKind           `json:"kind"`
	From        models.Vec2        `json:"from"`
	To          models.Vec2        `json:"to"`
	Duration    time.Duration      `json:"duration"`
	Destination models.Destination `json:"destination"`
}

// Animator starts moves. Completion comes back through Coordinator.CompleteMove.
type Animator interface {
	BeginMove(req MoveRequest)
}
