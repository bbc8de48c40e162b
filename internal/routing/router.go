// Package routing picks a destination for an item and reserves it.
package routing

import (
	"errors"
	"fmt"

	"github.com/gravitas-games/screwsort/internal/board"
	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/internal/metrics"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// ErrNoDestination means no matching container slot and no free hole exist.
// The caller must leave the item untouched and retry later.
var ErrNoDestination = errors.New("routing: no destination available")

// Options narrows a resolve.
type Options struct {
	// ContainersOnly skips the holding hole pool. Promotions use it.
	ContainersOnly bool
}

// Router resolves destinations against one board.
type Router struct {
	board   *board.Board
	logger  logging.Logger
	metrics metrics.Recorder
}

// New creates a router over b.
func New(b *board.Board, logger logging.Logger, rec metrics.Recorder) *Router {
	if logger == nil {
		logger = logging.NewNop()
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Router{board: b, logger: logger, metrics: rec}
}

// Resolve reserves a destination for item and returns it. A matching
// container slot wins over a holding hole. If item already holds a live
// reservation, that reservation is returned unchanged.
//
// Resolve does not modify item; the caller records the returned destination.
func (r *Router) Resolve(item *models.Item, opts Options) (models.Destination, error) {
	if !item.Target.IsZero() && r.board.Holds(item.Target, item.ID) {
		return item.Target, nil
	}

	dest, err := r.reserveContainer(item)
	if err == nil {
		r.metrics.RouteResolved("container")
		return dest, nil
	}
	if !errors.Is(err, ErrNoDestination) {
		return models.Destination{}, err
	}

	if !opts.ContainersOnly {
		dest, err = r.reserveHole(item)
		if err == nil {
			r.metrics.RouteResolved("hole")
			return dest, nil
		}
		if !errors.Is(err, ErrNoDestination) {
			return models.Destination{}, err
		}
	}

	r.metrics.RouteResolved("none")
	r.logger.Debug("no destination for item", "item", item.ID, "color", item.Color, "containers_only", opts.ContainersOnly)
	return models.Destination{}, fmt.Errorf("item %d (%s): %w", item.ID, item.Color, ErrNoDestination)
}

// HasRoom reports whether a container slot is free for color without
// reserving it.
func (r *Router) HasRoom(color models.Color) bool {
	for _, c := range r.board.Containers() {
		if accepts(c, color) && c.FirstFreeSlot() >= 0 {
			return true
		}
	}
	return false
}

func (r *Router) reserveContainer(item *models.Item) (models.Destination, error) {
	for _, c := range r.board.Containers() {
		if !accepts(c, item.Color) {
			continue
		}
		for i := 0; i < c.SlotCount(); i++ {
			if c.Slot(i).State != board.SlotEmpty {
				continue
			}
			dest, err := r.board.ReserveSlot(c.ID, i, item.ID)
			if errors.Is(err, board.ErrSlotTaken) {
				continue
			}
			if err != nil {
				return models.Destination{}, err
			}
			return dest, nil
		}
	}
	return models.Destination{}, ErrNoDestination
}

func (r *Router) reserveHole(item *models.Item) (models.Destination, error) {
	for _, h := range r.board.Holes() {
		if !h.Free() {
			continue
		}
		dest, err := r.board.ReserveHole(h.ID, item.ID)
		if errors.Is(err, board.ErrSlotTaken) {
			continue
		}
		if err != nil {
			return models.Destination{}, err
		}
		return dest, nil
	}
	return models.Destination{}, ErrNoDestination
}

func accepts(c *board.Container, color models.Color) bool {
	return c.Color == color && !c.Full() && !c.MarkedForRemoval()
}
