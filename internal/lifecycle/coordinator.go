// Package lifecycle drives items from their shapes into containers, parks
// them in holding holes when no container matches, and promotes them once a
// matching slot frees up.
//
// A Coordinator is not safe for concurrent use. Every entry point runs to
// completion before the next one starts; the server calls it from a single
// event loop per level session.
package lifecycle

import (
	"container/heap"
	"errors"
	"fmt"
	"time"

	"github.com/gravitas-games/screwsort/internal/board"
	"github.com/gravitas-games/screwsort/internal/config"
	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/internal/metrics"
	"github.com/gravitas-games/screwsort/internal/planner"
	"github.com/gravitas-games/screwsort/internal/routing"
	"github.com/gravitas-games/screwsort/pkg/models"
)

var (
	// ErrUnknownItem is returned for an item id the coordinator never issued.
	ErrUnknownItem = errors.New("lifecycle: unknown item")
	// ErrUnknownMove is returned for a move that is not pending, including a
	// second completion of the same move.
	ErrUnknownMove = errors.New("lifecycle: unknown move")
)

// ClickResult says what a click did.
type ClickResult int

const (
	// ClickIgnored: the item is not on its shape or has not been reported
	// eligible yet.
	ClickIgnored ClickResult = iota
	// ClickCollected: a destination was reserved and the move started.
	ClickCollected
	// ClickShaking: the item is blocked and shakes in place.
	ClickShaking
	// ClickQueued: no destination; the item stays on its shape and is retried
	// when container state changes.
	ClickQueued
)

// String returns a human-readable representation of the click result.
func (r ClickResult) String() string {
	switch r {
	case ClickIgnored:
		return "ignored"
	case ClickCollected:
		return "collected"
	case ClickShaking:
		return "shaking"
	case ClickQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Options are the board rules the coordinator applies.
type Options struct {
	Capacity         int
	ContainerLimit   int
	RemovalDelay     time.Duration
	ShakeDuration    time.Duration
	CollectDuration  time.Duration
	TransferDuration time.Duration
}

// OptionsFromConfig extracts coordinator options from board config.
func OptionsFromConfig(cfg config.BoardConfig) Options {
	return Options{
		Capacity:         cfg.ContainerCapacity,
		ContainerLimit:   cfg.ContainerLimit,
		RemovalDelay:     cfg.RemovalDelay(),
		ShakeDuration:    cfg.ShakeDuration(),
		CollectDuration:  cfg.CollectDuration(),
		TransferDuration: cfg.TransferDuration(),
	}
}

type move struct {
	id   MoveID
	item models.ItemID
	kind MoveKind
	dest models.Destination
}

// Coordinator owns the items of one level and the transitions between their
// states. It is the only caller of the board's reserve, commit and release
// methods during play.
type Coordinator struct {
	opts     Options
	board    *board.Board
	router   *routing.Router
	planner  planner.ContainerPlanner
	physics  Physics
	animator Animator
	notifier Notifier
	logger   logging.Logger
	metrics  metrics.Recorder

	items    map[models.ItemID]*models.Item
	order    []models.ItemID
	nextItem models.ItemID
	demand   map[models.Color]int

	moves    map[MoveID]*move
	nextMove MoveID
	timers   *timerHeap
	timerSeq uint64
	retry    []models.ItemID
	plan     planner.ContainerPlan
}

// New creates a coordinator. physics and animator are required; a nil
// notifier, logger or recorder is replaced by a no-op.
func New(
	opts Options,
	b *board.Board,
	physics Physics,
	animator Animator,
	notifier Notifier,
	logger logging.Logger,
	rec metrics.Recorder,
) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	h := &timerHeap{}
	heap.Init(h)
	return &Coordinator{
		opts:     opts,
		board:    b,
		router:   routing.New(b, logger, rec),
		planner:  planner.ContainerPlanner{Limit: opts.ContainerLimit, Capacity: opts.Capacity},
		physics:  physics,
		animator: animator,
		notifier: notifier,
		logger:   logger,
		metrics:  rec,
		items:    make(map[models.ItemID]*models.Item),
		demand:   make(map[models.Color]int),
		moves:    make(map[MoveID]*move),
		timers:   h,
	}
}

// Board returns the board the coordinator drives.
func (c *Coordinator) Board() *board.Board { return c.board }

// SetDemand records the planned per-color item totals of the level. Remaining
// counts are measured against it.
func (c *Coordinator) SetDemand(counts map[models.Color]int) {
	c.demand = make(map[models.Color]int, len(counts))
	for col, n := range counts {
		c.demand[col] = n
	}
}

// AddItem registers a new item on shape.
func (c *Coordinator) AddItem(color models.Color, shape models.ShapeID) models.Item {
	c.nextItem++
	it := &models.Item{
		ID:    c.nextItem,
		Color: color,
		Shape: shape,
		State: models.StateOnShape,
	}
	c.items[it.ID] = it
	c.order = append(c.order, it.ID)
	return *it
}

// Item returns a copy of the item.
func (c *Coordinator) Item(id models.ItemID) (models.Item, bool) {
	it, ok := c.items[id]
	if !ok {
		return models.Item{}, false
	}
	return *it, true
}

// Items returns copies of all items in creation order.
func (c *Coordinator) Items() []models.Item {
	out := make([]models.Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.items[id])
	}
	return out
}

// PendingMoves counts moves whose completion has not been reported.
func (c *Coordinator) PendingMoves() int { return len(c.moves) }

// PendingTimers counts scheduled removals and shakes.
func (c *Coordinator) PendingTimers() int { return c.timers.Len() }

// Queued returns the items waiting for a destination, oldest first.
func (c *Coordinator) Queued() []models.ItemID {
	return append([]models.ItemID(nil), c.retry...)
}

// Plan is the last container plan computed.
func (c *Coordinator) Plan() planner.ContainerPlan { return c.plan }

// RemainingByColor counts, per color, the planned items that are not yet in
// or headed to a container. Items on shapes, in holes and not yet spawned all
// count.
func (c *Coordinator) RemainingByColor() map[models.Color]int {
	known := make(map[models.Color]int)
	done := make(map[models.Color]int)
	for _, it := range c.items {
		known[it.Color]++
		if it.InContainer() {
			done[it.Color]++
		}
	}
	out := make(map[models.Color]int)
	for col, n := range c.demand {
		if left := max(n, known[col]) - done[col]; left > 0 {
			out[col] = left
		}
	}
	for col, n := range known {
		if _, planned := c.demand[col]; planned {
			continue
		}
		if left := n - done[col]; left > 0 {
			out[col] = left
		}
	}
	return out
}

// Eligible marks an item as exposed on its shape. A queued item is retried.
func (c *Coordinator) Eligible(id models.ItemID, now time.Time) error {
	it, ok := c.items[id]
	if !ok {
		return fmt.Errorf("eligible %d: %w", id, ErrUnknownItem)
	}
	it.Exposed = true
	if c.isQueued(id) {
		c.drainRetry(now)
	}
	return nil
}

// Click handles a collection attempt on an item.
func (c *Coordinator) Click(id models.ItemID, now time.Time) (ClickResult, error) {
	it, ok := c.items[id]
	if !ok {
		return ClickIgnored, fmt.Errorf("click %d: %w", id, ErrUnknownItem)
	}
	if it.State != models.StateOnShape || it.Removed || !it.Exposed {
		c.logger.Debug("click ignored", "item", id, "state", it.State.String(), "exposed", it.Exposed)
		return ClickIgnored, nil
	}
	if !it.Detached && !c.physics.IsReachable(id) {
		c.shake(it, now)
		return ClickShaking, nil
	}
	if c.collect(it, now) {
		return ClickCollected, nil
	}
	return ClickQueued, nil
}

func (c *Coordinator) shake(it *models.Item, now time.Time) {
	it.Shaking = true
	it.ShakeUntil = now.Add(c.opts.ShakeDuration)
	c.schedule(timer{at: it.ShakeUntil, kind: timerShake, item: it.ID})
	c.notify(Notification{Type: EventItemShaking, Item: it.ID, Color: it.Color, Timestamp: now})
}

// collect routes an on-shape item and starts its move. It returns false and
// queues the item when no destination exists.
func (c *Coordinator) collect(it *models.Item, now time.Time) bool {
	dest, err := c.router.Resolve(it, routing.Options{})
	if err != nil {
		if !errors.Is(err, routing.ErrNoDestination) {
			c.logger.Error("routing failed", "item", it.ID, "error", err)
		}
		c.enqueue(it.ID)
		c.notify(Notification{Type: EventRoutingFailed, Item: it.ID, Color: it.Color, Timestamp: now})
		return false
	}
	c.dequeue(it.ID)

	it.Target = dest
	it.State = models.StateReserved

	if !it.Detached {
		it.LastPosition = c.physics.Position(it.ID)
		c.physics.Detach(it.ID)
		it.Detached = true
	}
	it.State = models.StateCollecting
	c.begin(it, MoveCollect, it.LastPosition, dest, c.opts.CollectDuration)
	return true
}

// promote reserves a container slot for an item sitting in a hole and starts
// the transfer. It returns false when no container slot is free.
func (c *Coordinator) promote(it *models.Item) bool {
	if it.State != models.StatePlacedHole {
		return false
	}
	dest, err := c.router.Resolve(it, routing.Options{ContainersOnly: true})
	if err != nil {
		if !errors.Is(err, routing.ErrNoDestination) {
			c.logger.Error("promotion routing failed", "item", it.ID, "error", err)
		}
		return false
	}
	it.Target = dest
	it.State = models.StateReReserved

	it.State = models.StateTransferring
	c.begin(it, MoveTransfer, it.Placement.Position, dest, c.opts.TransferDuration)
	return true
}

func (c *Coordinator) begin(it *models.Item, kind MoveKind, from models.Vec2, dest models.Destination, d time.Duration) {
	c.nextMove++
	m := &move{id: c.nextMove, item: it.ID, kind: kind, dest: dest}
	c.moves[m.id] = m
	c.logger.Debug("move started",
		"move", m.id,
		"item", it.ID,
		"kind", kind.String(),
		"destination", dest.Kind.String(),
	)
	c.animator.BeginMove(MoveRequest{
		ID:          m.id,
		Item:        it.ID,
		Kind:        kind,
		From:        from,
		To:          dest.Position,
		Duration:    d,
		Destination: dest,
	})
}

// CompleteMove handles the animation layer's completion report.
func (c *Coordinator) CompleteMove(id MoveID, now time.Time) error {
	m, ok := c.moves[id]
	if !ok {
		c.logger.Warn("completion for unknown move ignored", "move", id)
		return fmt.Errorf("complete move %d: %w", id, ErrUnknownMove)
	}
	delete(c.moves, id)

	it := c.items[m.item]
	if it == nil || !it.State.InFlight() {
		c.logger.Error("move completed for item without a reservation", "move", id, "item", m.item)
		c.metrics.InvariantViolation("complete_move")
		return fmt.Errorf("complete move %d: item %d: %w", id, m.item, ErrUnknownItem)
	}
	switch m.kind {
	case MoveCollect:
		c.completeCollect(it, m.dest, now)
	case MoveTransfer:
		c.completeTransfer(it, m.dest, now)
	}
	return nil
}

func (c *Coordinator) completeCollect(it *models.Item, dest models.Destination, now time.Time) {
	var (
		filled bool
		err    error
	)
	switch dest.Kind {
	case models.DestContainer:
		filled, err = c.board.CommitSlot(dest.Container, dest.Slot, it.ID, now)
	case models.DestHoldingHole:
		err = c.board.CommitHole(dest.Hole, it.ID)
	}
	if err != nil {
		c.reservationFailed(it, dest, err, now)
		// The item reached the lost slot; it is re-routed from there.
		it.LastPosition = dest.Position
		it.State = models.StateOnShape
		c.collect(it, now)
		return
	}

	it.Placement = dest
	it.Target = models.Destination{}
	it.Shape = 0
	c.notify(Notification{Type: EventItemPlaced, Item: it.ID, Color: it.Color, Container: dest.Container, Hole: dest.Hole, Destination: dest, Timestamp: now})

	if dest.Kind == models.DestContainer {
		it.State = models.StatePlacedContainer
		if filled {
			c.containerFilled(dest.Container, now)
		}
		return
	}
	it.State = models.StatePlacedHole
	// A matching container may have appeared while the item was moving.
	c.promote(it)
}

func (c *Coordinator) completeTransfer(it *models.Item, dest models.Destination, now time.Time) {
	filled, err := c.board.CommitSlot(dest.Container, dest.Slot, it.ID, now)
	if err != nil {
		c.reservationFailed(it, dest, err, now)
		it.State = models.StatePlacedHole
		c.promote(it)
		return
	}
	hole := it.Placement.Hole
	if err := c.board.VacateHole(hole, it.ID); err != nil {
		c.logger.Error("hole vacate failed after promotion", "item", it.ID, "hole", hole, "error", err)
	}

	it.Placement = dest
	it.Target = models.Destination{}
	it.State = models.StatePlacedContainer
	c.metrics.ItemPromoted()
	c.notify(Notification{Type: EventItemPromoted, Item: it.ID, Color: it.Color, Container: dest.Container, Hole: hole, Destination: dest, Timestamp: now})

	if filled {
		c.containerFilled(dest.Container, now)
	}
	// The freed hole may take a queued item.
	c.drainRetry(now)
}

// reservationFailed releases whatever is left of the reservation and reports
// the failure.
func (c *Coordinator) reservationFailed(it *models.Item, dest models.Destination, cause error, now time.Time) {
	reason := "lost"
	switch {
	case errors.Is(cause, board.ErrUnknownContainer):
		reason = "container_removed"
	case errors.Is(cause, board.ErrInvariant):
		reason = "invariant"
	}
	if err := c.board.Release(dest, it.ID); err != nil && !errors.Is(err, board.ErrReservationLost) && !errors.Is(err, board.ErrUnknownContainer) {
		c.logger.Error("release after failed commit", "item", it.ID, "error", err)
	}
	it.Target = models.Destination{}
	c.metrics.ReservationFailed(reason)
	c.logger.Warn("reservation could not be committed",
		"item", it.ID,
		"destination", dest.Kind.String(),
		"reason", reason,
		"error", cause,
	)
	c.notify(Notification{Type: EventReservationFailed, Item: it.ID, Color: it.Color, Container: dest.Container, Hole: dest.Hole, Destination: dest, Timestamp: now})
}

func (c *Coordinator) containerFilled(id models.ContainerID, now time.Time) {
	marked, err := c.board.MarkForRemoval(id)
	if err != nil {
		c.logger.Error("mark filled container", "container", id, "error", err)
		return
	}
	if !marked {
		return
	}
	cont, _ := c.board.Container(id)
	c.metrics.ContainerFilled()
	c.notify(Notification{Type: EventContainerFilled, Container: id, Color: cont.Color, Timestamp: now})
	c.schedule(timer{at: now.Add(c.opts.RemovalDelay), kind: timerRemoval, container: id})
}

// Update fires every timer due by now. A container removal triggers a
// replan, a promotion scan and a retry of queued items.
func (c *Coordinator) Update(now time.Time) {
	changed := false
	for _, t := range c.timers.due(now) {
		switch t.kind {
		case timerRemoval:
			if c.removeContainer(t.container, now) {
				changed = true
			}
		case timerShake:
			c.clearShake(t.item, now)
		}
	}
	if changed {
		c.Refresh(now)
	}
}

func (c *Coordinator) removeContainer(id models.ContainerID, now time.Time) bool {
	cont, ok := c.board.Container(id)
	if !ok {
		return false
	}
	color := cont.Color
	if err := c.board.RemoveContainer(id); err != nil {
		c.logger.Error("remove container", "container", id, "error", err)
		return false
	}
	for _, it := range c.items {
		if it.Placement.Kind == models.DestContainer && it.Placement.Container == id {
			it.Removed = true
		}
	}
	c.metrics.ContainerRemoved()
	c.notify(Notification{Type: EventContainerRemoved, Container: id, Color: color, Timestamp: now})
	return true
}

func (c *Coordinator) clearShake(id models.ItemID, now time.Time) {
	it, ok := c.items[id]
	if !ok || !it.Shaking || now.Before(it.ShakeUntil) {
		return
	}
	it.Shaking = false
	it.ShakeUntil = time.Time{}
	c.notify(Notification{Type: EventShakeCleared, Item: id, Color: it.Color, Timestamp: now})
}

// Refresh replans containers against the remaining counts, adds containers
// for uncovered colors, promotes held items in hole order and retries queued
// items. Call it at level start and whenever container state changes.
func (c *Coordinator) Refresh(now time.Time) {
	c.replan(now)
	c.promoteAll()
	c.drainRetry(now)
}

func (c *Coordinator) replan(now time.Time) {
	remaining := c.RemainingByColor()
	plan := c.planner.Plan(remaining)
	if !plan.Equal(c.plan) {
		c.logger.Debug("container plan changed", "colors", plan.Colors(), "slots", plan.TotalSlots, "fingerprint", plan.Fingerprint())
	}
	c.plan = plan

	for _, spec := range planner.Additions(plan, c.board.LiveColors(), c.opts.ContainerLimit) {
		cont, err := c.board.AddContainer(spec.Color, spec.Slots)
		if err != nil {
			c.logger.Error("add planned container", "color", spec.Color, "slots", spec.Slots, "error", err)
			continue
		}
		c.notify(Notification{
			Type:      EventContainerAdded,
			Container: cont.ID,
			Color:     cont.Color,
			Timestamp: now,
			Data:      map[string]any{"slots": spec.Slots, "lane": cont.Lane, "position": cont.Position},
		})
	}
}

// promoteAll scans holes in index order.
func (c *Coordinator) promoteAll() {
	for _, h := range c.board.Holes() {
		id := h.Occupant()
		if id == 0 {
			continue
		}
		it := c.items[id]
		if it == nil || it.State != models.StatePlacedHole || !c.router.HasRoom(it.Color) {
			continue
		}
		c.promote(it)
	}
}

// drainRetry retries queued items once each, oldest first.
func (c *Coordinator) drainRetry(now time.Time) {
	if len(c.retry) == 0 {
		return
	}
	queued := c.retry
	c.retry = nil
	for _, id := range queued {
		it := c.items[id]
		if it == nil || it.State != models.StateOnShape || it.Removed {
			continue
		}
		if !it.Detached && (!it.Exposed || !c.physics.IsReachable(id)) {
			c.logger.Debug("queued item no longer reachable", "item", id)
			continue
		}
		c.collect(it, now)
	}
}

func (c *Coordinator) enqueue(id models.ItemID) {
	if !c.isQueued(id) {
		c.retry = append(c.retry, id)
	}
}

func (c *Coordinator) dequeue(id models.ItemID) {
	for i, q := range c.retry {
		if q == id {
			c.retry = append(c.retry[:i], c.retry[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) isQueued(id models.ItemID) bool {
	for _, q := range c.retry {
		if q == id {
			return true
		}
	}
	return false
}

func (c *Coordinator) schedule(t timer) {
	c.timerSeq++
	t.seq = c.timerSeq
	heap.Push(c.timers, &t)
}

func (c *Coordinator) notify(n Notification) {
	c.notifier.Notify(n)
}
