// Package session ties a level plan to a board and its coordinator for one
// player's level.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gravitas-games/screwsort/internal/balance"
	"github.com/gravitas-games/screwsort/internal/board"
	"github.com/gravitas-games/screwsort/internal/lifecycle"
	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/internal/metrics"
	"github.com/gravitas-games/screwsort/pkg/models"
)

var (
	// ErrInvalidPlan is returned when a session is started on a plan that
	// failed validation.
	ErrInvalidPlan = errors.New("session: plan is not valid")
	// ErrBagEmpty is returned when every planned item has been spawned.
	ErrBagEmpty = errors.New("session: all items spawned")
)

// Deps are the collaborators of a session.
type Deps struct {
	Physics  lifecycle.Physics
	Animator lifecycle.Animator
	Notifier lifecycle.Notifier
	Logger   logging.Logger
	Metrics  metrics.Recorder
}

// Setup is the board shape of a session.
type Setup struct {
	Options      lifecycle.Options
	HoldingHoles int
	Layout       board.Layout
}

// Session is one level in play. Like the coordinator it wraps, it is not
// safe for concurrent use.
type Session struct {
	id    string
	plan  balance.LevelPlan
	coord *lifecycle.Coordinator
	board *board.Board
	bag   *ColorBag

	collected   int
	replacement int
	outer       lifecycle.Notifier
	logger      logging.Logger
}

// New starts a session on plan and creates the initial containers.
func New(plan balance.LevelPlan, setup Setup, deps Deps, now time.Time) (*Session, error) {
	if !plan.Valid {
		return nil, fmt.Errorf("level %d: %w", plan.Difficulty.Level, ErrInvalidPlan)
	}
	if len(plan.Deal) != plan.TotalItems {
		return nil, fmt.Errorf("level %d: deal has %d of %d items: %w", plan.Difficulty.Level, len(plan.Deal), plan.TotalItems, ErrInvalidPlan)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = lifecycle.NopNotifier{}
	}
	id := uuid.NewString()
	s := &Session{
		id:     id,
		plan:   plan,
		bag:    NewColorBag(plan.Deal),
		outer:  deps.Notifier,
		logger: deps.Logger,
	}
	s.board = board.New(setup.HoldingHoles, setup.Layout, deps.Logger, deps.Metrics)
	s.coord = lifecycle.New(setup.Options, s.board, deps.Physics, deps.Animator, lifecycle.NotifierFunc(s.observe), deps.Logger, deps.Metrics)
	s.coord.SetDemand(plan.Distribution.Counts)
	s.coord.Refresh(now)

	s.logger.Info("level session started",
		"session", id,
		"level", plan.Difficulty.Level,
		"seed", plan.Seed,
		"items", plan.TotalItems,
		"containers", len(s.board.Containers()),
	)
	return s, nil
}

// ID is the session's unique id.
func (s *Session) ID() string { return s.id }

// Plan returns the level plan the session runs on.
func (s *Session) Plan() balance.LevelPlan { return s.plan }

// Board exposes the live board for read-only inspection.
func (s *Session) Board() *board.Board { return s.board }

// Coordinator exposes the item lifecycle.
func (s *Session) Coordinator() *lifecycle.Coordinator { return s.coord }

// Collected counts items that have reached their first destination.
func (s *Session) Collected() int { return s.collected }

// Generated counts spawned items.
func (s *Session) Generated() int { return s.bag.Dealt() }

// Spawn deals the next color of the plan's deal onto shape.
func (s *Session) Spawn(shape models.ShapeID) (models.Item, error) {
	color, ok := s.bag.Next()
	if !ok {
		return models.Item{}, ErrBagEmpty
	}
	return s.coord.AddItem(color, shape), nil
}

// Eligible forwards a shape-exposure report.
func (s *Session) Eligible(id models.ItemID, now time.Time) error {
	return s.coord.Eligible(id, now)
}

// Click forwards a collection attempt.
func (s *Session) Click(id models.ItemID, now time.Time) (lifecycle.ClickResult, error) {
	return s.coord.Click(id, now)
}

// CompleteMove forwards an animation completion.
func (s *Session) CompleteMove(id lifecycle.MoveID, now time.Time) error {
	return s.coord.CompleteMove(id, now)
}

// Update advances timers.
func (s *Session) Update(now time.Time) {
	s.coord.Update(now)
}

// RemainingByColor is the coordinator's remaining demand.
func (s *Session) RemainingByColor() map[models.Color]int {
	return s.coord.RemainingByColor()
}

// IsLevelComplete reports whether every planned item has been spawned and
// placed in a container, no live container is still waiting for items and
// every holding hole is empty.
func (s *Session) IsLevelComplete() bool {
	if s.bag.Remaining() > 0 || s.Generated() != s.plan.TotalItems {
		return false
	}
	for _, it := range s.coord.Items() {
		if it.State != models.StatePlacedContainer {
			return false
		}
	}
	for _, c := range s.board.Containers() {
		if !c.Full() {
			return false
		}
	}
	return s.board.OccupiedHoles() == 0
}

// observe counts collections and fires replacement notices before passing
// every notification on.
func (s *Session) observe(n lifecycle.Notification) {
	s.outer.Notify(n)
	if n.Type != lifecycle.EventItemPlaced {
		return
	}
	s.collected++

	reps := s.plan.Schedule.Replacements
	for s.replacement < len(reps) && reps[s.replacement].Threshold <= s.collected {
		r := reps[s.replacement]
		s.replacement++
		s.logger.Info("scheduled replacement reached",
			"session", s.id,
			"threshold", r.Threshold,
			"colors", r.Colors,
			"reason", string(r.Reason),
		)
		s.outer.Notify(lifecycle.Notification{
			Type:      lifecycle.EventReplacementDue,
			Timestamp: n.Timestamp,
			Data: map[string]any{
				"threshold": r.Threshold,
				"colors":    r.Colors,
				"reason":    string(r.Reason),
			},
		})
	}
}
