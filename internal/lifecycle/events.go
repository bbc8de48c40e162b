package lifecycle

import (
	"time"

	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// EventType represents the type of lifecycle notification.
type EventType int

const (
	// EventItemPlaced is emitted when a collected item commits into a slot.
	EventItemPlaced EventType = iota
	// EventItemPromoted is emitted when an item moves from a hole into a container.
	EventItemPromoted
	// EventContainerAdded is emitted when replanning creates a container.
	EventContainerAdded
	// EventContainerFilled is emitted once per container, on its last commit.
	EventContainerFilled
	// EventContainerRemoved is emitted when a filled container leaves the board.
	EventContainerRemoved
	// EventRoutingFailed is emitted when a click found no destination.
	EventRoutingFailed
	// EventReservationFailed is emitted when a reservation could not be committed.
	EventReservationFailed
	// EventReplacementDue is emitted when a scheduled replacement threshold is crossed.
	EventReplacementDue
	// EventItemShaking is emitted when a blocked item is clicked.
	EventItemShaking
	// EventShakeCleared is emitted when the shake wears off.
	EventShakeCleared
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventItemPlaced:
		return "ItemPlaced"
	case EventItemPromoted:
		return "ItemPromoted"
	case EventContainerAdded:
		return "ContainerAdded"
	case EventContainerFilled:
		return "ContainerFilled"
	case EventContainerRemoved:
		return "ContainerRemoved"
	case EventRoutingFailed:
		return "RoutingFailed"
	case EventReservationFailed:
		return "ReservationFailed"
	case EventReplacementDue:
		return "ReplacementDue"
	case EventItemShaking:
		return "ItemShaking"
	case EventShakeCleared:
		return "ShakeCleared"
	default:
		return "Unknown"
	}
}

// Notification is delivered to rendering and scoring collaborators.
type Notification struct {
	Type        EventType          `json:"type"`
	Item        models.ItemID      `json:"item,omitempty"`
	Color       models.Color       `json:"color,omitempty"`
	Container   models.ContainerID `json:"container,omitempty"`
	Hole        models.HoleID      `json:"hole,omitempty"`
	Destination models.Destination `json:"destination"`
	Timestamp   time.Time          `json:"timestamp"`
	Data        map[string]any     `json:"data,omitempty"`
}

// Notifier receives lifecycle notifications. Notify must not call back into
// the coordinator.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

// ChanNotifier buffers notifications on a channel for a consumer goroutine.
// When the buffer is full the notification is dropped and logged.
type ChanNotifier struct {
	ch     chan Notification
	logger logging.Logger
}

// NewChanNotifier creates a channel notifier with the given buffer size.
func NewChanNotifier(buffer int, logger logging.Logger) *ChanNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ChanNotifier{ch: make(chan Notification, buffer), logger: logger}
}

// Notify enqueues n without blocking.
func (c *ChanNotifier) Notify(n Notification) {
	select {
	case c.ch <- n:
	default:
		c.logger.Warn("notification dropped", "type", n.Type.String(), "item", n.Item, "container", n.Container)
	}
}

// C returns the receive side.
func (c *ChanNotifier) C() <-chan Notification { return c.ch }

// NopNotifier discards notifications.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(Notification) {}
