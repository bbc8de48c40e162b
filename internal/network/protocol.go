package network

import "encoding/json"

// Message types - Client → Server
const (
	MsgTypeStartLevel   = "start_level"
	MsgTypeSpawnItem    = "spawn_item"
	MsgTypeItemEligible = "item_eligible"
	MsgTypeItemClick    = "item_click"
	MsgTypeMoveComplete = "move_complete"
	MsgTypePing         = "ping"
)

// Message types - Server → Client
const (
	MsgTypeLevelPlan     = "level_plan"
	MsgTypeItemSpawned   = "item_spawned"
	MsgTypeDetachItem    = "detach_item"
	MsgTypeBeginMove     = "begin_move"
	MsgTypeNotification  = "notification"
	MsgTypeClickResult   = "click_result"
	MsgTypeLevelComplete = "level_complete"
	MsgTypeError         = "error"
	MsgTypePong          = "pong"
)

// Error codes carried in ErrorPayload.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeNoSession      = "NO_SESSION"
	ErrCodePlanFailed     = "PLAN_FAILED"
	ErrCodeUnknownItem    = "UNKNOWN_ITEM"
	ErrCodeUnknownMove    = "UNKNOWN_MOVE"
	ErrCodeBagEmpty       = "BAG_EMPTY"
	ErrCodeServerFull     = "SERVER_FULL"
)

// ClientMessage represents any message from client to server
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage represents any message from server to client
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// --- Client Message Payloads ---

// StartLevelPayload asks for a new level. A zero seed lets the server pick.
type StartLevelPayload struct {
	Level int   `json:"level"`
	Seed  int64 `json:"seed,omitempty"`
}

// SpawnItemPayload asks for the next planned item on a shape.
type SpawnItemPayload struct {
	Shape int64 `json:"shape"`
}

// ItemReportPayload carries the client's physics view of an item. It is the
// payload of both item_eligible and item_click.
type ItemReportPayload struct {
	Item      int64   `json:"item"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Reachable bool    `json:"reachable"`
}

// MoveCompletePayload reports a finished animation.
type MoveCompletePayload struct {
	Move int64 `json:"move"`
}

// --- Server Message Payloads ---

// ContainerView describes a live container.
type ContainerView struct {
	ID    int64   `json:"id"`
	Color string  `json:"color"`
	Slots int     `json:"slots"`
	Lane  int     `json:"lane"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// LevelPlanPayload opens a level.
type LevelPlanPayload struct {
	SessionID  string          `json:"session_id"`
	Level      int             `json:"level"`
	Seed       int64           `json:"seed"`
	TotalItems int             `json:"total_items"`
	Counts     map[string]int  `json:"counts"`
	Holes      int             `json:"holes"`
	Containers []ContainerView `json:"containers"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// ItemSpawnedPayload answers spawn_item.
type ItemSpawnedPayload struct {
	Item  int64  `json:"item"`
	Color string `json:"color"`
	Shape int64  `json:"shape"`
}

// DetachItemPayload tells the client to release an item from its shape.
type DetachItemPayload struct {
	Item int64 `json:"item"`
}

// BeginMovePayload starts an animation. The client answers with move_complete.
type BeginMovePayload struct {
	Move       int64   `json:"move"`
	Item       int64   `json:"item"`
	Kind       string  `json:"kind"`
	FromX      float64 `json:"from_x"`
	FromY      float64 `json:"from_y"`
	ToX        float64 `json:"to_x"`
	ToY        float64 `json:"to_y"`
	DurationMs int64   `json:"duration_ms"`
}

// NotificationPayload forwards a lifecycle notification.
type NotificationPayload struct {
	Event     string         `json:"event"`
	Item      int64          `json:"item,omitempty"`
	Color     string         `json:"color,omitempty"`
	Container int64          `json:"container,omitempty"`
	Hole      int            `json:"hole,omitempty"`
	Timestamp int64          `json:"timestamp"` // Unix milliseconds
	Data      map[string]any `json:"data,omitempty"`
}

// ClickResultPayload answers item_click.
type ClickResultPayload struct {
	Item   int64  `json:"item"`
	Result string `json:"result"`
}

// LevelCompletePayload closes a level.
type LevelCompletePayload struct {
	SessionID string `json:"session_id"`
	Level     int    `json:"level"`
	Collected int    `json:"collected"`
}

// PongPayload answers ping.
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
