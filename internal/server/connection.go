package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gravitas-games/screwsort/internal/board"
	"github.com/gravitas-games/screwsort/internal/lifecycle"
	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/internal/network"
	"github.com/gravitas-games/screwsort/internal/session"
	"github.com/gravitas-games/screwsort/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Connection represents a WebSocket connection to a client. It owns at most
// one level session at a time.
//
// The read pump hands raw messages to the event loop, which is the only
// goroutine that touches the level. Timer ticks run on the same loop, so the
// level never sees two events at once.
type Connection struct {
	ws     *websocket.Conn
	server *Server
	client *models.Client
	logger logging.Logger

	// Buffered channel for outbound messages
	send chan []byte
	// Raw inbound messages for the event loop
	inbox chan []byte

	// Owned by the event loop
	level    *session.Session
	physics  *clientPhysics
	finished bool
}

// NewConnection creates a new connection for an authenticated client.
func NewConnection(ws *websocket.Conn, server *Server, client *models.Client) *Connection {
	return &Connection{
		ws:     ws,
		server: server,
		client: client,
		logger: logging.With(server.logger, "client", client.ID),
		send:   make(chan []byte, 256),
		inbox:  make(chan []byte, 64),
	}
}

// Handle manages the connection lifecycle and blocks until it ends.
func (c *Connection) Handle() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go c.writePump()
	go func() {
		defer close(done)
		c.loop()
	}()
	c.readPump()
	<-done
	close(c.send)
}

// readPump pumps messages from the WebSocket connection to the event loop
func (c *Connection) readPump() {
	defer close(c.inbox)

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		select {
		case c.inbox <- message:
		case <-c.server.ctx.Done():
			return
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.server.ctx.Done():
			return
		}
	}
}

// loop is the level's event loop.
func (c *Connection) loop() {
	ticker := time.NewTicker(c.server.tickInterval())
	defer ticker.Stop()
	defer c.endLevel()

	for {
		select {
		case raw, ok := <-c.inbox:
			if !ok {
				return
			}
			c.handleRaw(raw)
		case now := <-ticker.C:
			if c.level != nil {
				c.level.Update(now)
				c.checkComplete()
			}
		}
	}
}

func (c *Connection) handleRaw(raw []byte) {
	msg, err := c.server.validator.Decode(raw)
	if err != nil {
		c.logger.Debug("rejected client message", "error", err)
		c.SendError(network.ErrCodeInvalidMessage, err.Error())
		return
	}
	c.handleMessage(&msg)
}

// handleMessage routes messages to appropriate handlers
func (c *Connection) handleMessage(msg *network.ClientMessage) {
	switch msg.Type {
	case network.MsgTypeStartLevel:
		var p network.StartLevelPayload
		if c.decode(msg.Payload, &p) {
			c.handleStartLevel(p)
		}
	case network.MsgTypeSpawnItem:
		var p network.SpawnItemPayload
		if c.decode(msg.Payload, &p) {
			c.handleSpawn(p)
		}
	case network.MsgTypeItemEligible:
		var p network.ItemReportPayload
		if c.decode(msg.Payload, &p) {
			c.handleEligible(p)
		}
	case network.MsgTypeItemClick:
		var p network.ItemReportPayload
		if c.decode(msg.Payload, &p) {
			c.handleClick(p)
		}
	case network.MsgTypeMoveComplete:
		var p network.MoveCompletePayload
		if c.decode(msg.Payload, &p) {
			c.handleMoveComplete(p)
		}
	case network.MsgTypePing:
		c.SendMessage(&network.ServerMessage{
			Type:    network.MsgTypePong,
			Payload: network.PongPayload{Timestamp: time.Now().Unix()},
		})
	}
}

func (c *Connection) decode(payload json.RawMessage, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		c.SendError(network.ErrCodeInvalidMessage, err.Error())
		return false
	}
	return true
}

func (c *Connection) handleStartLevel(p network.StartLevelPayload) {
	if c.level == nil && c.server.registry.size() >= c.server.config.Server.MaxSessions {
		c.SendError(network.ErrCodeServerFull, "too many active levels")
		return
	}
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	plan, err := c.server.plan(p.Level, seed)
	if err != nil {
		c.logger.Warn("level plan failed", "level", p.Level, "seed", seed, "error", err)
		c.SendError(network.ErrCodePlanFailed, err.Error())
		return
	}

	c.endLevel()
	c.physics = newClientPhysics(c)
	now := time.Now()
	level, err := session.New(plan, c.server.setup(), session.Deps{
		Physics:  c.physics,
		Animator: clientAnimator{conn: c},
		Notifier: lifecycle.NotifierFunc(c.forward),
		Logger:   c.logger,
		Metrics:  c.server.metrics,
	}, now)
	if err != nil {
		c.SendError(network.ErrCodePlanFailed, err.Error())
		return
	}
	c.level = level
	c.finished = false
	c.client.SessionID = level.ID()
	c.server.registry.add(level.ID(), c)

	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypeLevelPlan,
		Payload: levelPlanPayload(level),
	})
}

func levelPlanPayload(level *session.Session) network.LevelPlanPayload {
	plan := level.Plan()
	counts := make(map[string]int, len(plan.Distribution.Counts))
	for col, n := range plan.Distribution.Counts {
		counts[string(col)] = n
	}
	var containers []network.ContainerView
	for _, cont := range level.Board().Containers() {
		containers = append(containers, containerView(cont))
	}
	return network.LevelPlanPayload{
		SessionID:  level.ID(),
		Level:      plan.Difficulty.Level,
		Seed:       plan.Seed,
		TotalItems: plan.TotalItems,
		Counts:     counts,
		Holes:      level.Board().HoleCount(),
		Containers: containers,
		Warnings:   plan.Report.Warnings,
	}
}

func containerView(c *board.Container) network.ContainerView {
	return network.ContainerView{
		ID:    int64(c.ID),
		Color: string(c.Color),
		Slots: c.SlotCount(),
		Lane:  c.Lane,
		X:     c.Position.X,
		Y:     c.Position.Y,
	}
}

func (c *Connection) handleSpawn(p network.SpawnItemPayload) {
	if !c.requireLevel() {
		return
	}
	it, err := c.level.Spawn(models.ShapeID(p.Shape))
	if err != nil {
		c.SendError(network.ErrCodeBagEmpty, err.Error())
		return
	}
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypeItemSpawned,
		Payload: network.ItemSpawnedPayload{Item: int64(it.ID), Color: string(it.Color), Shape: p.Shape},
	})
}

func (c *Connection) handleEligible(p network.ItemReportPayload) {
	if !c.requireLevel() {
		return
	}
	id := models.ItemID(p.Item)
	c.physics.report(id, p.X, p.Y, p.Reachable)
	if err := c.level.Eligible(id, time.Now()); err != nil {
		c.SendError(network.ErrCodeUnknownItem, err.Error())
	}
}

func (c *Connection) handleClick(p network.ItemReportPayload) {
	if !c.requireLevel() {
		return
	}
	id := models.ItemID(p.Item)
	if it, ok := c.level.Coordinator().Item(id); ok && it.State == models.StateOnShape {
		c.physics.report(id, p.X, p.Y, p.Reachable)
	}
	res, err := c.level.Click(id, time.Now())
	if err != nil {
		c.SendError(network.ErrCodeUnknownItem, err.Error())
		return
	}
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypeClickResult,
		Payload: network.ClickResultPayload{Item: p.Item, Result: res.String()},
	})
}

func (c *Connection) handleMoveComplete(p network.MoveCompletePayload) {
	if !c.requireLevel() {
		return
	}
	if err := c.level.CompleteMove(lifecycle.MoveID(p.Move), time.Now()); err != nil {
		c.SendError(network.ErrCodeUnknownMove, err.Error())
		return
	}
	if err := c.level.Board().Audit(); err != nil {
		c.logger.Error("board audit failed", "session", c.level.ID(), "error", err)
	}
	c.checkComplete()
}

func (c *Connection) requireLevel() bool {
	if c.level == nil {
		c.SendError(network.ErrCodeNoSession, "start a level first")
		return false
	}
	return true
}

// forward relays lifecycle notifications. Notifications raised while the
// level is being set up are covered by the level_plan message.
func (c *Connection) forward(n lifecycle.Notification) {
	if c.level == nil {
		return
	}
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypeNotification,
		Payload: notificationPayload(n),
	})
}

func (c *Connection) checkComplete() {
	if c.finished || !c.level.IsLevelComplete() {
		return
	}
	c.finished = true
	c.logger.Info("level complete", "session", c.level.ID(), "level", c.level.Plan().Difficulty.Level)
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeLevelComplete,
		Payload: network.LevelCompletePayload{
			SessionID: c.level.ID(),
			Level:     c.level.Plan().Difficulty.Level,
			Collected: c.level.Collected(),
		},
	})
}

func (c *Connection) endLevel() {
	if c.level == nil {
		return
	}
	c.server.registry.remove(c.level.ID())
	c.level = nil
	c.physics = nil
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "type", msg.Type, "error", err)
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(code, message string) {
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypeError,
		Payload: network.ErrorPayload{Code: code, Message: message},
	})
}

// Close closes the underlying socket; Handle then winds down.
func (c *Connection) Close() {
	c.ws.Close()
}
