package server

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/gravitas-games/screwsort/internal/lifecycle"
	"github.com/gravitas-games/screwsort/internal/metrics"
	"github.com/gravitas-games/screwsort/internal/network"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// sessionRegistry tracks live level sessions across connections. Each
// session is owned by exactly one connection.
type sessionRegistry struct {
	sessions *xsync.Map[string, *Connection]
	metrics  metrics.Recorder
}

func newSessionRegistry(rec metrics.Recorder) *sessionRegistry {
	return &sessionRegistry{sessions: xsync.NewMap[string, *Connection](), metrics: rec}
}

func (r *sessionRegistry) add(id string, conn *Connection) {
	r.sessions.Store(id, conn)
	r.metrics.SessionsActive(r.sessions.Size())
}

func (r *sessionRegistry) remove(id string) {
	r.sessions.Delete(id)
	r.metrics.SessionsActive(r.sessions.Size())
}

func (r *sessionRegistry) get(id string) (*Connection, bool) {
	return r.sessions.Load(id)
}

func (r *sessionRegistry) size() int { return r.sessions.Size() }

// itemReport is the client's last physics view of an item.
type itemReport struct {
	pos       models.Vec2
	reachable bool
}

// clientPhysics answers occlusion queries from what the client reported with
// item_eligible and item_click. The client runs the physics; the server only
// remembers its answers.
type clientPhysics struct {
	conn    *Connection
	reports map[models.ItemID]itemReport
}

func newClientPhysics(conn *Connection) *clientPhysics {
	return &clientPhysics{conn: conn, reports: make(map[models.ItemID]itemReport)}
}

func (p *clientPhysics) report(id models.ItemID, x, y float64, reachable bool) {
	p.reports[id] = itemReport{pos: models.Vec2{X: x, Y: y}, reachable: reachable}
}

func (p *clientPhysics) IsReachable(id models.ItemID) bool {
	r, ok := p.reports[id]
	return ok && r.reachable
}

func (p *clientPhysics) Position(id models.ItemID) models.Vec2 { return p.reports[id].pos }

func (p *clientPhysics) Detach(id models.ItemID) {
	delete(p.reports, id)
	p.conn.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypeDetachItem,
		Payload: network.DetachItemPayload{Item: int64(id)},
	})
}

// clientAnimator forwards move requests to the client, which reports
// completion with move_complete.
type clientAnimator struct {
	conn *Connection
}

func (a clientAnimator) BeginMove(req lifecycle.MoveRequest) {
	a.conn.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeBeginMove,
		Payload: network.BeginMovePayload{
			Move:       int64(req.ID),
			Item:       int64(req.Item),
			Kind:       req.Kind.String(),
			FromX:      req.From.X,
			FromY:      req.From.Y,
			ToX:        req.To.X,
			ToY:        req.To.Y,
			DurationMs: req.Duration.Milliseconds(),
		},
	})
}

func notificationPayload(n lifecycle.Notification) network.NotificationPayload {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return network.NotificationPayload{
		Event:     n.Type.String(),
		Item:      int64(n.Item),
		Color:     string(n.Color),
		Container: int64(n.Container),
		Hole:      int(n.Hole),
		Timestamp: ts.UnixMilli(),
		Data:      n.Data,
	}
}
