package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/screwsort/internal/config"
	"github.com/gravitas-games/screwsort/internal/metrics"
	"github.com/gravitas-games/screwsort/internal/network"
	"github.com/gravitas-games/screwsort/internal/plancache"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// testConfig plans six items over two colors for level 1.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Balance.Palette = []models.Color{models.Red, models.Blue}
	cfg.Balance.MinLayers = 1
	cfg.Balance.BaseItemsPerLayer = 6
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(cfg, opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return srv, ts
}

type wsClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &wsClient{t: t, ws: ws}
}

func (c *wsClient) send(msgType string, payload any) {
	c.t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(c.t, c.ws.WriteJSON(msg))
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil skips messages until one of msgType arrives.
func (c *wsClient) readUntil(msgType string, into any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg received
		require.NoError(c.t, c.ws.ReadJSON(&msg))
		if msg.Type != msgType {
			continue
		}
		if into != nil {
			require.NoError(c.t, json.Unmarshal(msg.Payload, into))
		}
		return
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Options{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheus(reg, "screwsort")
	require.NoError(t, err)
	_, ts := newTestServer(t, testConfig(), Options{Metrics: rec, Gatherer: reg})

	c := dial(t, ts)
	c.send(network.MsgTypeStartLevel, network.StartLevelPayload{Level: 1, Seed: 7})
	c.readUntil(network.MsgTypeLevelPlan, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "screwsort_")
}

func TestPingAndInvalidMessages(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Options{})
	c := dial(t, ts)

	c.send(network.MsgTypePing, nil)
	c.readUntil(network.MsgTypePong, nil)

	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`)))
	var e network.ErrorPayload
	c.readUntil(network.MsgTypeError, &e)
	assert.Equal(t, network.ErrCodeInvalidMessage, e.Code)

	c.send(network.MsgTypeSpawnItem, network.SpawnItemPayload{Shape: 1})
	c.readUntil(network.MsgTypeError, &e)
	assert.Equal(t, network.ErrCodeNoSession, e.Code)
}

func TestLevelFlow(t *testing.T) {
	srv, ts := newTestServer(t, testConfig(), Options{})
	c := dial(t, ts)

	c.send(network.MsgTypeStartLevel, network.StartLevelPayload{Level: 1, Seed: 7})
	var plan network.LevelPlanPayload
	c.readUntil(network.MsgTypeLevelPlan, &plan)
	assert.NotEmpty(t, plan.SessionID)
	assert.Equal(t, 1, plan.Level)
	assert.Equal(t, int64(7), plan.Seed)
	assert.Equal(t, 6, plan.TotalItems)
	assert.Equal(t, map[string]int{"red": 3, "blue": 3}, plan.Counts)
	assert.Equal(t, 5, plan.Holes)
	assert.Len(t, plan.Containers, 2)

	// The registry is updated on the connection's loop before level_plan goes out.
	_, ok := srv.registry.get(plan.SessionID)
	assert.True(t, ok)

	c.send(network.MsgTypeSpawnItem, network.SpawnItemPayload{Shape: 1})
	var spawned network.ItemSpawnedPayload
	c.readUntil(network.MsgTypeItemSpawned, &spawned)
	assert.Contains(t, plan.Counts, spawned.Color)

	report := network.ItemReportPayload{Item: spawned.Item, X: 10, Y: 10, Reachable: true}
	c.send(network.MsgTypeItemClick, report)
	var click network.ClickResultPayload
	c.readUntil(network.MsgTypeClickResult, &click)
	assert.Equal(t, "ignored", click.Result, "not reported eligible yet")

	c.send(network.MsgTypeItemEligible, report)
	c.send(network.MsgTypeItemClick, report)
	var mv network.BeginMovePayload
	c.readUntil(network.MsgTypeBeginMove, &mv)
	assert.Equal(t, spawned.Item, mv.Item)
	assert.Equal(t, "collect", mv.Kind)
	assert.Equal(t, 10.0, mv.FromX)

	c.readUntil(network.MsgTypeClickResult, &click)
	assert.Equal(t, "collected", click.Result)

	c.send(network.MsgTypeMoveComplete, network.MoveCompletePayload{Move: mv.Move})
	var n network.NotificationPayload
	c.readUntil(network.MsgTypeNotification, &n)
	assert.Equal(t, "ItemPlaced", n.Event)
	assert.Equal(t, spawned.Item, n.Item)

	c.send(network.MsgTypeMoveComplete, network.MoveCompletePayload{Move: mv.Move})
	var e network.ErrorPayload
	c.readUntil(network.MsgTypeError, &e)
	assert.Equal(t, network.ErrCodeUnknownMove, e.Code)
}

func TestBlockedClickShakes(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Options{})
	c := dial(t, ts)

	c.send(network.MsgTypeStartLevel, network.StartLevelPayload{Level: 1, Seed: 3})
	c.readUntil(network.MsgTypeLevelPlan, nil)

	c.send(network.MsgTypeSpawnItem, network.SpawnItemPayload{Shape: 2})
	var spawned network.ItemSpawnedPayload
	c.readUntil(network.MsgTypeItemSpawned, &spawned)

	blocked := network.ItemReportPayload{Item: spawned.Item, Reachable: false}
	c.send(network.MsgTypeItemEligible, blocked)
	c.send(network.MsgTypeItemClick, blocked)
	var click network.ClickResultPayload
	c.readUntil(network.MsgTypeClickResult, &click)
	assert.Equal(t, "shaking", click.Result)

	c.send(network.MsgTypeItemClick, network.ItemReportPayload{Item: 999, Reachable: true})
	var e network.ErrorPayload
	c.readUntil(network.MsgTypeError, &e)
	assert.Equal(t, network.ErrCodeUnknownItem, e.Code)
}

func TestFullLevelCompletes(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Options{})
	c := dial(t, ts)

	c.send(network.MsgTypeStartLevel, network.StartLevelPayload{Level: 1, Seed: 11})
	var plan network.LevelPlanPayload
	c.readUntil(network.MsgTypeLevelPlan, &plan)

	for i := 0; i < plan.TotalItems; i++ {
		c.send(network.MsgTypeSpawnItem, network.SpawnItemPayload{Shape: 1})
		var spawned network.ItemSpawnedPayload
		c.readUntil(network.MsgTypeItemSpawned, &spawned)

		report := network.ItemReportPayload{Item: spawned.Item, Reachable: true}
		c.send(network.MsgTypeItemEligible, report)
		c.send(network.MsgTypeItemClick, report)
		var mv network.BeginMovePayload
		c.readUntil(network.MsgTypeBeginMove, &mv)
		c.send(network.MsgTypeMoveComplete, network.MoveCompletePayload{Move: mv.Move})
	}

	var done network.LevelCompletePayload
	c.readUntil(network.MsgTypeLevelComplete, &done)
	assert.Equal(t, plan.SessionID, done.SessionID)
	assert.Equal(t, plan.TotalItems, done.Collected)

	c.send(network.MsgTypeSpawnItem, network.SpawnItemPayload{Shape: 1})
	var e network.ErrorPayload
	c.readUntil(network.MsgTypeError, &e)
	assert.Equal(t, network.ErrCodeBagEmpty, e.Code)
}

func TestServerFull(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxSessions = 1
	_, ts := newTestServer(t, cfg, Options{})

	first := dial(t, ts)
	first.send(network.MsgTypeStartLevel, network.StartLevelPayload{Level: 1, Seed: 1})
	first.readUntil(network.MsgTypeLevelPlan, nil)

	second := dial(t, ts)
	second.send(network.MsgTypeStartLevel, network.StartLevelPayload{Level: 1, Seed: 1})
	var e network.ErrorPayload
	second.readUntil(network.MsgTypeError, &e)
	assert.Equal(t, network.ErrCodeServerFull, e.Code)
}

func TestPlansAreCached(t *testing.T) {
	store := plancache.NewMemoryStore()
	_, ts := newTestServer(t, testConfig(), Options{PlanStore: store})

	c := dial(t, ts)
	c.send(network.MsgTypeStartLevel, network.StartLevelPayload{Level: 1, Seed: 5})
	c.readUntil(network.MsgTypeLevelPlan, nil)
	c.send(network.MsgTypeStartLevel, network.StartLevelPayload{Level: 1, Seed: 5})
	c.readUntil(network.MsgTypeLevelPlan, nil)

	assert.Equal(t, 1, store.Len())
}

func TestRejectsUnauthenticated(t *testing.T) {
	key := testKey(t)
	v := newTestValidator(key)
	_, ts := newTestServer(t, testConfig(), Options{Auth: v})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
