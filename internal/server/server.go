package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gravitas-games/screwsort/internal/balance"
	"github.com/gravitas-games/screwsort/internal/board"
	"github.com/gravitas-games/screwsort/internal/config"
	"github.com/gravitas-games/screwsort/internal/lifecycle"
	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/internal/metrics"
	"github.com/gravitas-games/screwsort/internal/network"
	"github.com/gravitas-games/screwsort/internal/plancache"
	"github.com/gravitas-games/screwsort/internal/session"
)

// Options are the server's optional collaborators. Zero values fall back to
// no-op logging and metrics, a Redis or in-memory plan store, and JWT or
// anonymous auth depending on configuration.
type Options struct {
	Logger   logging.Logger
	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer
	Auth     Authenticator
	// PlanStore overrides the plan cache backend.
	PlanStore plancache.Store
}

// Server represents the level server
type Server struct {
	config    *config.Config
	logger    logging.Logger
	metrics   metrics.Recorder
	gatherer  prometheus.Gatherer
	upgrader  websocket.Upgrader
	httpSrv   *http.Server
	auth      Authenticator
	redis     *redis.Client
	plans     *plancache.Cache
	validator *network.Validator
	registry  *sessionRegistry

	// Connection tracking
	connections map[*Connection]bool
	connMu      sync.RWMutex

	// Shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new server instance
func New(cfg *config.Config, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	opts.Logger.Info("initializing server")

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		config:      cfg,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		gatherer:    opts.Gatherer,
		connections: make(map[*Connection]bool),
		registry:    newSessionRegistry(opts.Metrics),
		ctx:         ctx,
		cancel:      cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"access_token"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	fail := func(err error) (*Server, error) {
		srv.close()
		return nil, err
	}

	if cfg.Redis.Address != "" {
		srv.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := srv.redis.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("failed to connect to Redis: %w", err))
		}
		srv.logger.Info("connected to redis", "address", cfg.Redis.Address)
	}

	store := opts.PlanStore
	if store == nil {
		if srv.redis != nil {
			store = plancache.NewRedisStore(srv.redis)
		} else {
			store = plancache.NewMemoryStore()
		}
	}
	planner := balance.New(balance.ParamsFromConfig(cfg), srv.logger, srv.metrics)
	plans, err := plancache.New(store, planner, cfg.Redis.PlanPrefix, cfg.Balance.PlanCacheTTL(), srv.logger, srv.metrics)
	if err != nil {
		return fail(fmt.Errorf("failed to create plan cache: %w", err))
	}
	srv.plans = plans

	validator, err := network.NewValidator()
	if err != nil {
		return fail(fmt.Errorf("failed to compile message schemas: %w", err))
	}
	srv.validator = validator

	switch {
	case opts.Auth != nil:
		srv.auth = opts.Auth
	case cfg.JWT.PublicKeyURL != "":
		v, err := NewJWTValidator(ctx, cfg, srv.redis, srv.logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize JWT validator: %w", err))
		}
		srv.auth = v
	default:
		srv.logger.Warn("no jwt public key configured, accepting anonymous clients")
		srv.auth = anonymousAuth{}
	}

	srv.logger.Info("server initialized")
	return srv, nil
}

func (s *Server) tickInterval() time.Duration {
	return time.Second / time.Duration(s.config.Server.TickRate)
}

func (s *Server) plan(level int, seed int64) (balance.LevelPlan, error) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return s.plans.Plan(ctx, level, seed)
}

func (s *Server) setup() session.Setup {
	b := s.config.Board
	return session.Setup{
		Options:      lifecycle.OptionsFromConfig(b),
		HoldingHoles: b.HoldingHoles,
		Layout: board.RowLayout{
			ContainerWidth: b.ContainerWidth,
			SlotSpacing:    b.SlotSpacing,
			HoleSpacing:    b.HoleSpacing,
			ContainerRowY:  b.ContainerRowY,
			HoleRowY:       b.HoleRowY,
		},
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.config.Metrics.Enabled && s.gatherer != nil {
		mux.Handle(s.config.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start begins listening for connections
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting websocket server", "addr", addr, "ws", "/ws", "health", "/health")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connMu.Unlock()

	if err := s.close(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("server shutdown complete")
	return errors.Join(errs...)
}

// close cancels the server context and releases backing resources.
func (s *Server) close() error {
	s.cancel()
	if s.plans != nil {
		s.plans.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			return fmt.Errorf("redis close: %w", err)
		}
	}
	return nil
}

// handleWebSocket handles WebSocket connection requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	client, err := s.auth.Authenticate(r.Context(), extractTokenFromHeader(r))
	if err != nil {
		s.logger.Warn("authentication failed", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConnection(ws, s, client)

	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()

	s.logger.Info("websocket connection established", "client", client.ID, "user", client.Username, "remote", r.RemoteAddr)

	conn.Handle()

	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()

	s.logger.Info("websocket connection closed", "client", client.ID, "remote", r.RemoteAddr)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.registry.size())
}
