package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gravitas-games/screwsort/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	JWT     JWTConfig     `yaml:"jwt"`
	Redis   RedisConfig   `yaml:"redis"`
	Board   BoardConfig   `yaml:"board"`
	Balance BalanceConfig `yaml:"balance"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	TickRate    int    `yaml:"tick_rate"` // Hz, drives removal and shake timers
	MaxSessions int    `yaml:"max_sessions"`
}

// JWTConfig holds JWT authentication settings
type JWTConfig struct {
	Issuer              string `yaml:"issuer"`
	PublicKeyURL        string `yaml:"public_key_url"`
	PublicKeyRefreshHrs int    `yaml:"public_key_refresh_hours"`
}

// RedisConfig holds Redis connection settings. An empty address disables the
// plan cache and the blacklist check.
type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	BlacklistPrefix string `yaml:"blacklist_prefix"`
	PlanPrefix      string `yaml:"plan_prefix"`
}

// BoardConfig holds container and holding hole settings
type BoardConfig struct {
	ContainerCapacity int `yaml:"container_capacity"`
	ContainerLimit    int `yaml:"container_limit"` // platform limit of live containers
	HoldingHoles      int `yaml:"holding_holes"`

	RemovalDelayMs int `yaml:"removal_delay_ms"`
	ShakeMs        int `yaml:"shake_ms"`
	CollectMoveMs  int `yaml:"collect_move_ms"`
	TransferMoveMs int `yaml:"transfer_move_ms"`

	// Layout, in world units
	ContainerWidth float64 `yaml:"container_width"`
	SlotSpacing    float64 `yaml:"slot_spacing"`
	HoleSpacing    float64 `yaml:"hole_spacing"`
	ContainerRowY  float64 `yaml:"container_row_y"`
	HoleRowY       float64 `yaml:"hole_row_y"`
}

// RemovalDelay is the time a full container stays visible before removal.
func (b BoardConfig) RemovalDelay() time.Duration {
	return time.Duration(b.RemovalDelayMs) * time.Millisecond
}

// ShakeDuration is how long a blocked click shakes the item.
func (b BoardConfig) ShakeDuration() time.Duration {
	return time.Duration(b.ShakeMs) * time.Millisecond
}

// CollectDuration is the shape-to-slot move time.
func (b BoardConfig) CollectDuration() time.Duration {
	return time.Duration(b.CollectMoveMs) * time.Millisecond
}

// TransferDuration is the hole-to-container move time.
func (b BoardConfig) TransferDuration() time.Duration {
	return time.Duration(b.TransferMoveMs) * time.Millisecond
}

// BalanceConfig holds level pre-computation settings
type BalanceConfig struct {
	Palette           []models.Color  `yaml:"palette"`
	BaseItemsPerLayer float64         `yaml:"base_items_per_layer"`
	ComplexityWeight  float64         `yaml:"complexity_weight"`
	DensityWeight     float64         `yaml:"density_weight"`
	MinLayers         int             `yaml:"min_layers"`
	MaxLayers         int             `yaml:"max_layers"`
	MaxItems          int             `yaml:"max_items"`
	Lenient           bool            `yaml:"lenient"` // accept imperfect plans with a warning
	Tolerance         []ToleranceTier `yaml:"tolerance"`
	PlanCacheTTLMin   int             `yaml:"plan_cache_ttl_minutes"`
}

// ToleranceTier lets early levels end with a few occupied holes.
type ToleranceTier struct {
	UpToLevel   int `yaml:"up_to_level"`
	MaxOverflow int `yaml:"max_overflow"`
}

// PlanCacheTTL is how long a cached level plan stays valid.
func (b BalanceConfig) PlanCacheTTL() time.Duration {
	return time.Duration(b.PlanCacheTTLMin) * time.Minute
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.TickRate == 0 {
		cfg.Server.TickRate = 30
	}
	if cfg.Server.MaxSessions == 0 {
		cfg.Server.MaxSessions = 500
	}
	if cfg.JWT.PublicKeyRefreshHrs == 0 {
		cfg.JWT.PublicKeyRefreshHrs = 24
	}
	if cfg.Redis.BlacklistPrefix == "" {
		cfg.Redis.BlacklistPrefix = "blacklist:"
	}
	if cfg.Redis.PlanPrefix == "" {
		cfg.Redis.PlanPrefix = "screwsort:plan:"
	}

	b := &cfg.Board
	if b.ContainerCapacity == 0 {
		b.ContainerCapacity = 3
	}
	if b.ContainerLimit == 0 {
		b.ContainerLimit = 2
	}
	if b.HoldingHoles == 0 {
		b.HoldingHoles = 5
	}
	if b.RemovalDelayMs == 0 {
		b.RemovalDelayMs = 500
	}
	if b.ShakeMs == 0 {
		b.ShakeMs = 400
	}
	if b.CollectMoveMs == 0 {
		b.CollectMoveMs = 350
	}
	if b.TransferMoveMs == 0 {
		b.TransferMoveMs = 300
	}
	if b.ContainerWidth == 0 {
		b.ContainerWidth = 160
	}
	if b.SlotSpacing == 0 {
		b.SlotSpacing = 40
	}
	if b.HoleSpacing == 0 {
		b.HoleSpacing = 56
	}
	if b.ContainerRowY == 0 {
		b.ContainerRowY = 120
	}
	if b.HoleRowY == 0 {
		b.HoleRowY = 220
	}

	bal := &cfg.Balance
	if len(bal.Palette) == 0 {
		bal.Palette = append([]models.Color(nil), models.DefaultPalette...)
	}
	if bal.BaseItemsPerLayer == 0 {
		bal.BaseItemsPerLayer = 6
	}
	if bal.ComplexityWeight == 0 {
		bal.ComplexityWeight = 0.5
	}
	if bal.DensityWeight == 0 {
		bal.DensityWeight = 0.75
	}
	if bal.MinLayers == 0 {
		bal.MinLayers = 2
	}
	if bal.MaxLayers == 0 {
		bal.MaxLayers = 12
	}
	if bal.MaxItems == 0 {
		bal.MaxItems = 300
	}
	if bal.PlanCacheTTLMin == 0 {
		bal.PlanCacheTTLMin = 60
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate rejects settings the planners cannot work with.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Board.ContainerCapacity < 1 {
		errs = append(errs, fmt.Errorf("board.container_capacity must be positive, got %d", cfg.Board.ContainerCapacity))
	}
	if cfg.Board.ContainerLimit < 1 {
		errs = append(errs, fmt.Errorf("board.container_limit must be positive, got %d", cfg.Board.ContainerLimit))
	}
	if cfg.Board.HoldingHoles < 0 {
		errs = append(errs, fmt.Errorf("board.holding_holes must not be negative, got %d", cfg.Board.HoldingHoles))
	}
	if len(cfg.Balance.Palette) == 0 {
		errs = append(errs, errors.New("balance.palette must not be empty"))
	}
	seen := make(map[models.Color]bool, len(cfg.Balance.Palette))
	for _, c := range cfg.Balance.Palette {
		if seen[c] {
			errs = append(errs, fmt.Errorf("balance.palette lists %q twice", c))
		}
		seen[c] = true
	}
	if cfg.Balance.MinLayers > cfg.Balance.MaxLayers {
		errs = append(errs, fmt.Errorf("balance.min_layers (%d) exceeds max_layers (%d)", cfg.Balance.MinLayers, cfg.Balance.MaxLayers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
