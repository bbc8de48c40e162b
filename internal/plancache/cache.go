// Package plancache memoizes level plans by level, seed and planner params.
// Entries are zstd-compressed JSON.
package plancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/gravitas-games/screwsort/internal/balance"
	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/internal/metrics"
)

// Cache computes plans through a balance planner and keeps valid ones.
type Cache struct {
	store   Store
	planner *balance.Planner
	prefix  string
	ttl     time.Duration
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	logger  logging.Logger
	metrics metrics.Recorder
}

// New creates a cache in front of planner.
func New(store Store, planner *balance.Planner, prefix string, ttl time.Duration, logger logging.Logger, rec metrics.Recorder) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Cache{
		store:   store,
		planner: planner,
		prefix:  prefix,
		ttl:     ttl,
		enc:     enc,
		dec:     dec,
		logger:  logger,
		metrics: rec,
	}, nil
}

// Close releases the codec.
func (c *Cache) Close() {
	c.dec.Close()
	_ = c.enc.Close()
}

type keyInput struct {
	Level  int            `json:"level"`
	Seed   int64          `json:"seed"`
	Params balance.Params `json:"params"`
}

// Key derives the store key. Any params change yields a different key.
func (c *Cache) Key(level int, seed int64) string {
	b, _ := json.Marshal(keyInput{Level: level, Seed: seed, Params: c.planner.Params()})
	return fmt.Sprintf("%s%016x", c.prefix, xxh3.Hash(b))
}

// Plan returns the cached plan for (level, seed) or computes and stores it.
// Store failures are logged and fall through to computing. Invalid plans are
// returned with their error and never stored.
func (c *Cache) Plan(ctx context.Context, level int, seed int64) (balance.LevelPlan, error) {
	key := c.Key(level, seed)

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		plan, derr := c.decode(raw)
		if derr == nil {
			c.metrics.PlanCache("hit")
			return plan, nil
		}
		c.logger.Warn("discarding unreadable cached plan", "key", key, "error", derr)
		c.metrics.PlanCache("error")
	case errors.Is(err, ErrMiss):
		c.metrics.PlanCache("miss")
	default:
		c.logger.Warn("plan cache unavailable", "key", key, "error", err)
		c.metrics.PlanCache("error")
	}

	plan, err := c.planner.PlanLevel(level, seed)
	if err != nil {
		return plan, err
	}
	enc, err := c.encode(plan)
	if err != nil {
		c.logger.Warn("plan not cached", "key", key, "error", err)
		return plan, nil
	}
	if err := c.store.Set(ctx, key, enc, c.ttl); err != nil {
		c.logger.Warn("plan not cached", "key", key, "error", err)
	}
	return plan, nil
}

func (c *Cache) encode(plan balance.LevelPlan) ([]byte, error) {
	b, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	return c.enc.EncodeAll(b, nil), nil
}

func (c *Cache) decode(raw []byte) (balance.LevelPlan, error) {
	var plan balance.LevelPlan
	b, err := c.dec.DecodeAll(raw, nil)
	if err != nil {
		return plan, fmt.Errorf("decompress plan: %w", err)
	}
	if err := json.Unmarshal(b, &plan); err != nil {
		return plan, fmt.Errorf("unmarshal plan: %w", err)
	}
	return plan, nil
}
