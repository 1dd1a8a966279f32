// Package cache keeps computed day availability in redis so repeated slot
// lookups for the same location and day skip the store. A nil client
// disables caching entirely.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"adsched/internal/models"
)

// SlotCache caches AvailableSlots results keyed by location, day and slot
// duration.
type SlotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a slot cache. client may be nil, in which case every lookup
// misses and writes are no-ops.
func New(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *SlotCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &SlotCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "slot_cache").Logger(),
	}
}

func slotKey(location string, day time.Time, slotMinutes int) string {
	return fmt.Sprintf("slots:%s:%s:%d", location, day.UTC().Format("2006-01-02"), slotMinutes)
}

// Get returns the cached slots and whether the key was present.
func (c *SlotCache) Get(ctx context.Context, location string, day time.Time, slotMinutes int) ([]models.Interval, bool) {
	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, slotKey(location, day, slotMinutes)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache read failed")
		return nil, false
	}
	var slots []models.Interval
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false
	}
	return slots, true
}

// Set stores the slots for a key. Failures are logged and swallowed; the
// cache is best effort.
func (c *SlotCache) Set(ctx context.Context, location string, day time.Time, slotMinutes int, slots []models.Interval) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, slotKey(location, day, slotMinutes), raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("cache write failed")
	}
}

// InvalidateLocation drops every cached day for a location. Called after any
// write that touches that location's reservations.
func (c *SlotCache) InvalidateLocation(ctx context.Context, location string) {
	if c.client == nil {
		return
	}
	pattern := fmt.Sprintf("slots:%s:*", location)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", iter.Val()).Msg("cache invalidation failed")
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Str("location", location).Msg("cache scan failed")
	}
}
