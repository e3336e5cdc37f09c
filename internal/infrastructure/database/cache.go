package database

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Dialer establishes the underlying store connection.
type Dialer func() (*gorm.DB, error)

// ConnectionCache lazily establishes and memoizes a single database handle
// for the lifetime of the process. Concurrent acquirers during an in-flight
// attempt all share that attempt's outcome; a failed attempt is not cached,
// so the next Acquire retries.
type ConnectionCache struct {
	dial  Dialer
	log   zerolog.Logger
	group singleflight.Group

	mu     sync.RWMutex
	handle *gorm.DB
}

// NewConnectionCache builds a cache that dials with the given configuration
// on first use.
func NewConnectionCache(cfg Config, log zerolog.Logger) *ConnectionCache {
	return &ConnectionCache{
		dial: func() (*gorm.DB, error) {
			return Connect(cfg)
		},
		log: log.With().Str("component", "connection-cache").Logger(),
	}
}

// NewConnectionCacheWithDialer builds a cache around a custom dialer.
func NewConnectionCacheWithDialer(dial Dialer, log zerolog.Logger) *ConnectionCache {
	return &ConnectionCache{
		dial: dial,
		log:  log.With().Str("component", "connection-cache").Logger(),
	}
}

// Acquire returns the live handle, establishing it on first use. Safe for
// concurrent use from request handlers.
func (c *ConnectionCache) Acquire(ctx context.Context) (*gorm.DB, error) {
	c.mu.RLock()
	handle := c.handle
	c.mu.RUnlock()
	if handle != nil {
		return handle, nil
	}

	ch := c.group.DoChan("connect", func() (interface{}, error) {
		// Re-check under the group: a previous winner may have stored the
		// handle between the fast path and this attempt.
		c.mu.RLock()
		existing := c.handle
		c.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		db, err := c.dial()
		if err != nil {
			c.log.Error().Err(err).Msg("store connection attempt failed")
			return nil, err
		}

		c.mu.Lock()
		c.handle = db
		c.mu.Unlock()
		c.log.Info().Msg("store connection established")
		return db, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gorm.DB), nil
	case <-ctx.Done():
		// The attempt keeps running for the other waiters; this caller
		// just stops waiting for it.
		return nil, ctx.Err()
	}
}
