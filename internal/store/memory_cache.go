package store

import (
	"context"
	"sync"
	"time"

	"github.com/devrev/dispatchboard/internal/model"
	"go.uber.org/zap"
)

// InMemoryBoardCache implements BoardCache using an in-memory map
type InMemoryBoardCache struct {
	data       map[uint64]*cacheItem
	generation uint64
	mu         sync.RWMutex
	maxSize    int
	logger     *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
}

type cacheItem struct {
	board     *model.Board
	expiresAt time.Time
}

// NewInMemoryBoardCache creates a new in-memory board cache
func NewInMemoryBoardCache(maxSize int, logger *zap.Logger) *InMemoryBoardCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	cache := &InMemoryBoardCache{
		data:    make(map[uint64]*cacheItem),
		maxSize: maxSize,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	// Start cleanup goroutine
	go cache.cleanup(time.Minute)

	return cache
}

// Generation returns the current board generation
func (c *InMemoryBoardCache) Generation(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation, nil
}

// Get retrieves the board cached for generation
func (c *InMemoryBoardCache) Get(ctx context.Context, generation uint64) (*model.Board, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if generation != c.generation {
		return nil, ErrNotFound
	}

	item, exists := c.data[generation]
	if !exists {
		return nil, ErrNotFound
	}

	// Check if expired
	if time.Now().After(item.expiresAt) {
		return nil, ErrNotFound
	}

	return item.board, nil
}

// Set stores a board computed at generation. Boards from an older generation
// are dropped.
func (c *InMemoryBoardCache) Set(ctx context.Context, generation uint64, board *model.Board, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return nil
	}

	if len(c.data) >= c.maxSize {
		c.evictLocked()
	}

	c.data[generation] = &cacheItem{
		board:     board,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Invalidate advances the generation and drops every cached board
func (c *InMemoryBoardCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	for gen := range c.data {
		delete(c.data, gen)
	}
	return nil
}

// Ping always succeeds
func (c *InMemoryBoardCache) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cleanup goroutine
func (c *InMemoryBoardCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}

// Size returns the number of items in cache
func (c *InMemoryBoardCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// evictLocked removes an expired entry, or the oldest generation if none expired
func (c *InMemoryBoardCache) evictLocked() {
	now := time.Now()
	var (
		oldest uint64
		found  bool
	)
	for gen, item := range c.data {
		if now.After(item.expiresAt) {
			delete(c.data, gen)
			return
		}
		if !found || gen < oldest {
			oldest, found = gen, true
		}
	}
	if found {
		delete(c.data, oldest)
	}
}

// cleanup periodically removes expired entries
func (c *InMemoryBoardCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for gen, item := range c.data {
				if now.After(item.expiresAt) {
					delete(c.data, gen)
				}
			}
			c.mu.Unlock()
		}
	}
}

// NoopBoardCache never holds a board; every read goes to the store
type NoopBoardCache struct{}

// NewNoopBoardCache creates a cache that always misses
func NewNoopBoardCache() *NoopBoardCache { return &NoopBoardCache{} }

func (NoopBoardCache) Generation(ctx context.Context) (uint64, error) { return 0, nil }

func (NoopBoardCache) Get(ctx context.Context, generation uint64) (*model.Board, error) {
	return nil, ErrNotFound
}

func (NoopBoardCache) Set(ctx context.Context, generation uint64, board *model.Board, ttl time.Duration) error {
	return nil
}

func (NoopBoardCache) Invalidate(ctx context.Context) error { return nil }

func (NoopBoardCache) Ping(ctx context.Context) error { return nil }

func (NoopBoardCache) Close() error { return nil }
