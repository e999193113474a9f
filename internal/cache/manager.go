package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cargo-relay/internal/database"
	"cargo-relay/internal/tracking"
)

// Store is the persistent layer behind the in-memory cache
type Store interface {
	Get(query string) (*tracking.Result, error)
	Set(query string, result *tracking.Result, ttl time.Duration) error
	Delete(query string) error
	DeleteExpired() (int64, error)
	LoadAll() (map[string]database.CachedResult, error)
	Count() (total int, expired int, err error)
}

// CachedResult is an in-memory cache entry with expiry
type CachedResult struct {
	Result    *tracking.Result
	ExpiresAt time.Time
}

// IsExpired checks if the cached result has expired
func (c *CachedResult) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// Manager caches tracking results in memory, backed by the database
type Manager struct {
	store    Store
	memory   sync.Map // map[string]*CachedResult
	disabled bool
	ttl      time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a cache manager. A nil store keeps the cache in memory
// only.
func NewManager(store Store, disabled bool, ttl time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	manager := &Manager{
		store:    store,
		disabled: disabled,
		ttl:      ttl,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	if !disabled {
		if err := manager.loadFromStore(); err != nil {
			logger.Warn("Failed to load tracking cache from database", "error", err)
		}
		go manager.cleanupLoop()
	}

	return manager
}

// Get returns the cached result for query, or nil on a miss
func (m *Manager) Get(query string) (*tracking.Result, error) {
	if m.disabled {
		return nil, nil
	}

	if value, ok := m.memory.Load(query); ok {
		cached := value.(*CachedResult)
		if !cached.IsExpired() {
			return cached.Result, nil
		}
		m.memory.Delete(query)
	}

	if m.store == nil {
		return nil, nil
	}

	result, err := m.store.Get(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get from database cache: %w", err)
	}
	if result != nil {
		m.memory.Store(query, &CachedResult{Result: result, ExpiresAt: time.Now().Add(m.ttl)})
	}
	return result, nil
}

// Set stores result in memory and in the database
func (m *Manager) Set(query string, result *tracking.Result) error {
	if m.disabled {
		return nil
	}

	if m.store != nil {
		if err := m.store.Set(query, result, m.ttl); err != nil {
			return fmt.Errorf("failed to store in database cache: %w", err)
		}
	}
	m.memory.Store(query, &CachedResult{Result: result, ExpiresAt: time.Now().Add(m.ttl)})
	return nil
}

// Invalidate removes query from both layers so the next lookup refetches
func (m *Manager) Invalidate(query string) error {
	if m.disabled {
		return nil
	}

	m.memory.Delete(query)
	if m.store != nil {
		if err := m.store.Delete(query); err != nil {
			return fmt.Errorf("failed to invalidate cache: %w", err)
		}
	}
	return nil
}

// IsEnabled returns true if caching is enabled
func (m *Manager) IsEnabled() bool {
	return !m.disabled
}

// TTL returns the cache TTL
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) loadFromStore() error {
	if m.store == nil {
		return nil
	}
	entries, err := m.store.LoadAll()
	if err != nil {
		return err
	}

	for query, entry := range entries {
		m.memory.Store(query, &CachedResult{Result: entry.Result, ExpiresAt: entry.ExpiresAt})
	}
	if len(entries) > 0 {
		m.logger.Info("Loaded tracking cache entries", "count", len(entries))
	}
	return nil
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

// cleanup removes expired entries from both layers
func (m *Manager) cleanup() {
	memoryCount := 0
	m.memory.Range(func(key, value any) bool {
		if value.(*CachedResult).IsExpired() {
			m.memory.Delete(key)
			memoryCount++
		}
		return true
	})

	if m.store != nil {
		removed, err := m.store.DeleteExpired()
		if err != nil {
			m.logger.Warn("Failed to clean up expired database cache entries", "error", err)
		} else if removed > 0 {
			m.logger.Debug("Cleaned up expired database cache entries", "count", removed)
		}
	}

	if memoryCount > 0 {
		m.logger.Debug("Cleaned up expired memory cache entries", "count", memoryCount)
	}
}

// Stats returns cache statistics
func (m *Manager) Stats() (Stats, error) {
	stats := Stats{Disabled: m.disabled, TTL: m.ttl}
	if m.disabled {
		return stats, nil
	}

	m.memory.Range(func(_, value any) bool {
		stats.MemoryTotal++
		if value.(*CachedResult).IsExpired() {
			stats.MemoryExpired++
		}
		return true
	})

	if m.store != nil {
		total, expired, err := m.store.Count()
		if err != nil {
			return stats, fmt.Errorf("failed to get database stats: %w", err)
		}
		stats.DatabaseTotal = total
		stats.DatabaseExpired = expired
	}
	return stats, nil
}

// Close stops the cleanup goroutine
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Stats represents cache statistics
type Stats struct {
	Disabled        bool          `json:"disabled"`
	TTL             time.Duration `json:"ttl"`
	MemoryTotal     int           `json:"memory_total"`
	MemoryExpired   int           `json:"memory_expired"`
	DatabaseTotal   int           `json:"database_total"`
	DatabaseExpired int           `json:"database_expired"`
}
