package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cargo-relay/internal/tracking"
)

// TrackingCacheStore persists tracking results by query so a restart keeps
// recently fetched consignments
type TrackingCacheStore struct {
	db *sql.DB
}

// NewTrackingCacheStore creates a new tracking cache store
func NewTrackingCacheStore(db *sql.DB) *TrackingCacheStore {
	return &TrackingCacheStore{db: db}
}

// Get returns the cached result for query, or nil on a miss
func (s *TrackingCacheStore) Get(query string) (*tracking.Result, error) {
	var data string
	var expiresAt time.Time

	err := s.db.QueryRow(`SELECT result_data, expires_at FROM tracking_cache WHERE query = ?`, query).
		Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached result: %w", err)
	}

	if time.Now().After(expiresAt) {
		if err := s.Delete(query); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var result tracking.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached result: %w", err)
	}
	return &result, nil
}

// Set stores result for query for ttl
func (s *TrackingCacheStore) Set(query string, result *tracking.Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO tracking_cache (query, result_data, cached_at, expires_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, ?)`, query, string(data), time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// Delete removes the cached result for query
func (s *TrackingCacheStore) Delete(query string) error {
	if _, err := s.db.Exec(`DELETE FROM tracking_cache WHERE query = ?`, query); err != nil {
		return fmt.Errorf("failed to delete cached result: %w", err)
	}
	return nil
}

// DeleteExpired removes all expired entries and returns how many were removed
func (s *TrackingCacheStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM tracking_cache WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}
	return result.RowsAffected()
}

// LoadAll returns every unexpired entry with its expiry
func (s *TrackingCacheStore) LoadAll() (map[string]CachedResult, error) {
	rows, err := s.db.Query(`SELECT query, result_data, expires_at FROM tracking_cache WHERE expires_at > ?`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]CachedResult)
	for rows.Next() {
		var query, data string
		var expiresAt time.Time
		if err := rows.Scan(&query, &data, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}

		var result tracking.Result
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			slog.Warn("Skipping unreadable cached result", "query", query, "error", err)
			continue
		}
		entries[query] = CachedResult{Result: &result, ExpiresAt: expiresAt}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache entries: %w", err)
	}
	return entries, nil
}

// CachedResult is a stored result with its expiry
type CachedResult struct {
	Result    *tracking.Result
	ExpiresAt time.Time
}

// Count returns the total and expired entry counts
func (s *TrackingCacheStore) Count() (total int, expired int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM tracking_cache`).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM tracking_cache WHERE expires_at <= ?`, time.Now()).Scan(&expired); err != nil {
		return 0, 0, fmt.Errorf("failed to count expired cache entries: %w", err)
	}
	return total, expired, nil
}
