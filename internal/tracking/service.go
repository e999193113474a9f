package tracking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// PageFetcher retrieves the raw provider page for a query
type PageFetcher interface {
	Fetch(ctx context.Context, query string) (*RawPage, error)
}

// ResultCache stores successful results by query. A nil result from Get is a
// miss.
type ResultCache interface {
	Get(query string) (*Result, error)
	Set(query string, result *Result) error
}

// Observer is notified once per tracked query
type Observer interface {
	ObserveTracking(kind Kind, cached bool, elapsed time.Duration)
}

// Tracker runs a query through fetch, extract and present
type Tracker struct {
	fetcher   PageFetcher
	extractor *Extractor
	presenter *Presenter
	cache     ResultCache
	observer  Observer
	logger    *slog.Logger
}

// TrackerOption customizes a Tracker
type TrackerOption func(*Tracker)

// WithCache enables result caching
func WithCache(cache ResultCache) TrackerOption {
	return func(t *Tracker) {
		t.cache = cache
	}
}

// WithObserver registers a per-query observer, typically metrics
func WithObserver(observer Observer) TrackerOption {
	return func(t *Tracker) {
		t.observer = observer
	}
}

// WithTrackerLogger sets the tracker's logger
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker wires a tracker. A nil extractor or presenter selects the
// defaults.
func NewTracker(fetcher PageFetcher, extractor *Extractor, presenter *Presenter, opts ...TrackerOption) *Tracker {
	if extractor == nil {
		extractor = NewExtractor()
	}
	if presenter == nil {
		presenter = NewPresenter("")
	}
	t := &Tracker{
		fetcher:   fetcher,
		extractor: extractor,
		presenter: presenter,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Presenter returns the presenter used to render results
func (t *Tracker) Presenter() *Presenter {
	return t.presenter
}

// Track looks up query and returns the result with its rendered message.
// The only error is ErrEmptyQuery; provider failures come back as results.
func (t *Tracker) Track(ctx context.Context, query string) (*Result, string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, "", ErrEmptyQuery
	}

	start := time.Now()

	if t.cache != nil {
		cached, err := t.cache.Get(query)
		if err != nil {
			t.logger.Warn("Failed to read tracking cache", "query", query, "error", err)
		} else if cached != nil {
			t.logger.Debug("Serving tracking result from cache", "query", query)
			t.observe(cached.Kind, true, start)
			return cached, t.presenter.Present(cached), nil
		}
	}

	result := t.lookup(ctx, query)

	if t.cache != nil && result.IsSuccess() {
		if err := t.cache.Set(query, result); err != nil {
			t.logger.Warn("Failed to cache tracking result", "query", query, "error", err)
		}
	}

	t.logger.Info("Tracked consignment",
		"query", query,
		"kind", result.Kind,
		"duration", time.Since(start))
	t.observe(result.Kind, false, start)

	return result, t.presenter.Present(result), nil
}

func (t *Tracker) lookup(ctx context.Context, query string) *Result {
	page, err := t.fetcher.Fetch(ctx, query)
	if err != nil {
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			t.logger.Error("Error connecting to tracking provider", "query", query, "error", err)
			return TransportErrorResult(query, "Error connecting to ACPL tracking: "+err.Error())
		}
		t.logger.Error("Unexpected error tracking consignment", "query", query, "error", err)
		return TransportErrorResult(query, "Unexpected error: "+err.Error())
	}
	return t.extractor.Extract(page, query)
}

func (t *Tracker) observe(kind Kind, cached bool, start time.Time) {
	if t.observer != nil {
		t.observer.ObserveTracking(kind, cached, time.Since(start))
	}
}
