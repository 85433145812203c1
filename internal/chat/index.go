package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"racing-insights/internal/api"
	"racing-insights/internal/history"
)

// Index keeps the bucketed list of past conversations shown by the history
// browser. It is refreshed on demand or whenever the controller reports a
// history change.
type Index struct {
	source     HistorySource
	reconciler *history.Reconciler
	limit      int
	logger     zerolog.Logger

	mu          sync.RWMutex
	buckets     []history.Bucket
	refreshedAt time.Time
	lastErr     error
}

// NewIndex creates an index over source. A non-positive limit uses the
// backend default.
func NewIndex(source HistorySource, reconciler *history.Reconciler, limit int, logger zerolog.Logger) *Index {
	if reconciler == nil {
		reconciler = history.Default
	}
	return &Index{
		source:     source,
		reconciler: reconciler,
		limit:      limit,
		logger:     logger,
	}
}

// Refresh fetches the user's history and rebuilds the buckets. On failure the
// previous buckets are kept.
func (i *Index) Refresh(ctx context.Context) ([]history.Bucket, error) {
	records, err := i.source.FetchHistory(ctx, api.HistoryQuery{Limit: i.limit})
	if err != nil {
		i.mu.Lock()
		i.lastErr = err
		i.mu.Unlock()
		return nil, fmt.Errorf("failed to refresh history: %w", err)
	}

	buckets := i.reconciler.ToBuckets(i.reconciler.SortByRecency(records))

	i.mu.Lock()
	i.buckets = buckets
	i.refreshedAt = time.Now()
	i.lastErr = nil
	i.mu.Unlock()

	i.logger.Debug().Int("records", len(records)).Int("buckets", len(buckets)).Msg("history index refreshed")
	return buckets, nil
}

// Reset forgets the cached buckets, e.g. after the user changes.
func (i *Index) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.buckets = nil
	i.refreshedAt = time.Time{}
	i.lastErr = nil
}

// Buckets returns the cached buckets whose titles match search.
// An empty search returns everything.
func (i *Index) Buckets(search string) []history.Bucket {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return history.Filter(i.buckets, search)
}

// RefreshedAt reports when the index last refreshed successfully.
func (i *Index) RefreshedAt() (time.Time, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.refreshedAt, !i.refreshedAt.IsZero()
}

// LastError returns the error of the last failed refresh, if any.
func (i *Index) LastError() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastErr
}

// Watch refreshes the index for every event until ctx is done or events is
// closed.
func (i *Index) Watch(ctx context.Context, events <-chan HistoryChanged) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := i.Refresh(ctx); err != nil {
				i.logger.Warn().Err(err).Str("thread_id", ev.ThreadID).Msg("background history refresh failed")
			}
		}
	}
}
