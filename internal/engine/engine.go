// Package engine implements the ticket context and resolution core: media
// normalization, interaction processing, context aggregation, and the
// resolution/escalation policy. All external collaborators (persistence,
// cache, blob storage, AI backend, event bus) are injected interfaces.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rapidresolve/engine/internal/cache"
	"github.com/rapidresolve/engine/internal/config"
	"github.com/rapidresolve/engine/internal/events"
	"github.com/rapidresolve/engine/internal/storage"
	"github.com/rapidresolve/engine/internal/store"
	"github.com/rapidresolve/engine/pkg/models"
)

// contextCacheTTL bounds staleness of the cached prompt context.
const contextCacheTTL = 5 * time.Minute

// summaryCacheTTL keeps the latest generated summary around even when the
// ticket row could not be updated with it.
const summaryCacheTTL = 30 * time.Minute

// summaryRefreshBudget is added on top of the AI timeout to cover the store
// round trips of a background summary refresh.
const summaryRefreshBudget = 10 * time.Second

// Engine orchestrates ticket processing. Safe for concurrent use; state for
// different tickets is processed fully in parallel, mutations of one ticket
// are serialized by a per-ticket lock.
type Engine struct {
	store     store.Store
	cache     cache.Cache
	blobs     storage.BlobStore
	ai        models.AIProvider
	publisher events.Publisher
	cfg       config.EngineConfig
	aiTimeout time.Duration
	logger    *slog.Logger
	locks     *keyedMutex
	now       func() time.Time

	background sync.WaitGroup
}

func New(
	st store.Store,
	c cache.Cache,
	blobs storage.BlobStore,
	provider models.AIProvider,
	publisher events.Publisher,
	cfg config.EngineConfig,
	aiTimeout time.Duration,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:     st,
		cache:     c,
		blobs:     blobs,
		ai:        provider,
		publisher: publisher,
		cfg:       cfg,
		aiTimeout: aiTimeout,
		logger:    logger,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// aiContext bounds a provider call independently of any held ticket lock.
func (e *Engine) aiContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.aiTimeout)
}

// scheduleSummaryRefresh regenerates the context summary off the request
// path. The goroutine carries its own deadline; the request context may be
// gone by the time it runs.
func (e *Engine) scheduleSummaryRefresh(t *models.Ticket) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("summary refresh panicked", "ticket", t.ExternalID, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), e.aiTimeout+summaryRefreshBudget)
		defer cancel()
		e.refreshSummary(ctx, t)
	}()
}

// Wait blocks until all background work in flight has finished. Called on
// shutdown so a summary refresh is not cut off mid-write.
func (e *Engine) Wait() {
	e.background.Wait()
}

// publish emits a lifecycle event. Failures are logged, never propagated;
// event delivery must not block or fail ticket processing.
func (e *Engine) publish(ctx context.Context, event events.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Error("event publish failed",
			"type", event.Type, "ticket", event.ExternalID, "error", err)
	}
}

// invalidateContext drops the cached prompt context after a ticket mutation.
func (e *Engine) invalidateContext(ctx context.Context, t *models.Ticket) {
	if err := e.cache.InvalidateTicketContext(ctx, t.ID); err != nil {
		e.logger.Warn("context cache invalidation failed", "ticket", t.ExternalID, "error", err)
	}
}
