package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rapidresolve/engine/internal/ai"
	"github.com/rapidresolve/engine/internal/cache"
	"github.com/rapidresolve/engine/pkg/models"
)

// BuildTicketContext assembles the bounded prompt context for a ticket:
// metadata plus at most max_context_turns of the newest conversation turns,
// oldest first. Served from cache when available; the cache is invalidated
// on every mutation of the ticket.
func (e *Engine) BuildTicketContext(ctx context.Context, t *models.Ticket) (models.TicketContext, error) {
	if data, ok, err := e.cache.GetTicketContext(ctx, t.ID); err != nil {
		e.logger.Warn("context cache read failed", "ticket", t.ExternalID, "error", err)
	} else if ok {
		var tctx models.TicketContext
		if err := json.Unmarshal(data, &tctx); err == nil {
			return tctx, nil
		}
		// Corrupt entry: fall through to a rebuild.
		e.invalidateContext(ctx, t)
	}

	turns, err := e.store.RecentTurns(ctx, t.ID, e.cfg.MaxContextTurns)
	if err != nil {
		return models.TicketContext{}, fmt.Errorf("loading recent turns: %w", err)
	}
	total, err := e.store.CountTurns(ctx, t.ID)
	if err != nil {
		e.logger.Warn("counting turns failed", "ticket", t.ExternalID, "error", err)
		total = len(turns)
	}

	tctx := models.TicketContext{
		TicketID:    t.ExternalID,
		Title:       t.Title,
		Description: t.Description,
		RecentTurns: turns,
		TotalTurns:  total,
	}
	if t.Category != nil {
		tctx.Category = *t.Category
	}
	if t.ProductType != nil {
		tctx.ProductType = *t.ProductType
	}
	if t.ContextSummary != nil {
		tctx.ContextSummary = *t.ContextSummary
	} else if data, ok, err := e.cache.Get(ctx, cache.TicketSummaryKey(t.ID)); err == nil && ok {
		// A summary that never made it onto the ticket row may still be
		// cached from the last refresh.
		tctx.ContextSummary = string(data)
	}

	if data, err := json.Marshal(tctx); err == nil {
		if err := e.cache.SetTicketContext(ctx, t.ID, data, contextCacheTTL); err != nil {
			e.logger.Warn("context cache write failed", "ticket", t.ExternalID, "error", err)
		}
	}
	return tctx, nil
}

// refreshSummary regenerates the running context summary after a processed
// interaction. It runs in the background, scheduled by
// scheduleSummaryRefresh. Best effort: a provider failure degrades to the
// fallback summary, a persistence failure is logged and dropped with the
// cached copy left standing.
func (e *Engine) refreshSummary(ctx context.Context, t *models.Ticket) {
	turns, err := e.store.RecentTurns(ctx, t.ID, e.cfg.MaxContextTurns)
	if err != nil {
		e.logger.Warn("summary refresh skipped", "ticket", t.ExternalID, "error", err)
		return
	}

	aiCtx, cancel := e.aiContext(ctx)
	summary, err := e.ai.GenerateContextSummary(aiCtx, t.Title, t.Description, turns)
	cancel()
	if err != nil || summary == "" {
		if err != nil {
			e.logger.Warn("summary generation degraded", "ticket", t.ExternalID, "error", ai.Classify(err))
		}
		summary = models.FallbackSummary(t.Title)
	}

	if err := e.cache.Set(ctx, cache.TicketSummaryKey(t.ID), []byte(summary), summaryCacheTTL); err != nil {
		e.logger.Warn("summary cache write failed", "ticket", t.ExternalID, "error", err)
	}

	unlock := e.locks.Lock(t.ID)
	defer unlock()

	current, err := e.store.GetTicket(ctx, t.ID)
	if err != nil {
		e.logger.Warn("summary refresh skipped", "ticket", t.ExternalID, "error", err)
		return
	}
	current.ContextSummary = &summary
	current.UpdatedAt = e.now()
	if err := e.store.UpdateTicket(ctx, current); err != nil {
		e.logger.Warn("summary persist failed", "ticket", t.ExternalID, "error", err)
		return
	}
	e.invalidateContext(ctx, current)
}
