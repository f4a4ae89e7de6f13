package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rapidresolve/engine/internal/ai"
	"github.com/rapidresolve/engine/internal/events"
	"github.com/rapidresolve/engine/internal/store"
	"github.com/rapidresolve/engine/pkg/models"
)

// appendRetries bounds optimistic retries on a sequence-number collision.
// The per-ticket lock makes collisions possible only across processes.
const appendRetries = 3

var ErrTicketClosed = errors.New("ticket is closed")

// CreateTicketParams is the input for opening a new ticket.
type CreateTicketParams struct {
	ExternalID    string
	CustomerEmail string
	CustomerName  *string
	CustomerPhone *string
	Title         string
	Description   string
	Priority      models.TicketPriority
	Category      *string
	ProductType   *string
}

// CreateTicket opens a ticket, seeds the conversation with the customer's
// description, and publishes ticket.created.
func (e *Engine) CreateTicket(ctx context.Context, params CreateTicketParams) (*models.Ticket, error) {
	now := e.now()
	t := &models.Ticket{
		ID:            uuid.New(),
		ExternalID:    params.ExternalID,
		CustomerEmail: params.CustomerEmail,
		CustomerName:  params.CustomerName,
		CustomerPhone: params.CustomerPhone,
		Title:         params.Title,
		Description:   params.Description,
		Status:        models.StatusOpen,
		Priority:      params.Priority,
		Category:      params.Category,
		ProductType:   params.ProductType,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.ExternalID == "" {
		t.ExternalID = newExternalID()
	}
	if t.Priority == "" {
		t.Priority = models.TicketPriority(e.cfg.DefaultPriority)
	}

	if err := e.store.CreateTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	if params.Description != "" {
		turn := models.NewTurn(t.ID, models.SpeakerCustomer, params.Description, "text", nil)
		if err := e.store.AppendTurns(ctx, t.ID, []*models.ConversationTurn{turn}); err != nil {
			e.logger.Warn("seeding conversation failed", "ticket", t.ExternalID, "error", err)
		}
	}

	e.publish(ctx, events.Event{
		Type:       events.TicketCreated,
		TicketID:   t.ID,
		ExternalID: t.ExternalID,
		OccurredAt: now,
		Payload:    map[string]any{"priority": t.Priority, "title": t.Title},
	})
	e.logger.Info("ticket created", "ticket", t.ExternalID, "priority", t.Priority)
	return t, nil
}

// newExternalID generates a customer-facing ticket reference.
func newExternalID() string {
	return "TKT-" + strings.ToUpper(uuid.NewString()[:8])
}

// InteractionInput is one raw customer exchange submitted for processing.
type InteractionInput struct {
	TicketID uuid.UUID
	Type     models.InteractionType
	Channel  models.InteractionChannel
	Content  string
	Media    []MediaPayload
}

// InteractionResult is the outcome of processing one interaction.
type InteractionResult struct {
	Ticket      *models.Ticket
	Interaction *models.Interaction
	Escalated   bool
}

// ProcessInteraction runs the full pipeline for one customer exchange:
// normalize media, analyze the combined text against the ticket's rolling
// context, persist atomically with the next sequence number, then apply the
// escalation policy. AI failures degrade to documented fallbacks; a
// persistence failure returns the unprocessed interaction and a retryable
// error.
func (e *Engine) ProcessInteraction(ctx context.Context, input InteractionInput) (*InteractionResult, error) {
	t, err := e.store.GetTicket(ctx, input.TicketID)
	if err != nil {
		return nil, fmt.Errorf("loading ticket: %w", err)
	}
	if t.Status == models.StatusClosed {
		return nil, ErrTicketClosed
	}

	now := e.now()
	interaction := &models.Interaction{
		ID:              uuid.New(),
		TicketID:        t.ID,
		InteractionType: input.Type,
		Channel:         input.Channel,
		RawContent:      input.Content,
		CreatedAt:       now,
	}

	// Media normalization and text analysis happen before taking the ticket
	// lock; only the local mutation is serialized.
	normalized := e.normalizeMedia(ctx, t.ID, interaction.ID, input.Media)
	interaction.MediaTypes = normalized.MediaTypes
	interaction.HasAudio = normalized.HasAudio
	interaction.HasImages = normalized.HasImages
	interaction.HasDocuments = normalized.HasDocuments

	processed := input.Content
	if normalized.DerivedText != "" {
		processed = strings.TrimSpace(processed + "\n" + normalized.DerivedText)
	}
	interaction.ProcessedContent = processed

	tctx, err := e.BuildTicketContext(ctx, t)
	if err != nil {
		e.logger.Warn("context build degraded", "ticket", t.ExternalID, "error", err)
		tctx = models.TicketContext{TicketID: t.ExternalID, Title: t.Title, Description: t.Description}
	}

	aiCtx, cancel := e.aiContext(ctx)
	analysis, err := e.ai.AnalyzeText(aiCtx, processed, &tctx)
	cancel()
	if err != nil {
		e.logger.Warn("text analysis degraded", "ticket", t.ExternalID, "error", ai.Classify(err))
		analysis = models.FallbackTextAnalysis()
	}
	analysis.UrgencyScore = models.ClampScore(analysis.UrgencyScore)
	interaction.Analysis = &analysis
	interaction.UrgencyScore = &analysis.UrgencyScore

	processedAt := e.now()
	interaction.IsProcessed = true
	interaction.ProcessedAt = &processedAt

	turn := models.NewTurn(t.ID, models.SpeakerCustomer, processed, turnMessageType(normalized), nil)
	turn.InteractionID = &interaction.ID

	unlock := e.locks.Lock(t.ID)
	updated, err := e.appendWithRetry(ctx, store.AppendInteractionParams{
		TicketID:    t.ID,
		Interaction: interaction,
		Turns:       []*models.ConversationTurn{turn},
		MediaFiles:  normalized.Files,
	})
	if err != nil {
		unlock()
		interaction.IsProcessed = false
		interaction.ProcessedAt = nil
		msg := err.Error()
		interaction.ProcessingError = &msg
		return &InteractionResult{Ticket: t, Interaction: interaction},
			fmt.Errorf("persisting interaction (retryable): %w", err)
	}

	if updated.FirstResponseAt == nil {
		updated.FirstResponseAt = &processedAt
	}
	escalated := e.applyEscalationPolicy(updated, processedAt)
	if !escalated && updated.IsOpen() && updated.Status != models.StatusInProgress {
		// A fresh customer message means the engine owes the next action.
		if err := updated.TransitionTo(models.StatusInProgress, processedAt); err != nil {
			e.logger.Warn("status transition rejected", "ticket", updated.ExternalID, "error", err)
		}
	}
	if err := e.store.UpdateTicket(ctx, updated); err != nil {
		e.logger.Error("ticket update failed", "ticket", updated.ExternalID, "error", err)
	}
	unlock()

	e.invalidateContext(ctx, updated)
	e.publish(ctx, events.Event{
		Type:       events.InteractionProcessed,
		TicketID:   updated.ID,
		ExternalID: updated.ExternalID,
		OccurredAt: processedAt,
		Payload: map[string]any{
			"sequence_number": interaction.SequenceNumber,
			"urgency_score":   analysis.UrgencyScore,
			"intent":          analysis.Intent.Type,
		},
	})
	if escalated {
		e.publishEscalated(ctx, updated)
	}

	e.scheduleSummaryRefresh(updated)

	e.logger.Info("interaction processed",
		"ticket", updated.ExternalID,
		"sequence", interaction.SequenceNumber,
		"urgency", analysis.UrgencyScore,
		"status", updated.Status)
	return &InteractionResult{Ticket: updated, Interaction: interaction, Escalated: escalated}, nil
}

// appendWithRetry retries the transactional append when another process won
// the sequence number race.
func (e *Engine) appendWithRetry(ctx context.Context, params store.AppendInteractionParams) (*models.Ticket, error) {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		t, err := e.store.AppendInteraction(ctx, params)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("sequence assignment kept colliding: %w", lastErr)
}

func turnMessageType(n NormalizedContent) string {
	switch {
	case n.HasAudio:
		return "audio"
	case n.HasImages:
		return "image"
	case n.HasDocuments:
		return "document"
	default:
		return "text"
	}
}
