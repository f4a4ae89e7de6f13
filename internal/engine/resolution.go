package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rapidresolve/engine/internal/ai"
	"github.com/rapidresolve/engine/internal/events"
	"github.com/rapidresolve/engine/internal/storage"
	"github.com/rapidresolve/engine/pkg/models"
)

var ErrNoSolutionAttempt = errors.New("ticket has no solution attempt to give feedback on")

// applyEscalationPolicy enforces the automatic escalation rule: urgent
// priority or an urgency average above the configured threshold moves the
// ticket to escalated, keeping the first recorded reason. Returns whether
// this call escalated it. Caller holds the ticket lock and persists the
// mutation.
func (e *Engine) applyEscalationPolicy(t *models.Ticket, now time.Time) bool {
	if t.Status == models.StatusEscalated {
		return false
	}
	var reason string
	switch {
	case t.Priority == models.PriorityUrgent:
		reason = "urgent priority ticket"
	case t.AvgUrgencyScore != nil && *t.AvgUrgencyScore > e.cfg.AutoEscalateThreshold:
		reason = fmt.Sprintf("average urgency %.2f above threshold %.2f",
			*t.AvgUrgencyScore, e.cfg.AutoEscalateThreshold)
	default:
		return false
	}
	if err := t.Escalate(reason, now); err != nil {
		e.logger.Warn("escalation rejected", "ticket", t.ExternalID, "error", err)
		return false
	}
	e.logger.Info("ticket escalated", "ticket", t.ExternalID, "reason", reason)
	return true
}

func (e *Engine) publishEscalated(ctx context.Context, t *models.Ticket) {
	payload := map[string]any{}
	if t.EscalationReason != nil {
		payload["reason"] = *t.EscalationReason
	}
	e.publish(ctx, events.Event{
		Type:       events.TicketEscalated,
		TicketID:   t.ID,
		ExternalID: t.ExternalID,
		OccurredAt: e.now(),
		Payload:    payload,
	})
}

// RequestSolution generates the next solution for a ticket and records it as
// a new attempt. Provider failure yields the safe fallback solution (0.1
// confidence, escalating) rather than an error. The ticket moves to
// waiting_customer, or escalated when the solution itself demands it.
func (e *Engine) RequestSolution(ctx context.Context, ticketID uuid.UUID) (models.Solution, *models.Ticket, error) {
	t, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Solution{}, nil, fmt.Errorf("loading ticket: %w", err)
	}
	if t.Status == models.StatusClosed {
		return models.Solution{}, nil, ErrTicketClosed
	}

	tctx, err := e.BuildTicketContext(ctx, t)
	if err != nil {
		e.logger.Warn("context build degraded", "ticket", t.ExternalID, "error", err)
		tctx = models.TicketContext{TicketID: t.ExternalID, Title: t.Title, Description: t.Description}
	}

	aiCtx, cancel := e.aiContext(ctx)
	solution, err := e.ai.GenerateSolution(aiCtx, tctx, t.SolutionAttempts)
	cancel()
	if err != nil {
		e.logger.Warn("solution generation degraded", "ticket", t.ExternalID, "error", ai.Classify(err))
		solution = models.FallbackSolution()
	}
	solution.Confidence = models.ClampScore(solution.Confidence)

	now := e.now()
	unlock := e.locks.Lock(t.ID)
	defer unlock()

	t, err = e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Solution{}, nil, fmt.Errorf("reloading ticket: %w", err)
	}
	t.SolutionAttempts = append(t.SolutionAttempts, models.SolutionAttempt{
		Content:     solution.Content,
		Confidence:  solution.Confidence,
		Result:      models.AttemptNotAttempted,
		AttemptedAt: now.Format(time.RFC3339),
	})

	escalated := false
	if solution.RequiresEscalation {
		reason := solution.EscalationReason
		if reason == "" {
			reason = "solution requires human expertise"
		}
		if err := t.Escalate(reason, now); err != nil {
			e.logger.Warn("escalation rejected", "ticket", t.ExternalID, "error", err)
		} else {
			escalated = true
		}
	} else if err := t.TransitionTo(models.StatusWaitingCustomer, now); err != nil {
		e.logger.Warn("status transition rejected", "ticket", t.ExternalID, "error", err)
	}
	t.UpdatedAt = now
	if err := e.store.UpdateTicket(ctx, t); err != nil {
		return models.Solution{}, nil, fmt.Errorf("recording solution attempt: %w", err)
	}

	confidence := solution.Confidence
	turn := models.NewTurn(t.ID, models.SpeakerAIAgent, solution.Content, "solution", &confidence)
	if err := e.store.AppendTurns(ctx, t.ID, []*models.ConversationTurn{turn}); err != nil {
		e.logger.Warn("recording solution turn failed", "ticket", t.ExternalID, "error", err)
	}
	e.invalidateContext(ctx, t)
	if escalated {
		e.publishEscalated(ctx, t)
	}

	e.logger.Info("solution generated",
		"ticket", t.ExternalID,
		"attempt", len(t.SolutionAttempts),
		"confidence", solution.Confidence,
		"escalating", solution.RequiresEscalation)
	return solution, t, nil
}

// FeedbackInput records the customer's verdict on the latest solution.
type FeedbackInput struct {
	TicketID     uuid.UUID
	Result       models.AttemptResult
	Feedback     string
	Satisfaction *float64
}

// FeedbackOutcome reports what the controller decided after feedback.
type FeedbackOutcome struct {
	Ticket      *models.Ticket
	NewSolution *models.Solution
	Escalated   bool
}

// HandleFeedback applies the resolution policy to customer feedback on the
// latest attempt. The automatic escalation rule is checked first; when it
// does not apply, success resolves the ticket, a first failure requests a
// fresh solution, and consecutive failures at the configured threshold
// escalate.
func (e *Engine) HandleFeedback(ctx context.Context, input FeedbackInput) (*FeedbackOutcome, error) {
	now := e.now()
	unlock := e.locks.Lock(input.TicketID)

	t, err := e.store.GetTicket(ctx, input.TicketID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("loading ticket: %w", err)
	}
	if t.Status == models.StatusClosed {
		unlock()
		return nil, ErrTicketClosed
	}
	latest := t.LatestAttempt()
	if latest == nil {
		unlock()
		return nil, ErrNoSolutionAttempt
	}

	latest.Result = input.Result
	latest.CustomerFeedback = input.Feedback
	if input.Satisfaction != nil {
		score := models.ClampScore(*input.Satisfaction)
		t.CustomerSatisfactionScore = &score
	}

	outcome := &FeedbackOutcome{Ticket: t}
	needNewSolution := false
	// Priority and urgency outrank the per-attempt rules: feedback on an
	// urgent or high-urgency ticket escalates the same way a new interaction
	// does, and an already-escalated ticket stays with the human queue
	// instead of getting another automated retry.
	if e.applyEscalationPolicy(t, now) {
		outcome.Escalated = true
	}
	if t.Status != models.StatusEscalated {
		switch input.Result {
		case models.AttemptSuccessful:
			if err := t.TransitionTo(models.StatusResolved, now); err != nil {
				unlock()
				return nil, err
			}
		case models.AttemptFailed, models.AttemptPartiallySuccessful:
			if t.ConsecutiveFailures() >= e.cfg.MaxFailedAttempts {
				reason := fmt.Sprintf("%d consecutive failed solution attempts", t.ConsecutiveFailures())
				if err := t.Escalate(reason, now); err != nil {
					e.logger.Warn("escalation rejected", "ticket", t.ExternalID, "error", err)
				} else {
					outcome.Escalated = true
				}
			} else {
				needNewSolution = true
				if err := t.TransitionTo(models.StatusInProgress, now); err != nil {
					e.logger.Warn("status transition rejected", "ticket", t.ExternalID, "error", err)
				}
			}
		default:
			// not_attempted: record the feedback, keep waiting on the customer.
		}
	}

	t.UpdatedAt = now
	if err := e.store.UpdateTicket(ctx, t); err != nil {
		unlock()
		return nil, fmt.Errorf("recording feedback: %w", err)
	}
	e.stampFeedback(ctx, t, latest.Content, input)

	if input.Feedback != "" {
		turn := models.NewTurn(t.ID, models.SpeakerCustomer, input.Feedback, "feedback", nil)
		if err := e.store.AppendTurns(ctx, t.ID, []*models.ConversationTurn{turn}); err != nil {
			e.logger.Warn("recording feedback turn failed", "ticket", t.ExternalID, "error", err)
		}
	}
	e.invalidateContext(ctx, t)
	unlock()

	if t.Status == models.StatusResolved {
		e.publish(ctx, events.Event{
			Type:       events.TicketResolved,
			TicketID:   t.ID,
			ExternalID: t.ExternalID,
			OccurredAt: now,
			Payload:    map[string]any{"attempts": len(t.SolutionAttempts)},
		})
	}
	if outcome.Escalated {
		e.publishEscalated(ctx, t)
	}

	// The retry solution is generated after releasing the lock; it takes the
	// lock again itself.
	if needNewSolution {
		solution, updated, err := e.RequestSolution(ctx, t.ID)
		if err != nil {
			e.logger.Error("retry solution failed", "ticket", t.ExternalID, "error", err)
		} else {
			outcome.NewSolution = &solution
			outcome.Ticket = updated
		}
	}

	e.logger.Info("feedback handled",
		"ticket", t.ExternalID,
		"result", input.Result,
		"status", outcome.Ticket.Status)
	return outcome, nil
}

// stampFeedback copies the verdict onto the ticket's newest interaction so
// the interaction record carries which solution it answered. Best effort;
// the attempt on the ticket is the authoritative record.
func (e *Engine) stampFeedback(ctx context.Context, t *models.Ticket, solution string, input FeedbackInput) {
	all, err := e.store.ListInteractions(ctx, t.ID)
	if err != nil {
		e.logger.Warn("loading interactions failed", "ticket", t.ExternalID, "error", err)
		return
	}
	if len(all) == 0 {
		return
	}
	last := all[len(all)-1]
	result := input.Result
	last.SolutionProvided = &solution
	last.SolutionAttemptResult = &result
	if input.Feedback != "" {
		feedback := input.Feedback
		last.CustomerFeedback = &feedback
	}
	if err := e.store.UpdateInteraction(ctx, last); err != nil {
		e.logger.Warn("stamping feedback on interaction failed", "ticket", t.ExternalID, "error", err)
	}
}

// CloseTicket archives a resolved or escalated ticket. Any other state is a
// validation error; tickets are never deleted while open.
func (e *Engine) CloseTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	now := e.now()
	unlock := e.locks.Lock(ticketID)
	defer unlock()

	t, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("loading ticket: %w", err)
	}
	if err := t.TransitionTo(models.StatusClosed, now); err != nil {
		return nil, err
	}
	if err := e.store.UpdateTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("closing ticket: %w", err)
	}
	e.invalidateContext(ctx, t)
	e.logger.Info("ticket closed", "ticket", t.ExternalID)
	return t, nil
}

// AttachFile uploads a ticket-level attachment to blob storage and records
// it on the ticket.
func (e *Engine) AttachFile(ctx context.Context, ticketID uuid.UUID, filename, mimeType, attachmentType string, data []byte, description *string) (*models.FileAttachment, error) {
	t, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("loading ticket: %w", err)
	}
	if t.Status == models.StatusClosed {
		return nil, ErrTicketClosed
	}

	now := e.now()
	key := storage.AttachmentKey(t.ID, attachmentType, filename, data, now)
	info, err := e.blobs.Upload(ctx, data, key, mimeType)
	if err != nil {
		return nil, fmt.Errorf("uploading attachment: %w", err)
	}

	attachment := &models.FileAttachment{
		ID:               uuid.New(),
		TicketID:         t.ID,
		Filename:         info.Key,
		OriginalFilename: filename,
		FileSize:         int64(len(data)),
		MimeType:         mimeType,
		StorageKey:       info.Key,
		StorageBucket:    info.Bucket,
		StorageURL:       &info.URL,
		AttachmentType:   attachmentType,
		Description:      description,
		IsRelevant:       true,
		UploadedAt:       now,
	}
	if err := e.store.CreateFileAttachment(ctx, attachment); err != nil {
		return nil, fmt.Errorf("recording attachment: %w", err)
	}
	e.logger.Info("attachment stored", "ticket", t.ExternalID, "file", filename, "key", info.Key)
	return attachment, nil
}
