package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidresolve/engine/internal/ai/mock"
	"github.com/rapidresolve/engine/internal/events"
	"github.com/rapidresolve/engine/pkg/models"
)

// --- solution generation ---

func TestRequestSolutionRecordsAttempt(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)

	solution, updated, err := h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, solution.Content)
	assert.Equal(t, models.StatusWaitingCustomer, updated.Status)
	require.Len(t, updated.SolutionAttempts, 1)
	assert.Equal(t, models.AttemptNotAttempted, updated.SolutionAttempts[0].Result)
	assert.Equal(t, solution.Content, updated.SolutionAttempts[0].Content)

	// The solution lands in the conversation as an AI turn.
	turns, err := h.store.RecentTurns(context.Background(), ticket.ID, 20)
	require.NoError(t, err)
	last := turns[len(turns)-1]
	assert.Equal(t, models.SpeakerAIAgent, last.Speaker)
	assert.Equal(t, solution.Content, last.Message)
}

func TestRequestSolutionFailureYieldsSafeFallback(t *testing.T) {
	h := newHarness(mock.NewFailingProvider(errors.New("model unavailable")))
	ticket := createTestTicket(t, h)

	solution, updated, err := h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	assert.InDelta(t, 0.1, solution.Confidence, 1e-9)
	assert.True(t, solution.RequiresEscalation)
	assert.Equal(t, "AI processing error", solution.EscalationReason)
	assert.Equal(t, models.StatusEscalated, updated.Status)
	require.NotNil(t, updated.EscalationReason)
	assert.Equal(t, "AI processing error", *updated.EscalationReason)
	assert.Contains(t, h.publisher.typesSeen(), events.TicketEscalated)
}

func TestLowConfidenceSolutionTurnNeedsReview(t *testing.T) {
	provider := &mock.MockProvider{
		GenerateSolutionFunc: func(ctx context.Context, tctx models.TicketContext, previous []models.SolutionAttempt) (models.Solution, error) {
			return models.Solution{Content: "maybe try rebooting", Confidence: 0.3}, nil
		},
	}
	h := newHarness(provider)
	ticket := createTestTicket(t, h)

	_, _, err := h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	turns, err := h.store.RecentTurns(context.Background(), ticket.ID, 20)
	require.NoError(t, err)
	last := turns[len(turns)-1]
	assert.True(t, last.RequiresHumanReview)
}

// --- feedback policy ---

func TestFeedbackSuccessResolves(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)
	_, _, err := h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	satisfaction := 0.9
	outcome, err := h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID:     ticket.ID,
		Result:       models.AttemptSuccessful,
		Feedback:     "that fixed it, thanks",
		Satisfaction: &satisfaction,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusResolved, outcome.Ticket.Status)
	assert.NotNil(t, outcome.Ticket.ResolvedAt)
	require.NotNil(t, outcome.Ticket.CustomerSatisfactionScore)
	assert.InDelta(t, 0.9, *outcome.Ticket.CustomerSatisfactionScore, 1e-9)
	assert.Equal(t, models.AttemptSuccessful, outcome.Ticket.SolutionAttempts[0].Result)
	assert.Contains(t, h.publisher.typesSeen(), events.TicketResolved)
}

func TestFirstFailureRequestsNewSolution(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)
	_, _, err := h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	outcome, err := h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID: ticket.ID,
		Result:   models.AttemptFailed,
		Feedback: "did not help",
	})
	require.NoError(t, err)

	assert.False(t, outcome.Escalated)
	require.NotNil(t, outcome.NewSolution, "a first failure must produce a retry solution")
	assert.Len(t, outcome.Ticket.SolutionAttempts, 2)
	assert.NotEqual(t, models.StatusEscalated, outcome.Ticket.Status)
}

func TestSecondConsecutiveFailureEscalates(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)
	_, _, err := h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	first, err := h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID: ticket.ID,
		Result:   models.AttemptFailed,
	})
	require.NoError(t, err)
	require.NotNil(t, first.NewSolution)

	second, err := h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID: ticket.ID,
		Result:   models.AttemptFailed,
	})
	require.NoError(t, err)

	assert.True(t, second.Escalated)
	assert.Nil(t, second.NewSolution)
	assert.Equal(t, models.StatusEscalated, second.Ticket.Status)
	require.NotNil(t, second.Ticket.EscalationReason)
	assert.Contains(t, *second.Ticket.EscalationReason, "consecutive failed")
}

func TestPartialSuccessCountsTowardEscalation(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)
	_, _, err := h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	first, err := h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID: ticket.ID,
		Result:   models.AttemptPartiallySuccessful,
	})
	require.NoError(t, err)
	require.NotNil(t, first.NewSolution)

	second, err := h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID: ticket.ID,
		Result:   models.AttemptPartiallySuccessful,
	})
	require.NoError(t, err)
	assert.True(t, second.Escalated)
}

func TestUrgentPriorityEscalatesOnFeedback(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket, err := h.engine.CreateTicket(context.Background(), CreateTicketParams{
		CustomerEmail: "bob@example.com",
		Title:         "Outage",
		Description:   "Production is down",
		Priority:      models.PriorityUrgent,
	})
	require.NoError(t, err)
	_, _, err = h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	outcome, err := h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID: ticket.ID,
		Result:   models.AttemptFailed,
		Feedback: "nothing works",
	})
	require.NoError(t, err)

	assert.True(t, outcome.Escalated)
	assert.Nil(t, outcome.NewSolution, "an urgent ticket escalates instead of retrying")
	assert.Equal(t, models.StatusEscalated, outcome.Ticket.Status)
	require.NotNil(t, outcome.Ticket.EscalationReason)
	assert.Equal(t, "urgent priority ticket", *outcome.Ticket.EscalationReason)
	assert.Contains(t, h.publisher.typesSeen(), events.TicketEscalated)
}

func TestEscalatedTicketFeedbackSkipsRetry(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)
	_, _, err := h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	stored, err := h.store.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	reason := "needs a specialist"
	stored.Status = models.StatusEscalated
	stored.EscalationReason = &reason
	require.NoError(t, h.store.UpdateTicket(context.Background(), stored))

	outcome, err := h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID: ticket.ID,
		Result:   models.AttemptFailed,
	})
	require.NoError(t, err)

	assert.False(t, outcome.Escalated)
	assert.Nil(t, outcome.NewSolution)
	assert.Equal(t, models.StatusEscalated, outcome.Ticket.Status)
	assert.Len(t, outcome.Ticket.SolutionAttempts, 1)
}

func TestFeedbackStampsNewestInteraction(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)

	_, err := h.engine.ProcessInteraction(context.Background(), InteractionInput{
		TicketID: ticket.ID,
		Type:     models.InteractionFollowup,
		Channel:  models.ChannelChat,
		Content:  "still not printing after the restart",
	})
	require.NoError(t, err)
	solution, _, err := h.engine.RequestSolution(context.Background(), ticket.ID)
	require.NoError(t, err)

	_, err = h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID: ticket.ID,
		Result:   models.AttemptFailed,
		Feedback: "that did not help",
	})
	require.NoError(t, err)

	all, err := h.store.ListInteractions(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	last := all[len(all)-1]
	require.NotNil(t, last.SolutionProvided)
	assert.Equal(t, solution.Content, *last.SolutionProvided)
	require.NotNil(t, last.SolutionAttemptResult)
	assert.Equal(t, models.AttemptFailed, *last.SolutionAttemptResult)
	require.NotNil(t, last.CustomerFeedback)
	assert.Equal(t, "that did not help", *last.CustomerFeedback)
}

func TestFeedbackWithoutAttemptIsRejected(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)

	_, err := h.engine.HandleFeedback(context.Background(), FeedbackInput{
		TicketID: ticket.ID,
		Result:   models.AttemptFailed,
	})
	assert.ErrorIs(t, err, ErrNoSolutionAttempt)
}

// --- closing ---

func TestCloseTicketOnlyFromResolvedOrEscalated(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)

	_, err := h.engine.CloseTicket(context.Background(), ticket.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	stored, err := h.store.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	stored.Status = models.StatusResolved
	require.NoError(t, h.store.UpdateTicket(context.Background(), stored))

	closed, err := h.engine.CloseTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
}

// --- attachments ---

func TestAttachFileStoresUnderTicketPrefix(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket := createTestTicket(t, h)

	attachment, err := h.engine.AttachFile(context.Background(), ticket.ID,
		"manual.pdf", "application/pdf", "manual", []byte("pdf bytes"), nil)
	require.NoError(t, err)

	assert.Contains(t, attachment.StorageKey, "tickets/"+ticket.ID.String()+"/attachments/manual/")
	assert.Equal(t, int64(9), attachment.FileSize)

	stored, err := h.blobs.Download(context.Background(), attachment.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf bytes"), stored)
}

func TestUrgentPriorityEscalatesOnNextInteraction(t *testing.T) {
	h := newHarness(&mock.MockProvider{})
	ticket, err := h.engine.CreateTicket(context.Background(), CreateTicketParams{
		CustomerEmail: "bob@example.com",
		Title:         "Outage",
		Description:   "Production is down",
		Priority:      models.PriorityUrgent,
	})
	require.NoError(t, err)

	result, err := h.engine.ProcessInteraction(context.Background(), InteractionInput{
		TicketID: ticket.ID,
		Type:     models.InteractionInitial,
		Channel:  models.ChannelPhone,
		Content:  "please help now",
	})
	require.NoError(t, err)
	assert.True(t, result.Escalated)
	require.NotNil(t, result.Ticket.EscalationReason)
	assert.Equal(t, "urgent priority ticket", *result.Ticket.EscalationReason)
}
