package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrFloat(v float64) *float64 { return &v }

// --- state machine ---

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    TicketStatus
		to      TicketStatus
		allowed bool
	}{
		{"open to in_progress", StatusOpen, StatusInProgress, true},
		{"open to escalated", StatusOpen, StatusEscalated, true},
		{"open to resolved", StatusOpen, StatusResolved, true},
		{"open to closed", StatusOpen, StatusClosed, false},
		{"in_progress to waiting_customer", StatusInProgress, StatusWaitingCustomer, true},
		{"waiting_customer back to in_progress", StatusWaitingCustomer, StatusInProgress, true},
		{"waiting_customer to escalated", StatusWaitingCustomer, StatusEscalated, true},
		{"in_progress to closed", StatusInProgress, StatusClosed, false},
		{"escalated to resolved", StatusEscalated, StatusResolved, true},
		{"escalated to closed", StatusEscalated, StatusClosed, true},
		{"resolved to closed", StatusResolved, StatusClosed, true},
		{"resolved to open", StatusResolved, StatusOpen, false},
		{"closed is terminal", StatusClosed, StatusOpen, false},
		{"closed to resolved", StatusClosed, StatusResolved, false},
		{"same status always allowed", StatusClosed, StatusClosed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := &Ticket{Status: tt.from}
			assert.Equal(t, tt.allowed, ticket.CanTransition(tt.to))
		})
	}
}

func TestTransitionToStampsTimestamps(t *testing.T) {
	now := time.Now().UTC()
	ticket := &Ticket{Status: StatusInProgress}

	require.NoError(t, ticket.TransitionTo(StatusResolved, now))
	require.NotNil(t, ticket.ResolvedAt)
	assert.Equal(t, now, *ticket.ResolvedAt)

	require.NoError(t, ticket.TransitionTo(StatusClosed, now))
	require.NotNil(t, ticket.ClosedAt)
	assert.Equal(t, now, *ticket.ClosedAt)
}

func TestTransitionToRejectsBeforeMutation(t *testing.T) {
	ticket := &Ticket{Status: StatusOpen}
	err := ticket.TransitionTo(StatusClosed, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusOpen, ticket.Status)
	assert.Nil(t, ticket.ClosedAt)
}

func TestEscalateKeepsFirstReason(t *testing.T) {
	now := time.Now().UTC()
	ticket := &Ticket{Status: StatusOpen}

	require.NoError(t, ticket.Escalate("first reason", now))
	require.NotNil(t, ticket.EscalationReason)
	assert.Equal(t, "first reason", *ticket.EscalationReason)

	// Escalating an escalated ticket is a no-op and the reason is kept.
	require.NoError(t, ticket.Escalate("second reason", now))
	assert.Equal(t, "first reason", *ticket.EscalationReason)
}

// --- derived flags ---

func TestRequiresActionUrgencyBoundary(t *testing.T) {
	tests := []struct {
		name     string
		avg      *float64
		expected bool
	}{
		{"below threshold", ptrFloat(0.79), false},
		{"exactly at threshold", ptrFloat(0.80), false},
		{"above threshold", ptrFloat(0.81), true},
		{"no score", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := &Ticket{Status: StatusOpen, Priority: PriorityMedium, AvgUrgencyScore: tt.avg}
			assert.Equal(t, tt.expected, ticket.RequiresAction())
		})
	}
}

func TestRequiresActionStatusAndPriority(t *testing.T) {
	escalated := &Ticket{Status: StatusEscalated, Priority: PriorityLow}
	assert.True(t, escalated.RequiresAction())

	urgent := &Ticket{Status: StatusOpen, Priority: PriorityUrgent}
	assert.True(t, urgent.RequiresAction())

	calm := &Ticket{Status: StatusOpen, Priority: PriorityMedium}
	assert.False(t, calm.RequiresAction())
}

func TestIsOpenIsResolved(t *testing.T) {
	open := []TicketStatus{StatusOpen, StatusInProgress, StatusWaitingCustomer}
	for _, s := range open {
		assert.True(t, (&Ticket{Status: s}).IsOpen(), string(s))
		assert.False(t, (&Ticket{Status: s}).IsResolved(), string(s))
	}
	assert.True(t, (&Ticket{Status: StatusResolved}).IsResolved())
	assert.True(t, (&Ticket{Status: StatusClosed}).IsResolved())
	assert.False(t, (&Ticket{Status: StatusEscalated}).IsOpen())
	assert.False(t, (&Ticket{Status: StatusEscalated}).IsResolved())
}

// --- attempt history ---

func TestConsecutiveFailures(t *testing.T) {
	tests := []struct {
		name     string
		results  []AttemptResult
		expected int
	}{
		{"no attempts", nil, 0},
		{"single failure", []AttemptResult{AttemptFailed}, 1},
		{"partial counts as failure", []AttemptResult{AttemptPartiallySuccessful}, 1},
		{"two trailing failures", []AttemptResult{AttemptSuccessful, AttemptFailed, AttemptFailed}, 2},
		{"success resets the run", []AttemptResult{AttemptFailed, AttemptSuccessful}, 0},
		{"unattempted breaks the run", []AttemptResult{AttemptFailed, AttemptNotAttempted}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := &Ticket{}
			for _, r := range tt.results {
				ticket.SolutionAttempts = append(ticket.SolutionAttempts, SolutionAttempt{Result: r})
			}
			assert.Equal(t, tt.expected, ticket.ConsecutiveFailures())
		})
	}
}

func TestResolutionAttempts(t *testing.T) {
	ticket := &Ticket{SolutionAttempts: []SolutionAttempt{
		{Result: AttemptFailed},
		{Result: AttemptNotAttempted},
		{Result: AttemptSuccessful},
	}}
	assert.Equal(t, 2, ticket.ResolutionAttempts())
}

func TestLatestAttempt(t *testing.T) {
	ticket := &Ticket{}
	assert.Nil(t, ticket.LatestAttempt())

	ticket.SolutionAttempts = []SolutionAttempt{{Content: "a"}, {Content: "b"}}
	latest := ticket.LatestAttempt()
	require.NotNil(t, latest)
	assert.Equal(t, "b", latest.Content)

	// Mutating the returned attempt must affect the stored history.
	latest.Result = AttemptFailed
	assert.Equal(t, AttemptFailed, ticket.SolutionAttempts[1].Result)
}
