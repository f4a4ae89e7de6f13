package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	StatusOpen            TicketStatus = "open"
	StatusInProgress      TicketStatus = "in_progress"
	StatusWaitingCustomer TicketStatus = "waiting_customer"
	StatusEscalated       TicketStatus = "escalated"
	StatusResolved        TicketStatus = "resolved"
	StatusClosed          TicketStatus = "closed"
)

// TicketPriority is the customer-visible priority of a ticket.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// AutoEscalateThreshold is the default average urgency above which a ticket
// is escalated without human input. Overridable via configuration.
const AutoEscalateThreshold = 0.8

var ErrInvalidTransition = errors.New("invalid ticket status transition")

// validTransitions encodes the ticket state machine. Escalation is reachable
// from every open state; closed is terminal and reachable only from
// resolved or escalated.
var validTransitions = map[TicketStatus][]TicketStatus{
	StatusOpen:            {StatusInProgress, StatusWaitingCustomer, StatusEscalated, StatusResolved},
	StatusInProgress:      {StatusWaitingCustomer, StatusEscalated, StatusResolved},
	StatusWaitingCustomer: {StatusInProgress, StatusEscalated, StatusResolved},
	StatusEscalated:       {StatusResolved, StatusClosed},
	StatusResolved:        {StatusClosed},
	StatusClosed:          {},
}

// Ticket is the unit of a customer support case, spanning one or more
// interactions with full context preservation.
type Ticket struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	ExternalID string    `db:"external_id" json:"external_id"`

	CustomerEmail string  `db:"customer_email" json:"customer_email"`
	CustomerName  *string `db:"customer_name"  json:"customer_name,omitempty"`
	CustomerPhone *string `db:"customer_phone" json:"customer_phone,omitempty"`

	Title       string         `db:"title"        json:"title"`
	Description string         `db:"description"  json:"description"`
	Status      TicketStatus   `db:"status"       json:"status"`
	Priority    TicketPriority `db:"priority"     json:"priority"`
	Category    *string        `db:"category"     json:"category,omitempty"`
	ProductType *string        `db:"product_type" json:"product_type,omitempty"`

	ContextSummary   *string           `db:"context_summary"   json:"context_summary,omitempty"`
	SolutionAttempts []SolutionAttempt `db:"solution_attempts" json:"solution_attempts"`

	CustomerSatisfactionScore *float64 `db:"customer_satisfaction_score" json:"customer_satisfaction_score,omitempty"`
	AvgUrgencyScore           *float64 `db:"avg_urgency_score"           json:"avg_urgency_score,omitempty"`

	EscalationReason *string `db:"escalation_reason" json:"escalation_reason,omitempty"`
	EscalatedTo      *string `db:"escalated_to"      json:"escalated_to,omitempty"`

	CreatedAt       time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"        json:"updated_at"`
	FirstResponseAt *time.Time `db:"first_response_at" json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time `db:"resolved_at"       json:"resolved_at,omitempty"`
	ClosedAt        *time.Time `db:"closed_at"         json:"closed_at,omitempty"`
}

// IsOpen reports whether the ticket is still being worked.
func (t *Ticket) IsOpen() bool {
	switch t.Status {
	case StatusOpen, StatusInProgress, StatusWaitingCustomer:
		return true
	}
	return false
}

// IsResolved reports whether the ticket reached a resolved state.
func (t *Ticket) IsResolved() bool {
	return t.Status == StatusResolved || t.Status == StatusClosed
}

// RequiresAction reports whether the ticket needs immediate human attention.
// Derived, never persisted.
func (t *Ticket) RequiresAction() bool {
	if t.Status == StatusEscalated || t.Priority == PriorityUrgent {
		return true
	}
	return t.AvgUrgencyScore != nil && *t.AvgUrgencyScore > AutoEscalateThreshold
}

// CanTransition reports whether moving from the current status to target is
// allowed by the state machine. Staying in place is always allowed.
func (t *Ticket) CanTransition(target TicketStatus) bool {
	if t.Status == target {
		return true
	}
	for _, s := range validTransitions[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo moves the ticket to target, stamping resolved_at/closed_at as
// appropriate. Rejected with ErrInvalidTransition before any mutation.
func (t *Ticket) TransitionTo(target TicketStatus, now time.Time) error {
	if !t.CanTransition(target) {
		return ErrInvalidTransition
	}
	if t.Status == target {
		return nil
	}
	t.Status = target
	t.UpdatedAt = now
	switch target {
	case StatusResolved:
		t.ResolvedAt = &now
	case StatusClosed:
		t.ClosedAt = &now
	}
	return nil
}

// Escalate moves the ticket to escalated, keeping the first recorded reason.
func (t *Ticket) Escalate(reason string, now time.Time) error {
	if t.EscalationReason == nil {
		t.EscalationReason = &reason
	}
	return t.TransitionTo(StatusEscalated, now)
}

// ResolutionAttempts counts solution attempts with a recorded outcome.
func (t *Ticket) ResolutionAttempts() int {
	n := 0
	for _, a := range t.SolutionAttempts {
		if a.Result != "" && a.Result != AttemptNotAttempted {
			n++
		}
	}
	return n
}

// ConsecutiveFailures counts the trailing run of failed or partially
// successful attempts, newest backwards.
func (t *Ticket) ConsecutiveFailures() int {
	n := 0
	for i := len(t.SolutionAttempts) - 1; i >= 0; i-- {
		r := t.SolutionAttempts[i].Result
		if r != AttemptFailed && r != AttemptPartiallySuccessful {
			break
		}
		n++
	}
	return n
}

// LatestAttempt returns the most recent solution attempt, or nil.
func (t *Ticket) LatestAttempt() *SolutionAttempt {
	if len(t.SolutionAttempts) == 0 {
		return nil
	}
	return &t.SolutionAttempts[len(t.SolutionAttempts)-1]
}
