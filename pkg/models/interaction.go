package models

import (
	"time"

	"github.com/google/uuid"
)

// InteractionType classifies what a customer exchange is.
type InteractionType string

const (
	InteractionInitial          InteractionType = "initial"
	InteractionFollowup         InteractionType = "followup"
	InteractionClarification    InteractionType = "clarification"
	InteractionSolutionFeedback InteractionType = "solution_feedback"
	InteractionEscalation       InteractionType = "escalation"
)

// InteractionChannel is the medium the customer used.
type InteractionChannel string

const (
	ChannelEmail   InteractionChannel = "email"
	ChannelPhone   InteractionChannel = "phone"
	ChannelChat    InteractionChannel = "chat"
	ChannelWebForm InteractionChannel = "web_form"
	ChannelSMS     InteractionChannel = "sms"
)

// AttemptResult is the recorded outcome of a solution attempt.
type AttemptResult string

const (
	AttemptSuccessful          AttemptResult = "successful"
	AttemptFailed              AttemptResult = "failed"
	AttemptPartiallySuccessful AttemptResult = "partially_successful"
	AttemptNotAttempted        AttemptResult = "not_attempted"
)

// Interaction is one customer/system exchange within a ticket, possibly
// carrying media. Owned exclusively by its ticket.
type Interaction struct {
	ID       uuid.UUID `db:"id"        json:"id"`
	TicketID uuid.UUID `db:"ticket_id" json:"ticket_id"`

	InteractionType InteractionType    `db:"interaction_type" json:"interaction_type"`
	Channel         InteractionChannel `db:"channel"          json:"channel"`
	SequenceNumber  int                `db:"sequence_number"  json:"sequence_number"`

	RawContent       string `db:"raw_content"       json:"raw_content"`
	ProcessedContent string `db:"processed_content" json:"processed_content"`

	Analysis     *TextAnalysis `db:"ai_analysis"   json:"ai_analysis,omitempty"`
	UrgencyScore *float64      `db:"urgency_score" json:"urgency_score,omitempty"`

	MediaTypes   []string `db:"media_types"   json:"media_types"`
	HasAudio     bool     `db:"has_audio"     json:"has_audio"`
	HasImages    bool     `db:"has_images"    json:"has_images"`
	HasDocuments bool     `db:"has_documents" json:"has_documents"`

	SolutionProvided      *string        `db:"solution_provided"       json:"solution_provided,omitempty"`
	SolutionAttemptResult *AttemptResult `db:"solution_attempt_result" json:"solution_attempt_result,omitempty"`
	CustomerFeedback      *string        `db:"customer_feedback"       json:"customer_feedback,omitempty"`

	IsProcessed     bool    `db:"is_processed"     json:"is_processed"`
	ProcessingError *string `db:"processing_error" json:"processing_error,omitempty"`

	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// HasMedia reports whether the interaction carried any media payloads.
func (i *Interaction) HasMedia() bool {
	return i.HasAudio || i.HasImages || i.HasDocuments
}

// IsHighUrgency reports whether the interaction scored above 0.7.
func (i *Interaction) IsHighUrgency() bool {
	return i.UrgencyScore != nil && *i.UrgencyScore > 0.7
}

// NeedsFollowup reports whether the interaction is unresolved feedback.
func (i *Interaction) NeedsFollowup() bool {
	if i.InteractionType != InteractionSolutionFeedback || i.SolutionAttemptResult == nil {
		return false
	}
	return *i.SolutionAttemptResult == AttemptFailed ||
		*i.SolutionAttemptResult == AttemptPartiallySuccessful
}

// ClampScore bounds an urgency or confidence score to [0, 1].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
