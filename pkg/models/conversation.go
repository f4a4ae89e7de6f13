package models

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerCustomer   Speaker = "customer"
	SpeakerAIAgent    Speaker = "ai_agent"
	SpeakerHumanAgent Speaker = "human_agent"
	SpeakerSystem     Speaker = "system"
)

// LowConfidenceThreshold is the AI confidence below which a turn is flagged
// for human review.
const LowConfidenceThreshold = 0.6

// ConversationTurn is a denormalized, speaker-tagged projection of the
// ticket's interaction stream used for prompting. Append-only; never edited
// after creation.
type ConversationTurn struct {
	ID       uuid.UUID `db:"id"        json:"id"`
	TicketID uuid.UUID `db:"ticket_id" json:"ticket_id"`

	Turn      int     `db:"conversation_turn" json:"conversation_turn"`
	Speaker   Speaker `db:"speaker_type"      json:"speaker_type"`
	SpeakerID *string `db:"speaker_id"        json:"speaker_id,omitempty"`

	Message     string `db:"message"      json:"message"`
	MessageType string `db:"message_type" json:"message_type"`

	AIConfidence        *float64 `db:"ai_confidence"         json:"ai_confidence,omitempty"`
	RequiresHumanReview bool     `db:"requires_human_review" json:"requires_human_review"`

	InteractionID *uuid.UUID `db:"interaction_id" json:"interaction_id,omitempty"`

	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// NewTurn builds a conversation turn, deriving requires_human_review from
// the confidence value. Turn numbering is assigned on append.
func NewTurn(ticketID uuid.UUID, speaker Speaker, message, messageType string, confidence *float64) *ConversationTurn {
	t := &ConversationTurn{
		ID:           uuid.New(),
		TicketID:     ticketID,
		Speaker:      speaker,
		Message:      message,
		MessageType:  messageType,
		AIConfidence: confidence,
		Timestamp:    time.Now().UTC(),
	}
	if confidence != nil {
		t.RequiresHumanReview = *confidence < LowConfidenceThreshold
	}
	return t
}

// IsFromCustomer reports whether the turn came from the customer.
func (c *ConversationTurn) IsFromCustomer() bool { return c.Speaker == SpeakerCustomer }

// IsLowConfidence reports whether AI confidence is below the review threshold.
func (c *ConversationTurn) IsLowConfidence() bool {
	return c.AIConfidence != nil && *c.AIConfidence < LowConfidenceThreshold
}
