package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rapidresolve/engine/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	GetTicketByExternalID(ctx context.Context, externalID string) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, t *models.Ticket) error
	ListTickets(ctx context.Context, filter TicketFilter) ([]*models.Ticket, int, error)
	// DeleteTicket removes a ticket and, by cascade, its interactions,
	// conversation turns, media files and attachments.
	DeleteTicket(ctx context.Context, id uuid.UUID) error

	// AppendInteraction atomically assigns the next sequence number, inserts
	// the interaction with its conversation turns and media files, and
	// recomputes the ticket's urgency average — all in one transaction with
	// the ticket row locked. Returns the refreshed ticket.
	AppendInteraction(ctx context.Context, params AppendInteractionParams) (*models.Ticket, error)
	GetInteraction(ctx context.Context, id uuid.UUID) (*models.Interaction, error)
	ListInteractions(ctx context.Context, ticketID uuid.UUID) ([]*models.Interaction, error)
	UpdateInteraction(ctx context.Context, i *models.Interaction) error

	AppendTurns(ctx context.Context, ticketID uuid.UUID, turns []*models.ConversationTurn) error
	// RecentTurns returns at most limit of the newest turns, oldest first.
	RecentTurns(ctx context.Context, ticketID uuid.UUID, limit int) ([]*models.ConversationTurn, error)
	CountTurns(ctx context.Context, ticketID uuid.UUID) (int, error)

	ListMediaFiles(ctx context.Context, interactionID uuid.UUID) ([]*models.MediaFile, error)

	CreateFileAttachment(ctx context.Context, a *models.FileAttachment) error
	ListFileAttachments(ctx context.Context, ticketID uuid.UUID) ([]*models.FileAttachment, error)
}

// AppendInteractionParams carries everything persisted with one customer
// interaction. SequenceNumber on the interaction and Turn on each turn are
// assigned inside the transaction; values set by the caller are ignored.
type AppendInteractionParams struct {
	TicketID    uuid.UUID
	Interaction *models.Interaction
	Turns       []*models.ConversationTurn
	MediaFiles  []*models.MediaFile
}

// TicketFilter narrows and paginates ticket listings.
type TicketFilter struct {
	Status        models.TicketStatus
	Priority      models.TicketPriority
	Category      string
	CustomerEmail string
	Page          int
	Limit         int
}
