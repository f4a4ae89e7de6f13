package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rapidresolve/engine/internal/api/response"
	"github.com/rapidresolve/engine/internal/engine"
	"github.com/rapidresolve/engine/internal/store"
	"github.com/rapidresolve/engine/pkg/models"
)

// TicketEngine is the slice of the engine the ticket handlers depend on.
type TicketEngine interface {
	CreateTicket(ctx context.Context, params engine.CreateTicketParams) (*models.Ticket, error)
	CloseTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
}

// ticketView is the API projection of a ticket: the stored fields plus the
// derived flags, which are recomputed on every read.
type ticketView struct {
	*models.Ticket
	RequiresAction     bool `json:"requires_action"`
	IsOpen             bool `json:"is_open"`
	IsResolved         bool `json:"is_resolved"`
	ResolutionAttempts int  `json:"resolution_attempts"`
}

func viewOf(t *models.Ticket) ticketView {
	return ticketView{
		Ticket:             t,
		RequiresAction:     t.RequiresAction(),
		IsOpen:             t.IsOpen(),
		IsResolved:         t.IsResolved(),
		ResolutionAttempts: t.ResolutionAttempts(),
	}
}

var validPriorities = map[models.TicketPriority]bool{
	models.PriorityLow:    true,
	models.PriorityMedium: true,
	models.PriorityHigh:   true,
	models.PriorityUrgent: true,
}

// NewCreateTicketHandler returns an http.HandlerFunc for POST /api/v1/tickets.
func NewCreateTicketHandler(eng TicketEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CustomerEmail string  `json:"customer_email"`
			CustomerName  *string `json:"customer_name"`
			CustomerPhone *string `json:"customer_phone"`
			Title         string  `json:"title"`
			Description   string  `json:"description"`
			Priority      string  `json:"priority"`
			Category      *string `json:"category"`
			ProductType   *string `json:"product_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Title == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "title is required", nil)
			return
		}
		if req.Description == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "description is required", nil)
			return
		}
		if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "customer_email must be a valid email address", nil)
			return
		}
		priority := models.TicketPriority(req.Priority)
		if req.Priority != "" && !validPriorities[priority] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"priority must be one of low, medium, high, urgent", nil)
			return
		}

		t, err := eng.CreateTicket(r.Context(), engine.CreateTicketParams{
			CustomerEmail: req.CustomerEmail,
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			Title:         req.Title,
			Description:   req.Description,
			Priority:      priority,
			Category:      req.Category,
			ProductType:   req.ProductType,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		response.Created(w, viewOf(t))
	}
}

// NewGetTicketHandler returns an http.HandlerFunc for GET /api/v1/tickets/{ticketID}.
func NewGetTicketHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := ticketIDParam(w, r)
		if !ok {
			return
		}
		t, err := st.GetTicket(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		response.JSON(w, viewOf(t))
	}
}

// NewListTicketsHandler returns an http.HandlerFunc for GET /api/v1/tickets.
func NewListTicketsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.TicketFilter{
			Status:        models.TicketStatus(q.Get("status")),
			Priority:      models.TicketPriority(q.Get("priority")),
			Category:      q.Get("category"),
			CustomerEmail: q.Get("customer_email"),
		}
		filter.Page, _ = strconv.Atoi(q.Get("page"))
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		if filter.Page < 1 {
			filter.Page = 1
		}
		if filter.Limit < 1 || filter.Limit > 100 {
			filter.Limit = 20
		}

		tickets, total, err := st.ListTickets(r.Context(), filter)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		views := make([]ticketView, 0, len(tickets))
		for _, t := range tickets {
			views = append(views, viewOf(t))
		}
		response.Collection(w, views, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}

// NewCloseTicketHandler returns an http.HandlerFunc for POST /api/v1/tickets/{ticketID}/close.
func NewCloseTicketHandler(eng TicketEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := ticketIDParam(w, r)
		if !ok {
			return
		}
		t, err := eng.CloseTicket(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		response.JSON(w, viewOf(t))
	}
}

func ticketIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "ticketID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "ticketID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// writeEngineError maps engine and store errors onto response envelopes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	case errors.Is(err, models.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION",
			"The ticket state does not allow this operation", nil)
	case errors.Is(err, engine.ErrTicketClosed):
		response.Error(w, http.StatusConflict, "TICKET_CLOSED",
			"The ticket is closed and no longer accepts changes", nil)
	case errors.Is(err, engine.ErrNoSolutionAttempt):
		response.Error(w, http.StatusBadRequest, "NO_SOLUTION_ATTEMPT",
			"No solution has been proposed for this ticket yet", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
