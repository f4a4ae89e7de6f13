package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/rapidresolve/engine/internal/api/response"
	"github.com/rapidresolve/engine/internal/engine"
	"github.com/rapidresolve/engine/pkg/models"
)

// SolutionEngine is the slice of the engine the solution handlers depend on.
type SolutionEngine interface {
	RequestSolution(ctx context.Context, ticketID uuid.UUID) (models.Solution, *models.Ticket, error)
	HandleFeedback(ctx context.Context, input engine.FeedbackInput) (*engine.FeedbackOutcome, error)
}

var validAttemptResults = map[models.AttemptResult]bool{
	models.AttemptSuccessful:          true,
	models.AttemptFailed:              true,
	models.AttemptPartiallySuccessful: true,
	models.AttemptNotAttempted:        true,
}

// NewRequestSolutionHandler returns an http.HandlerFunc for
// POST /api/v1/tickets/{ticketID}/solution.
func NewRequestSolutionHandler(eng SolutionEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := ticketIDParam(w, r)
		if !ok {
			return
		}
		solution, t, err := eng.RequestSolution(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		response.JSON(w, map[string]any{
			"solution": solution,
			"ticket":   viewOf(t),
		})
	}
}

// NewFeedbackHandler returns an http.HandlerFunc for
// POST /api/v1/tickets/{ticketID}/feedback.
func NewFeedbackHandler(eng SolutionEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := ticketIDParam(w, r)
		if !ok {
			return
		}
		var req struct {
			Result       string   `json:"result"`
			Feedback     string   `json:"feedback"`
			Satisfaction *float64 `json:"satisfaction_score"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		result := models.AttemptResult(req.Result)
		if !validAttemptResults[result] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"result must be one of successful, failed, partially_successful, not_attempted", nil)
			return
		}
		if req.Satisfaction != nil && (*req.Satisfaction < 0 || *req.Satisfaction > 1) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"satisfaction_score must be between 0 and 1", nil)
			return
		}

		outcome, err := eng.HandleFeedback(r.Context(), engine.FeedbackInput{
			TicketID:     id,
			Result:       result,
			Feedback:     req.Feedback,
			Satisfaction: req.Satisfaction,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		body := map[string]any{
			"ticket":    viewOf(outcome.Ticket),
			"escalated": outcome.Escalated,
		}
		if outcome.NewSolution != nil {
			body["new_solution"] = outcome.NewSolution
		}
		response.JSON(w, body)
	}
}
