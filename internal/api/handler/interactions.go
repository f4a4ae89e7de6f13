package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/rapidresolve/engine/internal/api/response"
	"github.com/rapidresolve/engine/internal/engine"
	"github.com/rapidresolve/engine/pkg/models"
)

// Interaction submissions carry media; cap the multipart form size.
const maxUploadBytes = 32 << 20 // 32 MiB

// InteractionEngine is the slice of the engine the interaction handlers
// depend on.
type InteractionEngine interface {
	ProcessInteraction(ctx context.Context, input engine.InteractionInput) (*engine.InteractionResult, error)
	AttachFile(ctx context.Context, ticketID uuid.UUID, filename, mimeType, attachmentType string, data []byte, description *string) (*models.FileAttachment, error)
}

var validInteractionTypes = map[models.InteractionType]bool{
	models.InteractionInitial:          true,
	models.InteractionFollowup:         true,
	models.InteractionClarification:    true,
	models.InteractionSolutionFeedback: true,
	models.InteractionEscalation:       true,
}

var validChannels = map[models.InteractionChannel]bool{
	models.ChannelEmail:   true,
	models.ChannelPhone:   true,
	models.ChannelChat:    true,
	models.ChannelWebForm: true,
	models.ChannelSMS:     true,
}

// NewSubmitInteractionHandler returns an http.HandlerFunc for
// POST /api/v1/tickets/{ticketID}/interactions. The body is multipart:
// content/interaction_type/channel/language fields plus zero or more
// "media" file parts.
func NewSubmitInteractionHandler(eng InteractionEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := ticketIDParam(w, r)
		if !ok {
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Body must be multipart form data within the size limit", nil)
			return
		}

		content := r.FormValue("content")
		itype := models.InteractionType(r.FormValue("interaction_type"))
		if itype == "" {
			itype = models.InteractionFollowup
		}
		channel := models.InteractionChannel(r.FormValue("channel"))
		if channel == "" {
			channel = models.ChannelWebForm
		}
		if !validInteractionTypes[itype] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"interaction_type must be one of initial, followup, clarification, solution_feedback, escalation", nil)
			return
		}
		if !validChannels[channel] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"channel must be one of email, phone, chat, web_form, sms", nil)
			return
		}

		var media []engine.MediaPayload
		if r.MultipartForm != nil {
			for _, fh := range r.MultipartForm.File["media"] {
				f, err := fh.Open()
				if err != nil {
					response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
						"Could not read uploaded file "+fh.Filename, nil)
					return
				}
				data, err := io.ReadAll(f)
				f.Close()
				if err != nil {
					response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
						"Could not read uploaded file "+fh.Filename, nil)
					return
				}
				media = append(media, engine.MediaPayload{
					Filename: fh.Filename,
					MimeType: fh.Header.Get("Content-Type"),
					Data:     data,
					Language: r.FormValue("language"),
				})
			}
		}
		if content == "" && len(media) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"content or at least one media file is required", nil)
			return
		}

		result, err := eng.ProcessInteraction(r.Context(), engine.InteractionInput{
			TicketID: id,
			Type:     itype,
			Channel:  channel,
			Content:  content,
			Media:    media,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		// 202: the context summary keeps regenerating after this response.
		response.Accepted(w, map[string]any{
			"interaction": result.Interaction,
			"ticket":      viewOf(result.Ticket),
			"escalated":   result.Escalated,
		})
	}
}

// NewUploadAttachmentHandler returns an http.HandlerFunc for
// POST /api/v1/tickets/{ticketID}/attachments.
func NewUploadAttachmentHandler(eng InteractionEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := ticketIDParam(w, r)
		if !ok {
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Body must be multipart form data within the size limit", nil)
			return
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file is required", nil)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Could not read uploaded file", nil)
			return
		}

		attachmentType := r.FormValue("attachment_type")
		if attachmentType == "" {
			attachmentType = "general"
		}
		var description *string
		if d := r.FormValue("description"); d != "" {
			description = &d
		}

		attachment, err := eng.AttachFile(r.Context(), id,
			fh.Filename, fh.Header.Get("Content-Type"), attachmentType, data, description)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		response.Created(w, attachment)
	}
}
