package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rapidresolve/engine/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const ticketColumns = `id, external_id, customer_email, customer_name, customer_phone,
	title, description, status, priority, category, product_type,
	context_summary, solution_attempts, customer_satisfaction_score, avg_urgency_score,
	escalation_reason, escalated_to,
	created_at, updated_at, first_response_at, resolved_at, closed_at`

const interactionColumns = `id, ticket_id, interaction_type, channel, sequence_number,
	raw_content, processed_content, ai_analysis, urgency_score,
	media_types, has_audio, has_images, has_documents,
	solution_provided, solution_attempt_result, customer_feedback,
	is_processed, processing_error, created_at, processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.ExternalID, &t.CustomerEmail, &t.CustomerName, &t.CustomerPhone,
		&t.Title, &t.Description, &t.Status, &t.Priority, &t.Category, &t.ProductType,
		&t.ContextSummary, &t.SolutionAttempts, &t.CustomerSatisfactionScore, &t.AvgUrgencyScore,
		&t.EscalationReason, &t.EscalatedTo,
		&t.CreatedAt, &t.UpdatedAt, &t.FirstResponseAt, &t.ResolvedAt, &t.ClosedAt)
	if err != nil {
		return nil, err
	}
	if t.SolutionAttempts == nil {
		t.SolutionAttempts = []models.SolutionAttempt{}
	}
	return &t, nil
}

func scanInteraction(row rowScanner) (*models.Interaction, error) {
	var i models.Interaction
	err := row.Scan(&i.ID, &i.TicketID, &i.InteractionType, &i.Channel, &i.SequenceNumber,
		&i.RawContent, &i.ProcessedContent, &i.Analysis, &i.UrgencyScore,
		&i.MediaTypes, &i.HasAudio, &i.HasImages, &i.HasDocuments,
		&i.SolutionProvided, &i.SolutionAttemptResult, &i.CustomerFeedback,
		&i.IsProcessed, &i.ProcessingError, &i.CreatedAt, &i.ProcessedAt)
	if err != nil {
		return nil, err
	}
	if i.MediaTypes == nil {
		i.MediaTypes = []string{}
	}
	return &i, nil
}

// --- Tickets ---

func (s *PostgresStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tickets (id, external_id, customer_email, customer_name, customer_phone,
		   title, description, status, priority, category, product_type,
		   context_summary, solution_attempts, customer_satisfaction_score, avg_urgency_score,
		   escalation_reason, escalated_to, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		t.ID, t.ExternalID, t.CustomerEmail, t.CustomerName, t.CustomerPhone,
		t.Title, t.Description, t.Status, t.Priority, t.Category, t.ProductType,
		t.ContextSummary, t.SolutionAttempts, t.CustomerSatisfactionScore, t.AvgUrgencyScore,
		t.EscalationReason, t.EscalatedTo, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	t, err := scanTicket(s.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTicketByExternalID(ctx context.Context, externalID string) (*models.Ticket, error) {
	t, err := scanTicket(s.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE external_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket by external id: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tickets SET
		   customer_name = $2, customer_phone = $3, title = $4, description = $5,
		   status = $6, priority = $7, category = $8, product_type = $9,
		   context_summary = $10, solution_attempts = $11,
		   customer_satisfaction_score = $12, avg_urgency_score = $13,
		   escalation_reason = $14, escalated_to = $15,
		   updated_at = now(), first_response_at = $16, resolved_at = $17, closed_at = $18
		 WHERE id = $1`,
		t.ID, t.CustomerName, t.CustomerPhone, t.Title, t.Description,
		t.Status, t.Priority, t.Category, t.ProductType,
		t.ContextSummary, t.SolutionAttempts,
		t.CustomerSatisfactionScore, t.AvgUrgencyScore,
		t.EscalationReason, t.EscalatedTo,
		t.FirstResponseAt, t.ResolvedAt, t.ClosedAt)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTickets(ctx context.Context, filter TicketFilter) ([]*models.Ticket, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Priority != "" {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", argIdx))
		args = append(args, filter.Priority)
		argIdx++
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, filter.Category)
		argIdx++
	}
	if filter.CustomerEmail != "" {
		conditions = append(conditions, fmt.Sprintf("customer_email = $%d", argIdx))
		args = append(args, filter.CustomerEmail)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tickets WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf("SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		ticketColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, total, rows.Err()
}

func (s *PostgresStore) DeleteTicket(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Interactions ---

func (s *PostgresStore) AppendInteraction(ctx context.Context, params AppendInteractionParams) (*models.Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append interaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the ticket row so sequence and turn assignment are serialized.
	var ticketID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM tickets WHERE id = $1 FOR UPDATE`, params.TicketID).Scan(&ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock ticket: %w", err)
	}

	i := params.Interaction
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM interactions WHERE ticket_id = $1`,
		params.TicketID).Scan(&i.SequenceNumber); err != nil {
		return nil, fmt.Errorf("next sequence number: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO interactions (id, ticket_id, interaction_type, channel, sequence_number,
		   raw_content, processed_content, ai_analysis, urgency_score,
		   media_types, has_audio, has_images, has_documents,
		   solution_provided, solution_attempt_result, customer_feedback,
		   is_processed, processing_error, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		i.ID, params.TicketID, i.InteractionType, i.Channel, i.SequenceNumber,
		i.RawContent, i.ProcessedContent, i.Analysis, i.UrgencyScore,
		i.MediaTypes, i.HasAudio, i.HasImages, i.HasDocuments,
		i.SolutionProvided, i.SolutionAttemptResult, i.CustomerFeedback,
		i.IsProcessed, i.ProcessingError, i.CreatedAt, i.ProcessedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert interaction: %w", err)
	}

	var turnBase int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(conversation_turn), 0) FROM conversation_history WHERE ticket_id = $1`,
		params.TicketID).Scan(&turnBase); err != nil {
		return nil, fmt.Errorf("next conversation turn: %w", err)
	}

	for n, turn := range params.Turns {
		turn.Turn = turnBase + n + 1
		turn.TicketID = params.TicketID
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_history (id, ticket_id, conversation_turn, speaker_type, speaker_id,
			   message, message_type, ai_confidence, requires_human_review, interaction_id, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			turn.ID, turn.TicketID, turn.Turn, turn.Speaker, turn.SpeakerID,
			turn.Message, turn.MessageType, turn.AIConfidence, turn.RequiresHumanReview,
			turn.InteractionID, turn.Timestamp); err != nil {
			if isDuplicateKeyError(err) {
				return nil, ErrDuplicateKey
			}
			return nil, fmt.Errorf("insert conversation turn: %w", err)
		}
	}

	for _, m := range params.MediaFiles {
		m.InteractionID = i.ID
		if _, err := tx.Exec(ctx,
			`INSERT INTO media_files (id, interaction_id, filename, original_filename, media_type,
			   file_size, mime_type, storage_key, storage_bucket, storage_url,
			   transcription, image_analysis, document_analysis,
			   is_processed, processing_error, uploaded_at, processed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			m.ID, m.InteractionID, m.Filename, m.OriginalFilename, m.MediaType,
			m.FileSize, m.MimeType, m.StorageKey, m.StorageBucket, m.StorageURL,
			m.Transcription, m.ImageAnalysis, m.DocumentAnalysis,
			m.IsProcessed, m.ProcessingError, m.UploadedAt, m.ProcessedAt); err != nil {
			return nil, fmt.Errorf("insert media file: %w", err)
		}
	}

	// avg_urgency_score is the mean over all interactions with a score.
	_, err = tx.Exec(ctx,
		`UPDATE tickets SET
		   avg_urgency_score = (SELECT AVG(urgency_score) FROM interactions
		                        WHERE ticket_id = $1 AND urgency_score IS NOT NULL),
		   updated_at = now()
		 WHERE id = $1`, params.TicketID)
	if err != nil {
		return nil, fmt.Errorf("recompute ticket metrics: %w", err)
	}

	t, err := scanTicket(tx.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, params.TicketID))
	if err != nil {
		return nil, fmt.Errorf("reload ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append interaction: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetInteraction(ctx context.Context, id uuid.UUID) (*models.Interaction, error) {
	i, err := scanInteraction(s.pool.QueryRow(ctx,
		`SELECT `+interactionColumns+` FROM interactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get interaction: %w", err)
	}
	return i, nil
}

func (s *PostgresStore) ListInteractions(ctx context.Context, ticketID uuid.UUID) ([]*models.Interaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+interactionColumns+` FROM interactions WHERE ticket_id = $1 ORDER BY sequence_number`,
		ticketID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateInteraction(ctx context.Context, i *models.Interaction) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE interactions SET
		   processed_content = $2, ai_analysis = $3, urgency_score = $4,
		   solution_provided = $5, solution_attempt_result = $6, customer_feedback = $7,
		   is_processed = $8, processing_error = $9, processed_at = $10
		 WHERE id = $1`,
		i.ID, i.ProcessedContent, i.Analysis, i.UrgencyScore,
		i.SolutionProvided, i.SolutionAttemptResult, i.CustomerFeedback,
		i.IsProcessed, i.ProcessingError, i.ProcessedAt)
	if err != nil {
		return fmt.Errorf("update interaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Conversation history ---

func (s *PostgresStore) AppendTurns(ctx context.Context, ticketID uuid.UUID, turns []*models.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append turns: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM tickets WHERE id = $1 FOR UPDATE`, ticketID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock ticket: %w", err)
	}

	var turnBase int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(conversation_turn), 0) FROM conversation_history WHERE ticket_id = $1`,
		ticketID).Scan(&turnBase); err != nil {
		return fmt.Errorf("next conversation turn: %w", err)
	}

	for n, turn := range turns {
		turn.Turn = turnBase + n + 1
		turn.TicketID = ticketID
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_history (id, ticket_id, conversation_turn, speaker_type, speaker_id,
			   message, message_type, ai_confidence, requires_human_review, interaction_id, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			turn.ID, turn.TicketID, turn.Turn, turn.Speaker, turn.SpeakerID,
			turn.Message, turn.MessageType, turn.AIConfidence, turn.RequiresHumanReview,
			turn.InteractionID, turn.Timestamp); err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("insert conversation turn: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, ticketID uuid.UUID, limit int) ([]*models.ConversationTurn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ticket_id, conversation_turn, speaker_type, speaker_id,
		   message, message_type, ai_confidence, requires_human_review, interaction_id, timestamp
		 FROM (
		   SELECT * FROM conversation_history WHERE ticket_id = $1
		   ORDER BY conversation_turn DESC LIMIT $2
		 ) recent
		 ORDER BY conversation_turn ASC`,
		ticketID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var out []*models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		if err := rows.Scan(&t.ID, &t.TicketID, &t.Turn, &t.Speaker, &t.SpeakerID,
			&t.Message, &t.MessageType, &t.AIConfidence, &t.RequiresHumanReview,
			&t.InteractionID, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan conversation turn: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountTurns(ctx context.Context, ticketID uuid.UUID) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation_history WHERE ticket_id = $1`, ticketID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

// --- Media files and attachments ---

func (s *PostgresStore) ListMediaFiles(ctx context.Context, interactionID uuid.UUID) ([]*models.MediaFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, interaction_id, filename, original_filename, media_type,
		   file_size, mime_type, storage_key, storage_bucket, storage_url,
		   transcription, image_analysis, document_analysis,
		   is_processed, processing_error, uploaded_at, processed_at
		 FROM media_files WHERE interaction_id = $1 ORDER BY uploaded_at`,
		interactionID)
	if err != nil {
		return nil, fmt.Errorf("list media files: %w", err)
	}
	defer rows.Close()

	var out []*models.MediaFile
	for rows.Next() {
		var m models.MediaFile
		if err := rows.Scan(&m.ID, &m.InteractionID, &m.Filename, &m.OriginalFilename, &m.MediaType,
			&m.FileSize, &m.MimeType, &m.StorageKey, &m.StorageBucket, &m.StorageURL,
			&m.Transcription, &m.ImageAnalysis, &m.DocumentAnalysis,
			&m.IsProcessed, &m.ProcessingError, &m.UploadedAt, &m.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan media file: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateFileAttachment(ctx context.Context, a *models.FileAttachment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO file_attachments (id, ticket_id, filename, original_filename,
		   file_size, mime_type, storage_key, storage_bucket, storage_url,
		   attachment_type, description, is_relevant, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.TicketID, a.Filename, a.OriginalFilename,
		a.FileSize, a.MimeType, a.StorageKey, a.StorageBucket, a.StorageURL,
		a.AttachmentType, a.Description, a.IsRelevant, a.UploadedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create file attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFileAttachments(ctx context.Context, ticketID uuid.UUID) ([]*models.FileAttachment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ticket_id, filename, original_filename,
		   file_size, mime_type, storage_key, storage_bucket, storage_url,
		   attachment_type, description, is_relevant, uploaded_at
		 FROM file_attachments WHERE ticket_id = $1 ORDER BY uploaded_at`,
		ticketID)
	if err != nil {
		return nil, fmt.Errorf("list file attachments: %w", err)
	}
	defer rows.Close()

	var out []*models.FileAttachment
	for rows.Next() {
		var a models.FileAttachment
		if err := rows.Scan(&a.ID, &a.TicketID, &a.Filename, &a.OriginalFilename,
			&a.FileSize, &a.MimeType, &a.StorageKey, &a.StorageBucket, &a.StorageURL,
			&a.AttachmentType, &a.Description, &a.IsRelevant, &a.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan file attachment: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PostgresStore)(nil)
