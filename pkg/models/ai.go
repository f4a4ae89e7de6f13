// Package models contains shared data models used across the RapidResolve codebase.
package models

import (
	"context"
	"fmt"
)

// AIProvider is the capability port every AI backend must implement.
// Never call specific AI vendors directly — always inject this interface.
// Calls are potentially slow and remote; callers bound them with a context
// deadline. Implementations may fail; the engine substitutes the documented
// fallbacks rather than surfacing provider errors to customers.
type AIProvider interface {
	// AnalyzeText classifies intent, entities, emotion and urgency for a
	// customer message, optionally conditioned on ticket context.
	AnalyzeText(ctx context.Context, text string, tctx *TicketContext) (TextAnalysis, error)
	// AnalyzeImage describes a support image (screenshot, photo, diagram).
	AnalyzeImage(ctx context.Context, data []byte, hint string) (ImageAnalysis, error)
	// TranscribeAudio converts an audio payload into text.
	TranscribeAudio(ctx context.Context, data []byte, filename, language string) (Transcription, error)
	// AnalyzeDocument extracts and summarizes the relevant content of a document.
	AnalyzeDocument(ctx context.Context, data []byte, hint string) (DocumentAnalysis, error)
	// GenerateSolution produces the next step-by-step solution given the
	// ticket context and previous attempts.
	GenerateSolution(ctx context.Context, tctx TicketContext, previous []SolutionAttempt) (Solution, error)
	// GenerateContextSummary condenses the ticket into a short running summary.
	GenerateContextSummary(ctx context.Context, title, description string, recent []*ConversationTurn) (string, error)
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
}

// Intent is what the customer is trying to achieve.
type Intent struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category,omitempty"`
}

// Emotion is the detected customer sentiment for a message.
type Emotion struct {
	Sentiment    string `json:"sentiment"`
	UrgencyLevel string `json:"urgency_level"`
}

// Entities are structured references extracted from a message.
type Entities struct {
	Products       []string `json:"products,omitempty"`
	ErrorCodes     []string `json:"error_codes,omitempty"`
	TechnicalTerms []string `json:"technical_terms,omitempty"`
}

// TextAnalysis is the per-message AI result stored on an interaction.
type TextAnalysis struct {
	Intent       Intent   `json:"intent"`
	Entities     Entities `json:"entities"`
	Emotion      Emotion  `json:"emotion"`
	UrgencyScore float64  `json:"urgency_score"`
}

// ImageAnalysis is the vision result for an image payload.
type ImageAnalysis struct {
	ContentType      string            `json:"content_type"`
	DetectedText     []string          `json:"detected_text"`
	VisualElements   []string          `json:"visual_elements"`
	TechnicalDetails map[string]string `json:"technical_details"`
	RelevanceScore   float64           `json:"relevance_score"`
}

// Transcription is the speech-to-text result for an audio payload.
type Transcription struct {
	Text       string   `json:"transcription"`
	Language   string   `json:"language"`
	WordCount  int      `json:"word_count"`
	Confidence float64  `json:"confidence"`
	KeyPhrases []string `json:"key_phrases,omitempty"`
	Sentiment  string   `json:"sentiment"`
}

// DocumentAnalysis is the extraction result for a document payload.
type DocumentAnalysis struct {
	Summary        string   `json:"summary"`
	ExtractedText  string   `json:"extracted_text"`
	KeyPoints      []string `json:"key_points,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
}

// Solution is an AI-generated troubleshooting answer.
type Solution struct {
	Content             string   `json:"content"`
	Steps               []string `json:"steps"`
	Confidence          float64  `json:"confidence"`
	EstimatedDifficulty string   `json:"estimated_difficulty"`
	RequiresEscalation  bool     `json:"requires_escalation"`
	EscalationReason    string   `json:"escalation_reason,omitempty"`
	Prerequisites       []string `json:"prerequisites,omitempty"`
}

// SolutionAttempt is one entry in a ticket's append-only attempt history.
type SolutionAttempt struct {
	Content          string        `json:"content"`
	Confidence       float64       `json:"confidence"`
	Result           AttemptResult `json:"result"`
	CustomerFeedback string        `json:"customer_feedback,omitempty"`
	AttemptedAt      string        `json:"attempted_at"`
}

// TicketContext is the bounded prompt context handed to the AI backend:
// ticket metadata plus the most recent conversation turns, oldest first.
type TicketContext struct {
	TicketID       string              `json:"ticket_id"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Category       string              `json:"category"`
	ProductType    string              `json:"product_type"`
	ContextSummary string              `json:"context_summary"`
	RecentTurns    []*ConversationTurn `json:"recent_turns"`
	// TotalTurns is the full conversation length; RecentTurns holds only
	// the newest window of it.
	TotalTurns int `json:"total_turns"`
}

// FallbackTextAnalysis is the neutral default substituted when text analysis
// fails, so downstream scoring always has a usable value.
func FallbackTextAnalysis() TextAnalysis {
	return TextAnalysis{
		Intent:       Intent{Type: "request_help", Confidence: 0.5},
		Emotion:      Emotion{Sentiment: "neutral", UrgencyLevel: "medium"},
		UrgencyScore: 0.5,
	}
}

// FallbackImageAnalysis is the degraded result for a failed image analysis.
func FallbackImageAnalysis() ImageAnalysis {
	return ImageAnalysis{
		ContentType:      "unknown",
		DetectedText:     []string{},
		VisualElements:   []string{},
		TechnicalDetails: map[string]string{},
		RelevanceScore:   0,
	}
}

// FallbackTranscription is the degraded result for a failed transcription.
func FallbackTranscription(language string) Transcription {
	return Transcription{Language: language, Sentiment: "unknown"}
}

// FallbackDocumentAnalysis is the degraded result for a failed document analysis.
func FallbackDocumentAnalysis() DocumentAnalysis {
	return DocumentAnalysis{}
}

// FallbackSolution is the safe-by-default answer when solution generation
// fails: low confidence, escalating, never an unhandled error.
func FallbackSolution() Solution {
	return Solution{
		Content:             "I apologize, but I'm having difficulty generating a solution. Let me escalate this to a human agent.",
		Steps:               []string{"Contact human support for assistance"},
		Confidence:          0.1,
		EstimatedDifficulty: "unknown",
		RequiresEscalation:  true,
		EscalationReason:    "AI processing error",
	}
}

// FallbackSummary is the degraded context summary.
func FallbackSummary(title string) string {
	return fmt.Sprintf("Customer support case: %s", title)
}
