// Package mock provides a deterministic AI provider for tests and local
// development. Urgency and sentiment are lexicon-based so the same input
// always produces the same analysis.
package mock

import (
	"context"
	"strings"

	"github.com/rapidresolve/engine/internal/ai/prompt"
	"github.com/rapidresolve/engine/pkg/models"
)

// MockProvider satisfies models.AIProvider. Zero value returns sensible
// deterministic defaults; set the Func fields to override per call.
type MockProvider struct {
	Name_ string

	AnalyzeTextFunc      func(ctx context.Context, text string, tctx *models.TicketContext) (models.TextAnalysis, error)
	AnalyzeImageFunc     func(ctx context.Context, data []byte, hint string) (models.ImageAnalysis, error)
	TranscribeAudioFunc  func(ctx context.Context, data []byte, filename, language string) (models.Transcription, error)
	AnalyzeDocumentFunc  func(ctx context.Context, data []byte, hint string) (models.DocumentAnalysis, error)
	GenerateSolutionFunc func(ctx context.Context, tctx models.TicketContext, previous []models.SolutionAttempt) (models.Solution, error)
	GenerateSummaryFunc  func(ctx context.Context, title, description string, recent []*models.ConversationTurn) (string, error)
}

func (m *MockProvider) Name() string {
	if m.Name_ == "" {
		return "mock"
	}
	return m.Name_
}

var urgentWords = []string{"urgent", "immediately", "asap", "emergency", "critical", "fire", "smoke", "data loss"}

// urgencyFor scores a message deterministically from its vocabulary.
func urgencyFor(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.3
	for _, w := range urgentWords {
		if strings.Contains(lower, w) {
			score += 0.2
		}
	}
	return models.ClampScore(score)
}

func (m *MockProvider) AnalyzeText(ctx context.Context, text string, tctx *models.TicketContext) (models.TextAnalysis, error) {
	if m.AnalyzeTextFunc != nil {
		return m.AnalyzeTextFunc(ctx, text, tctx)
	}
	intent := "request_help"
	if strings.Contains(strings.ToLower(text), "not work") || strings.Contains(strings.ToLower(text), "broken") {
		intent = "report_issue"
	}
	return models.TextAnalysis{
		Intent:       models.Intent{Type: intent, Confidence: 0.85},
		Entities:     models.Entities{TechnicalTerms: prompt.KeyPhrases(text, 3)},
		Emotion:      models.Emotion{Sentiment: prompt.Sentiment(text), UrgencyLevel: "medium"},
		UrgencyScore: urgencyFor(text),
	}, nil
}

func (m *MockProvider) AnalyzeImage(ctx context.Context, data []byte, hint string) (models.ImageAnalysis, error) {
	if m.AnalyzeImageFunc != nil {
		return m.AnalyzeImageFunc(ctx, data, hint)
	}
	return models.ImageAnalysis{
		ContentType:      "screenshot",
		DetectedText:     []string{"Simulated detected text"},
		VisualElements:   []string{"dialog"},
		TechnicalDetails: map[string]string{"source": "mock"},
		RelevanceScore:   0.75,
	}, nil
}

func (m *MockProvider) TranscribeAudio(ctx context.Context, data []byte, filename, language string) (models.Transcription, error) {
	if m.TranscribeAudioFunc != nil {
		return m.TranscribeAudioFunc(ctx, data, filename, language)
	}
	text := "Simulated transcription of " + filename
	return models.Transcription{
		Text:       text,
		Language:   language,
		WordCount:  len(strings.Fields(text)),
		Confidence: 0.9,
		Sentiment:  "neutral",
	}, nil
}

func (m *MockProvider) AnalyzeDocument(ctx context.Context, data []byte, hint string) (models.DocumentAnalysis, error) {
	if m.AnalyzeDocumentFunc != nil {
		return m.AnalyzeDocumentFunc(ctx, data, hint)
	}
	excerpt := prompt.TextExcerpt(data, 500)
	return models.DocumentAnalysis{
		Summary:        "Simulated document summary",
		ExtractedText:  excerpt,
		KeyPoints:      []string{"mock key point"},
		RelevanceScore: 0.6,
	}, nil
}

func (m *MockProvider) GenerateSolution(ctx context.Context, tctx models.TicketContext, previous []models.SolutionAttempt) (models.Solution, error) {
	if m.GenerateSolutionFunc != nil {
		return m.GenerateSolutionFunc(ctx, tctx, previous)
	}
	return models.Solution{
		Content:             "Simulated solution for " + tctx.Title,
		Steps:               []string{"Restart the device", "Check the cable", "Retry the operation"},
		Confidence:          0.85,
		EstimatedDifficulty: "easy",
	}, nil
}

func (m *MockProvider) GenerateContextSummary(ctx context.Context, title, description string, recent []*models.ConversationTurn) (string, error) {
	if m.GenerateSummaryFunc != nil {
		return m.GenerateSummaryFunc(ctx, title, description, recent)
	}
	return "Simulated summary: " + title, nil
}

// NewFailingProvider returns a MockProvider whose every call returns err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		AnalyzeTextFunc: func(context.Context, string, *models.TicketContext) (models.TextAnalysis, error) {
			return models.TextAnalysis{}, err
		},
		AnalyzeImageFunc: func(context.Context, []byte, string) (models.ImageAnalysis, error) {
			return models.ImageAnalysis{}, err
		},
		TranscribeAudioFunc: func(context.Context, []byte, string, string) (models.Transcription, error) {
			return models.Transcription{}, err
		},
		AnalyzeDocumentFunc: func(context.Context, []byte, string) (models.DocumentAnalysis, error) {
			return models.DocumentAnalysis{}, err
		},
		GenerateSolutionFunc: func(context.Context, models.TicketContext, []models.SolutionAttempt) (models.Solution, error) {
			return models.Solution{}, err
		},
		GenerateSummaryFunc: func(context.Context, string, string, []*models.ConversationTurn) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until the context
// is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		AnalyzeTextFunc: func(ctx context.Context, _ string, _ *models.TicketContext) (models.TextAnalysis, error) {
			<-ctx.Done()
			return models.TextAnalysis{}, ctx.Err()
		},
		GenerateSolutionFunc: func(ctx context.Context, _ models.TicketContext, _ []models.SolutionAttempt) (models.Solution, error) {
			<-ctx.Done()
			return models.Solution{}, ctx.Err()
		},
		GenerateSummaryFunc: func(ctx context.Context, _, _ string, _ []*models.ConversationTurn) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
