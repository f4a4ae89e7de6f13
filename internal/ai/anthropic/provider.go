// Package anthropic implements the AI capability port using the Anthropic
// Messages API. Anthropic has no speech-to-text endpoint, so audio payloads
// are rejected and the engine degrades them to an empty transcription.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rapidresolve/engine/internal/ai/prompt"
	"github.com/rapidresolve/engine/internal/config"
	"github.com/rapidresolve/engine/pkg/models"
)

// Provider implements models.AIProvider using Anthropic.
type Provider struct {
	cfg    config.AnthropicConfig
	client anthropic.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

func (p *Provider) Name() string { return "anthropic" }

// complete sends one system+user exchange and returns the text content.
func (p *Provider) complete(ctx context.Context, system string, user anthropic.MessageParam, maxTokens int64) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{user},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in anthropic response")
}

func (p *Provider) completeJSON(ctx context.Context, system string, user anthropic.MessageParam, maxTokens int64, out any) error {
	content, err := p.complete(ctx, system, user, maxTokens)
	if err != nil {
		return err
	}
	raw, ok := prompt.ExtractJSON(content)
	if !ok {
		return fmt.Errorf("no JSON object in anthropic response")
	}
	return json.Unmarshal(raw, out)
}

func (p *Provider) AnalyzeText(ctx context.Context, text string, tctx *models.TicketContext) (models.TextAnalysis, error) {
	var out models.TextAnalysis
	user := anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.TextAnalysisUser(text, tctx)))
	if err := p.completeJSON(ctx, prompt.TextAnalysisSystem, user, 1024, &out); err != nil {
		return models.TextAnalysis{}, fmt.Errorf("analyze text: %w", err)
	}
	out.UrgencyScore = models.ClampScore(out.UrgencyScore)
	out.Intent.Confidence = models.ClampScore(out.Intent.Confidence)
	return out, nil
}

func (p *Provider) AnalyzeImage(ctx context.Context, data []byte, hint string) (models.ImageAnalysis, error) {
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return models.ImageAnalysis{}, fmt.Errorf("analyze image: payload is %s, not an image", mediaType)
	}
	user := anthropic.NewUserMessage(
		anthropic.NewImageBlockBase64(mediaType, base64Encode(data)),
		anthropic.NewTextBlock(prompt.ImageUser(hint)),
	)
	var out models.ImageAnalysis
	if err := p.completeJSON(ctx, prompt.ImageSystem, user, 1024, &out); err != nil {
		return models.ImageAnalysis{}, fmt.Errorf("analyze image: %w", err)
	}
	out.RelevanceScore = models.ClampScore(out.RelevanceScore)
	return out, nil
}

func (p *Provider) TranscribeAudio(_ context.Context, _ []byte, _, _ string) (models.Transcription, error) {
	return models.Transcription{}, fmt.Errorf("transcribe audio: anthropic has no speech-to-text capability")
}

func (p *Provider) AnalyzeDocument(ctx context.Context, data []byte, hint string) (models.DocumentAnalysis, error) {
	excerpt := prompt.TextExcerpt(data, 6000)
	if excerpt == "" {
		return models.DocumentAnalysis{}, fmt.Errorf("analyze document: no extractable text")
	}
	user := anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.DocumentUser(excerpt, hint)))
	var out models.DocumentAnalysis
	if err := p.completeJSON(ctx, prompt.DocumentSystem, user, 1024, &out); err != nil {
		return models.DocumentAnalysis{}, fmt.Errorf("analyze document: %w", err)
	}
	if out.ExtractedText == "" {
		out.ExtractedText = prompt.Truncate(excerpt, 2000)
	}
	out.RelevanceScore = models.ClampScore(out.RelevanceScore)
	return out, nil
}

func (p *Provider) GenerateSolution(ctx context.Context, tctx models.TicketContext, previous []models.SolutionAttempt) (models.Solution, error) {
	user := anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.SolutionUser(tctx, previous)))
	var out models.Solution
	if err := p.completeJSON(ctx, prompt.SolutionSystem, user, 2048, &out); err != nil {
		return models.Solution{}, fmt.Errorf("generate solution: %w", err)
	}
	out.Confidence = models.ClampScore(out.Confidence)
	return out, nil
}

func (p *Provider) GenerateContextSummary(ctx context.Context, title, description string, recent []*models.ConversationTurn) (string, error) {
	user := anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.SummaryUser(title, description, recent)))
	content, err := p.complete(ctx, prompt.SummarySystem, user, 512)
	if err != nil {
		return "", fmt.Errorf("generate context summary: %w", err)
	}
	return strings.TrimSpace(content), nil
}

func base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

var _ models.AIProvider = (*Provider)(nil)
