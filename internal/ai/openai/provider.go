// Package openai implements the AI capability port against the OpenAI API:
// chat completions for text/vision/solution work and Whisper for audio.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rapidresolve/engine/internal/ai/prompt"
	"github.com/rapidresolve/engine/internal/config"
	"github.com/rapidresolve/engine/pkg/models"
)

// Provider implements models.AIProvider using the OpenAI HTTP API.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *Provider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chat sends a completion request and returns the first choice's text.
// Server errors are retried with exponential backoff inside the caller's
// context deadline.
func (p *Provider) chat(ctx context.Context, model string, messages []chatMessage, maxTokens int, jsonMode bool) (string, error) {
	req := chatRequest{Model: model, Messages: messages, MaxTokens: maxTokens}
	if jsonMode {
		req.ResponseFormat = &respFormat{Type: "json_object"}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var content string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("openai server error %d: %s", resp.StatusCode, prompt.Truncate(string(respBody), 200))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("openai error %d: %s", resp.StatusCode, prompt.Truncate(string(respBody), 200)))
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode chat response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("chat response has no choices"))
		}
		content = parsed.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

// chatJSON runs a json-mode chat call and unmarshals the embedded object.
func (p *Provider) chatJSON(ctx context.Context, model, system, user string, maxTokens int, out any) error {
	content, err := p.chat(ctx, model, []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, maxTokens, true)
	if err != nil {
		return err
	}
	raw, ok := prompt.ExtractJSON(content)
	if !ok {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal(raw, out)
}

func (p *Provider) AnalyzeText(ctx context.Context, text string, tctx *models.TicketContext) (models.TextAnalysis, error) {
	var out models.TextAnalysis
	err := p.chatJSON(ctx, p.cfg.Model, prompt.TextAnalysisSystem, prompt.TextAnalysisUser(text, tctx), 500, &out)
	if err != nil {
		return models.TextAnalysis{}, fmt.Errorf("analyze text: %w", err)
	}
	out.UrgencyScore = models.ClampScore(out.UrgencyScore)
	out.Intent.Confidence = models.ClampScore(out.Intent.Confidence)
	return out, nil
}

func (p *Provider) AnalyzeImage(ctx context.Context, data []byte, hint string) (models.ImageAnalysis, error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	messages := []chatMessage{
		{Role: "system", Content: prompt.ImageSystem},
		{Role: "user", Content: []map[string]any{
			{"type": "text", "text": prompt.ImageUser(hint)},
			{"type": "image_url", "image_url": map[string]string{
				"url": "data:image/jpeg;base64," + encoded,
			}},
		}},
	}
	content, err := p.chat(ctx, p.cfg.VisionModel, messages, 1000, true)
	if err != nil {
		return models.ImageAnalysis{}, fmt.Errorf("analyze image: %w", err)
	}
	raw, ok := prompt.ExtractJSON(content)
	if !ok {
		return models.ImageAnalysis{}, fmt.Errorf("analyze image: no JSON object in response")
	}
	var out models.ImageAnalysis
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.ImageAnalysis{}, fmt.Errorf("analyze image: %w", err)
	}
	out.RelevanceScore = models.ClampScore(out.RelevanceScore)
	return out, nil
}

type transcribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (p *Provider) TranscribeAudio(ctx context.Context, data []byte, filename, language string) (models.Transcription, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("transcribe audio: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return models.Transcription{}, fmt.Errorf("transcribe audio: %w", err)
	}
	_ = w.WriteField("model", p.cfg.TranscribeModel)
	if language != "" {
		_ = w.WriteField("language", language)
	}
	if err := w.Close(); err != nil {
		return models.Transcription{}, fmt.Errorf("transcribe audio: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("transcribe audio: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("transcribe audio: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("transcribe audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Transcription{}, fmt.Errorf("transcribe audio: status %d: %s",
			resp.StatusCode, prompt.Truncate(string(body), 200))
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.Transcription{}, fmt.Errorf("transcribe audio: %w", err)
	}

	text := strings.TrimSpace(parsed.Text)
	lang := parsed.Language
	if lang == "" {
		lang = language
	}
	return models.Transcription{
		Text:       text,
		Language:   lang,
		WordCount:  len(strings.Fields(text)),
		Confidence: 0.9, // Whisper does not report confidence
		KeyPhrases: prompt.KeyPhrases(text, 5),
		Sentiment:  prompt.Sentiment(text),
	}, nil
}

func (p *Provider) AnalyzeDocument(ctx context.Context, data []byte, hint string) (models.DocumentAnalysis, error) {
	excerpt := prompt.TextExcerpt(data, 6000)
	if excerpt == "" {
		return models.DocumentAnalysis{}, fmt.Errorf("analyze document: no extractable text")
	}
	var out models.DocumentAnalysis
	if err := p.chatJSON(ctx, p.cfg.Model, prompt.DocumentSystem, prompt.DocumentUser(excerpt, hint), 1000, &out); err != nil {
		return models.DocumentAnalysis{}, fmt.Errorf("analyze document: %w", err)
	}
	if out.ExtractedText == "" {
		out.ExtractedText = prompt.Truncate(excerpt, 2000)
	}
	out.RelevanceScore = models.ClampScore(out.RelevanceScore)
	return out, nil
}

func (p *Provider) GenerateSolution(ctx context.Context, tctx models.TicketContext, previous []models.SolutionAttempt) (models.Solution, error) {
	var out models.Solution
	if err := p.chatJSON(ctx, p.cfg.Model, prompt.SolutionSystem, prompt.SolutionUser(tctx, previous), 1500, &out); err != nil {
		return models.Solution{}, fmt.Errorf("generate solution: %w", err)
	}
	out.Confidence = models.ClampScore(out.Confidence)
	return out, nil
}

func (p *Provider) GenerateContextSummary(ctx context.Context, title, description string, recent []*models.ConversationTurn) (string, error) {
	content, err := p.chat(ctx, p.cfg.Model, []chatMessage{
		{Role: "system", Content: prompt.SummarySystem},
		{Role: "user", Content: prompt.SummaryUser(title, description, recent)},
	}, 200, false)
	if err != nil {
		return "", fmt.Errorf("generate context summary: %w", err)
	}
	return strings.TrimSpace(content), nil
}

var _ models.AIProvider = (*Provider)(nil)
