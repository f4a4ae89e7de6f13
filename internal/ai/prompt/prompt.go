// Package prompt holds the prompt templates and response parsing helpers
// shared by the concrete AI providers.
package prompt

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rapidresolve/engine/pkg/models"
)

const TextAnalysisSystem = `You are an expert customer service AI analyzing support requests.
Analyze the text and provide:
1. Intent: what the customer wants (request_help, report_issue, solution_feedback, escalation_request)
2. Entities: products, error codes, technical terms
3. Emotion: sentiment and urgency level
4. Urgency score: 0-1 float indicating how urgent this is

Return JSON with keys: intent {type, confidence, category}, entities {products, error_codes, technical_terms},
emotion {sentiment, urgency_level}, urgency_score (float).`

const ImageSystem = `You are an expert at analyzing technical support images.
Extract: the type of image (screenshot, photo, diagram, error_dialog), visible text,
visual elements, technical details, and a 0-1 relevance score for technical support.

Return JSON with keys: content_type, detected_text (array), visual_elements (array),
technical_details (object of string to string), relevance_score (float).`

const DocumentSystem = `You are analyzing a document attached to a customer support ticket.
Summarize it, list the key points, and score its relevance to the support case.

Return JSON with keys: summary, extracted_text, key_points (array), relevance_score (float).`

const SolutionSystem = `You are an expert technical support agent specializing in electronics troubleshooting.
Generate a step-by-step solution based on the customer's issue and previous attempts.

Consider what has already been tried, the customer's technical skill level, the urgency
of the issue, and whether escalation to human support is needed.

Return JSON with keys: content (string), steps (array of strings), confidence (0-1),
estimated_difficulty (easy/medium/hard), requires_escalation (boolean),
escalation_reason (string if needed), prerequisites (array).`

const SummarySystem = `You are summarizing a customer support ticket. Create a brief, informative 2-3 sentence summary.`

// TextAnalysisUser renders the analysis prompt, appending the ticket's
// running summary when context is available.
func TextAnalysisUser(text string, tctx *models.TicketContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this customer message:\n\n%s", text)
	if tctx != nil && tctx.ContextSummary != "" {
		fmt.Fprintf(&b, "\n\nPrevious context: %s", tctx.ContextSummary)
	}
	return b.String()
}

// ImageUser renders the vision prompt with an optional context hint.
func ImageUser(hint string) string {
	s := "Analyze this technical support image."
	if hint != "" {
		s += "\n\nContext: " + hint
	}
	return s
}

// DocumentUser renders the document analysis prompt around an extracted excerpt.
func DocumentUser(excerpt, hint string) string {
	var b strings.Builder
	b.WriteString("Analyze this document content:\n\n")
	b.WriteString(excerpt)
	if hint != "" {
		fmt.Fprintf(&b, "\n\nContext: %s", hint)
	}
	return b.String()
}

// SolutionUser renders the solution prompt from ticket context and history.
func SolutionUser(tctx models.TicketContext, previous []models.SolutionAttempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue: %s\n", orUnknown(tctx.Title, "Unknown issue"))
	fmt.Fprintf(&b, "Description: %s\n", orUnknown(tctx.Description, "No description"))
	fmt.Fprintf(&b, "Category: %s\n", orUnknown(tctx.Category, "general"))
	fmt.Fprintf(&b, "Product: %s\n\n", orUnknown(tctx.ProductType, "unknown"))
	if tctx.TotalTurns > len(tctx.RecentTurns) {
		fmt.Fprintf(&b, "Conversation history (last %d of %d messages):\n%s\n\n",
			len(tctx.RecentTurns), tctx.TotalTurns, FormatTurns(tctx.RecentTurns))
	} else {
		fmt.Fprintf(&b, "Conversation history:\n%s\n\n", FormatTurns(tctx.RecentTurns))
	}
	fmt.Fprintf(&b, "Previous solution attempts:\n%s\n\n", FormatAttempts(previous))
	b.WriteString("Generate the next best solution.")
	return b.String()
}

// SummaryUser renders the context summary prompt over the recent turns.
func SummaryUser(title, description string, recent []*models.ConversationTurn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nDescription: %s\n\nRecent conversation:\n", title, description)
	b.WriteString(FormatTurns(recent))
	b.WriteString("\n\nProvide a 2-3 sentence summary.")
	return b.String()
}

// FormatTurns renders conversation turns for prompting, truncating long
// messages. Turns are expected oldest first.
func FormatTurns(turns []*models.ConversationTurn) string {
	if len(turns) == 0 {
		return "No previous conversation"
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Speaker, Truncate(t.Message, 200)))
	}
	return strings.Join(lines, "\n")
}

// FormatAttempts renders the solution attempt history for prompting.
func FormatAttempts(attempts []models.SolutionAttempt) string {
	if len(attempts) == 0 {
		return "No previous attempts"
	}
	lines := make([]string, 0, len(attempts))
	for i, a := range attempts {
		result := string(a.Result)
		if result == "" {
			result = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%d. %s... (Result: %s)", i+1, Truncate(a.Content, 100), result))
	}
	return strings.Join(lines, "\n")
}

// ExtractJSON returns the first top-level JSON object embedded in s. Models
// sometimes wrap JSON in prose or code fences.
func ExtractJSON(s string) ([]byte, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return []byte(s[start : end+1]), true
}

// Truncate bounds s to max bytes without splitting UTF-8 runes.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && s[max]&0xC0 == 0x80 {
		max--
	}
	return s[:max]
}

// TextExcerpt pulls a printable text excerpt out of raw document bytes for
// prompting. Binary runs are dropped.
func TextExcerpt(data []byte, max int) string {
	var b strings.Builder
	for _, r := range string(data) {
		if b.Len() >= max {
			break
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "is": true, "was": true, "are": true, "been": true, "be": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true,
}

// KeyPhrases extracts up to max distinctive words from a transcription.
func KeyPhrases(text string, max int) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) <= 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == max {
			break
		}
	}
	return out
}

var negativeWords = []string{"frustrated", "angry", "upset", "disappointed", "broken", "not working", "failed", "error", "problem", "issue"}
var positiveWords = []string{"thanks", "thank you", "great", "works", "working", "fixed", "solved", "perfect", "excellent"}

// Sentiment is a lexicon-based sentiment guess for transcribed speech.
func Sentiment(text string) string {
	lower := strings.ToLower(text)
	neg, pos := 0, 0
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	switch {
	case neg > pos:
		return "frustrated"
	case pos > neg:
		return "satisfied"
	default:
		return "neutral"
	}
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
