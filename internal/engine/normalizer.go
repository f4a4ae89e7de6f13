package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rapidresolve/engine/internal/ai"
	"github.com/rapidresolve/engine/internal/storage"
	"github.com/rapidresolve/engine/pkg/models"
)

// MediaPayload is one raw uploaded file accompanying an interaction.
type MediaPayload struct {
	Filename string
	MimeType string
	Data     []byte
	// Language hints audio transcription; empty means auto-detect.
	Language string
}

// NormalizedContent is the merged outcome of normalizing an interaction's
// media payloads: derived text usable by the AI backend plus the persisted
// MediaFile rows. Files appear in upload order regardless of which
// normalization finished first.
type NormalizedContent struct {
	DerivedText  string
	Files        []*models.MediaFile
	MediaTypes   []string
	HasAudio     bool
	HasImages    bool
	HasDocuments bool
}

// normalizeMedia converts raw payloads into text representations. It never
// fails the interaction: a payload that cannot be stored or analyzed is
// recorded with processing_error set and contributes nothing to the derived
// text. Independent payloads run concurrently; merge order is upload order.
func (e *Engine) normalizeMedia(ctx context.Context, ticketID, interactionID uuid.UUID, payloads []MediaPayload) NormalizedContent {
	if len(payloads) == 0 {
		return NormalizedContent{}
	}

	type result struct {
		file *models.MediaFile
		text string
	}
	results := make([]result, len(payloads))

	var wg sync.WaitGroup
	for i, p := range payloads {
		wg.Add(1)
		go func(i int, p MediaPayload) {
			defer wg.Done()
			file, text := e.normalizeOne(ctx, ticketID, interactionID, p)
			results[i] = result{file: file, text: text}
		}(i, p)
	}
	wg.Wait()

	var out NormalizedContent
	var parts []string
	seen := map[string]bool{}
	for _, r := range results {
		out.Files = append(out.Files, r.file)
		if r.text != "" {
			parts = append(parts, r.text)
		}
		mt := string(r.file.MediaType)
		if !seen[mt] {
			seen[mt] = true
			out.MediaTypes = append(out.MediaTypes, mt)
		}
		switch r.file.MediaType {
		case models.MediaAudio:
			out.HasAudio = true
		case models.MediaImage:
			out.HasImages = true
		case models.MediaDocument, models.MediaText:
			out.HasDocuments = true
		}
	}
	out.DerivedText = strings.Join(parts, "\n")
	return out
}

// normalizeOne stores one payload and derives its text representation.
func (e *Engine) normalizeOne(ctx context.Context, ticketID, interactionID uuid.UUID, p MediaPayload) (*models.MediaFile, string) {
	now := e.now()
	file := &models.MediaFile{
		ID:               uuid.New(),
		InteractionID:    interactionID,
		OriginalFilename: p.Filename,
		MediaType:        models.MediaTypeForMime(p.MimeType),
		FileSize:         int64(len(p.Data)),
		MimeType:         p.MimeType,
		UploadedAt:       now,
	}

	key := storage.InteractionMediaKey(ticketID, interactionID, p.Filename, p.Data, now)
	file.Filename = key
	info, err := e.blobs.Upload(ctx, p.Data, key, p.MimeType)
	if err != nil {
		e.logger.Error("media upload failed", "file", p.Filename, "error", err)
		msg := fmt.Sprintf("storage upload failed: %v", err)
		file.ProcessingError = &msg
		return file, ""
	}
	file.StorageKey = info.Key
	file.StorageBucket = info.Bucket
	file.StorageURL = &info.URL

	text, analysisErr := e.analyzeMedia(ctx, file, p)
	processedAt := e.now()
	file.ProcessedAt = &processedAt
	if analysisErr != nil {
		e.logger.Warn("media analysis degraded",
			"file", p.Filename, "media_type", file.MediaType, "error", analysisErr)
		msg := analysisErr.Error()
		file.ProcessingError = &msg
		return file, text
	}
	file.IsProcessed = true
	return file, text
}

// analyzeMedia runs the media-type-specific AI analysis, attaching results to
// the file row and returning the derived text. On provider failure the
// documented fallback value is attached and an error describes the
// degradation.
func (e *Engine) analyzeMedia(ctx context.Context, file *models.MediaFile, p MediaPayload) (string, error) {
	aiCtx, cancel := e.aiContext(ctx)
	defer cancel()

	switch file.MediaType {
	case models.MediaAudio:
		tr, err := e.ai.TranscribeAudio(aiCtx, p.Data, p.Filename, p.Language)
		if err != nil {
			fallback := models.FallbackTranscription(p.Language)
			file.Transcription = &fallback
			return "", fmt.Errorf("transcription failed: %w", ai.Classify(err))
		}
		file.Transcription = &tr
		if tr.Text == "" {
			return "", nil
		}
		return fmt.Sprintf("[Audio %s]: %s", p.Filename, tr.Text), nil

	case models.MediaImage:
		ia, err := e.ai.AnalyzeImage(aiCtx, p.Data, p.Filename)
		if err != nil {
			fallback := models.FallbackImageAnalysis()
			file.ImageAnalysis = &fallback
			return "", fmt.Errorf("image analysis failed: %w", ai.Classify(err))
		}
		file.ImageAnalysis = &ia
		return imageText(p.Filename, ia), nil

	case models.MediaDocument, models.MediaText:
		da, err := e.ai.AnalyzeDocument(aiCtx, p.Data, p.Filename)
		if err != nil {
			fallback := models.FallbackDocumentAnalysis()
			file.DocumentAnalysis = &fallback
			return "", fmt.Errorf("document analysis failed: %w", ai.Classify(err))
		}
		file.DocumentAnalysis = &da
		return documentText(p.Filename, da), nil

	default:
		return "", fmt.Errorf("%w: %s", ai.ErrUnsupportedMedia, file.MediaType)
	}
}

func imageText(filename string, ia models.ImageAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Image %s]: %s", filename, ia.ContentType)
	if len(ia.VisualElements) > 0 {
		b.WriteString("; shows " + strings.Join(ia.VisualElements, ", "))
	}
	if len(ia.DetectedText) > 0 {
		b.WriteString("; text: " + strings.Join(ia.DetectedText, " "))
	}
	return b.String()
}

func documentText(filename string, da models.DocumentAnalysis) string {
	if da.Summary == "" && da.ExtractedText == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[Document %s]", filename)
	if da.Summary != "" {
		b.WriteString(": " + da.Summary)
	}
	if len(da.KeyPoints) > 0 {
		b.WriteString("; key points: " + strings.Join(da.KeyPoints, "; "))
	}
	return b.String()
}
