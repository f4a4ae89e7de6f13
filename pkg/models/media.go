package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MediaType classifies an uploaded payload.
type MediaType string

const (
	MediaText     MediaType = "text"
	MediaAudio    MediaType = "audio"
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// MediaFile is a binary payload attached to a single interaction, together
// with its derived AI analysis.
type MediaFile struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	InteractionID uuid.UUID `db:"interaction_id" json:"interaction_id"`

	Filename         string    `db:"filename"          json:"filename"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	MediaType        MediaType `db:"media_type"        json:"media_type"`
	FileSize         int64     `db:"file_size"         json:"file_size"`
	MimeType         string    `db:"mime_type"         json:"mime_type"`

	StorageKey    string  `db:"storage_key"    json:"storage_key"`
	StorageBucket string  `db:"storage_bucket" json:"storage_bucket"`
	StorageURL    *string `db:"storage_url"    json:"storage_url,omitempty"`

	Transcription    *Transcription    `db:"transcription"     json:"transcription,omitempty"`
	ImageAnalysis    *ImageAnalysis    `db:"image_analysis"    json:"image_analysis,omitempty"`
	DocumentAnalysis *DocumentAnalysis `db:"document_analysis" json:"document_analysis,omitempty"`

	IsProcessed     bool    `db:"is_processed"     json:"is_processed"`
	ProcessingError *string `db:"processing_error" json:"processing_error,omitempty"`

	UploadedAt  time.Time  `db:"uploaded_at"  json:"uploaded_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// FileAttachment is a general file linked directly to a ticket, for content
// spanning multiple interactions.
type FileAttachment struct {
	ID       uuid.UUID `db:"id"        json:"id"`
	TicketID uuid.UUID `db:"ticket_id" json:"ticket_id"`

	Filename         string `db:"filename"          json:"filename"`
	OriginalFilename string `db:"original_filename" json:"original_filename"`
	FileSize         int64  `db:"file_size"         json:"file_size"`
	MimeType         string `db:"mime_type"         json:"mime_type"`

	StorageKey    string  `db:"storage_key"    json:"storage_key"`
	StorageBucket string  `db:"storage_bucket" json:"storage_bucket"`
	StorageURL    *string `db:"storage_url"    json:"storage_url,omitempty"`

	AttachmentType string  `db:"attachment_type" json:"attachment_type"`
	Description    *string `db:"description"     json:"description,omitempty"`
	IsRelevant     bool    `db:"is_relevant"     json:"is_relevant"`

	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// IsImageFile reports whether the attachment is an image by mime type.
func (a *FileAttachment) IsImageFile() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// MediaTypeForMime maps a mime type onto a media class. Unrecognized types
// are treated as documents so they still get text extraction.
func MediaTypeForMime(mimeType string) MediaType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaImage
	case strings.HasPrefix(mimeType, "audio/"):
		return MediaAudio
	case strings.HasPrefix(mimeType, "video/"):
		return MediaVideo
	case strings.HasPrefix(mimeType, "text/"):
		return MediaText
	default:
		return MediaDocument
	}
}
