// Package storage persists raw media bytes (audio, images, documents)
// outside the database. Object keys are derived from the owning ticket
// and interaction so files are browsable by ticket.
package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string `json:"key"`
	Bucket      string `json:"bucket"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Stats summarizes a backend's contents.
type Stats struct {
	Backend     string `json:"backend"`
	ObjectCount int64  `json:"object_count"`
	TotalBytes  int64  `json:"total_bytes"`
}

// BlobStore is the port over a media storage backend.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, key, contentType string) (ObjectInfo, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Stats(ctx context.Context) (Stats, error)
}

// InteractionMediaKey builds the object key for a media file received on
// an interaction: tickets/{ticket}/interactions/{interaction}/{ts}_{hash}{ext}.
func InteractionMediaKey(ticketID, interactionID uuid.UUID, filename string, data []byte, now time.Time) string {
	sum := md5.Sum(data)
	return fmt.Sprintf("%sinteractions/%s/%s_%s%s",
		TicketPrefix(ticketID), interactionID,
		now.UTC().Format("20060102T150405"),
		hex.EncodeToString(sum[:])[:8],
		safeExt(filename))
}

// AttachmentKey builds the object key for a ticket-level attachment:
// tickets/{ticket}/attachments/{type}/{ts}_{hash}{ext}.
func AttachmentKey(ticketID uuid.UUID, attachmentType, filename string, data []byte, now time.Time) string {
	sum := md5.Sum(data)
	return fmt.Sprintf("%sattachments/%s/%s_%s%s",
		TicketPrefix(ticketID), attachmentType,
		now.UTC().Format("20060102T150405"),
		hex.EncodeToString(sum[:])[:8],
		safeExt(filename))
}

// TicketPrefix is the key prefix holding everything stored for a ticket.
func TicketPrefix(ticketID uuid.UUID) string {
	return fmt.Sprintf("tickets/%s/", ticketID)
}

func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		if r != '.' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
