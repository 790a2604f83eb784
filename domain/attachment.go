package domain

import (
	"strings"
	"time"
)

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentAudio AttachmentType = "audio"
	AttachmentPDF   AttachmentType = "pdf"
	AttachmentText  AttachmentType = "text"
	AttachmentFile  AttachmentType = "file"
)

// Attachment is embedded in its parent record; it is never stored as a
// separate collection. Data holds a base64 data URI.
type Attachment struct {
	ID        string         `json:"id" validate:"required"`
	Name      string         `json:"name"`
	Type      AttachmentType `json:"type" validate:"oneof=image video audio pdf text file"`
	Data      string         `json:"data" validate:"required"`
	Timestamp time.Time      `json:"timestamp"`
}

// MediaType returns the MIME type declared by the attachment's data URI,
// or "" when Data is not a data URI.
func (a Attachment) MediaType() string {
	rest, ok := strings.CutPrefix(a.Data, "data:")
	if !ok {
		return ""
	}
	end := strings.IndexAny(rest, ";,")
	if end < 0 {
		return ""
	}
	return rest[:end]
}
