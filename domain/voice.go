package domain

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// DefaultNiche is the category used when nothing more specific is known.
const DefaultNiche = "Geral"

// VoiceNote is a recorded note. Transcription holds either the raw text or a
// JSON document produced by the assistant (see VoiceMetadata).
type VoiceNote struct {
	ID            string    `json:"id"`
	AudioURL      string    `json:"audioUrl"`
	Transcription string    `json:"transcription"`
	CreatedAt     time.Time `json:"createdAt"`
}

type VoiceNotePatch struct {
	Transcription *string `json:"transcription,omitempty"`
}

// VoiceMetadata is the structured form of a voice note transcription.
type VoiceMetadata struct {
	Transcription string `json:"transcription"`
	Summary       string `json:"summary,omitempty"`
	Niche         string `json:"niche,omitempty"`
}

// Metadata decodes the note's transcription. Plain text, or JSON that fails
// to decode, yields the raw text under the default niche.
func (v VoiceNote) Metadata() VoiceMetadata {
	meta := VoiceMetadata{Transcription: v.Transcription, Niche: DefaultNiche}
	if !strings.HasPrefix(strings.TrimSpace(v.Transcription), "{") {
		return meta
	}
	var decoded VoiceMetadata
	if err := sonic.UnmarshalString(v.Transcription, &decoded); err != nil {
		return meta
	}
	if decoded.Transcription != "" {
		meta.Transcription = decoded.Transcription
	}
	meta.Summary = decoded.Summary
	if decoded.Niche != "" {
		meta.Niche = decoded.Niche
	}
	return meta
}

// EncodeTranscription stores structured metadata in the transcription field.
func EncodeTranscription(meta VoiceMetadata) (string, error) {
	return sonic.MarshalString(meta)
}
