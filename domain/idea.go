package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// IdeaProject groups folders and items in the idea workspace.
type IdeaProject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type IdeaProjectPatch struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
}

// IdeaFolder is a node of a project's folder tree. An empty ParentID is the
// project root. The parent is fixed at creation, so the tree has no cycles.
type IdeaFolder struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId" validate:"required"`
	ParentID  string    `json:"parentId,omitempty"`
	Name      string    `json:"name" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
}

type IdeaFolderPatch struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1"`
}

type ItemType string

const (
	ItemText     ItemType = "text"
	ItemImage    ItemType = "image"
	ItemAudio    ItemType = "audio"
	ItemVideo    ItemType = "video"
	ItemPDF      ItemType = "pdf"
	ItemFile     ItemType = "file"
	ItemTemplate ItemType = "template"
)

// IdeaItem is a piece of content inside a project. An empty FolderID places
// it at the project root.
type IdeaItem struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"projectId" validate:"required"`
	FolderID      string    `json:"folderId,omitempty"`
	Type          ItemType  `json:"type" validate:"oneof=text image audio video pdf file template"`
	Content       string    `json:"content"`
	Name          string    `json:"name,omitempty"`
	Transcription string    `json:"transcription,omitempty"`
	Hash          string    `json:"hash,omitempty" validate:"omitempty,hexadecimal,len=64"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NeedsHash reports whether the item type carries an integrity hash.
func (i IdeaItem) NeedsHash() bool {
	return i.Type == ItemFile || i.Type == ItemPDF
}

type IdeaItemPatch struct {
	Name          *string `json:"name,omitempty"`
	Content       *string `json:"content,omitempty"`
	Transcription *string `json:"transcription,omitempty"`
	// FolderID moves the item; an empty string moves it to the root.
	FolderID *string `json:"folderId,omitempty"`
}

// ContentHash returns the lowercase hex SHA-256 digest of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
