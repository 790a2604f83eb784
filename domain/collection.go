package domain

import "time"

// Collection names a remote table and its local snapshot.
type Collection string

const (
	Tasks      Collection = "tasks"
	Projects   Collection = "projects"
	IdeaItems  Collection = "idea_items"
	Folders    Collection = "folders"
	VoiceNotes Collection = "voice_notes"
	Subtasks   Collection = "subtasks"
)

var collections = []Collection{Tasks, Projects, IdeaItems, Folders, VoiceNotes, Subtasks}

// Collections lists every entity collection.
func Collections() []Collection {
	out := make([]Collection, len(collections))
	copy(out, collections)
	return out
}

func (c Collection) Valid() bool {
	for _, known := range collections {
		if c == known {
			return true
		}
	}
	return false
}

func (c Collection) String() string { return string(c) }

// Op is a write operation kind.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes a committed remote write.
type Change struct {
	Collection Collection `json:"collection"`
	Op         Op         `json:"op"`
	ID         string     `json:"id"`
	At         time.Time  `json:"at"`
}
