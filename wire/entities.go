package wire

import (
	"time"

	"nexus-gateway/domain"
)

type Attachment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type Task struct {
	ID                string       `json:"id,omitempty"`
	Title             string       `json:"title"`
	Description       *string      `json:"description,omitempty"`
	Niche             string       `json:"niche"`
	Status            string       `json:"status"`
	DueDate           *string      `json:"due_date,omitempty"`
	Priority          *string      `json:"priority,omitempty"`
	Value             *float64     `json:"value,omitempty"`
	FinancialType     *string      `json:"financial_type,omitempty"`
	FinancialCategory *string      `json:"financial_category,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	RescheduleCount   *int         `json:"reschedule_count,omitempty"`
	IsHabit           *bool        `json:"is_habit,omitempty"`
	CreatedAt         string       `json:"created_at,omitempty"`
}

type Project struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

type Folder struct {
	ID        string  `json:"id,omitempty"`
	ProjectID string  `json:"project_id"`
	ParentID  *string `json:"parent_id"`
	Name      string  `json:"name"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type IdeaItem struct {
	ID            string  `json:"id,omitempty"`
	ProjectID     string  `json:"project_id"`
	FolderID      *string `json:"folder_id"`
	Type          string  `json:"type"`
	Content       string  `json:"content"`
	Name          *string `json:"name,omitempty"`
	Transcription *string `json:"transcription,omitempty"`
	Hash          *string `json:"hash,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

type Subtask struct {
	ID        string `json:"id,omitempty"`
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at,omitempty"`
}

type VoiceNote struct {
	ID            string `json:"id,omitempty"`
	AudioURL      string `json:"audio_url"`
	Transcription string `json:"transcription"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func AttachmentToWire(a domain.Attachment) Attachment {
	var ts int64
	if !a.Timestamp.IsZero() {
		ts = a.Timestamp.UnixMilli()
	}
	return Attachment{ID: a.ID, Name: a.Name, Type: string(a.Type), Data: a.Data, Timestamp: ts}
}

func AttachmentFromWire(a Attachment) domain.Attachment {
	var ts time.Time
	if a.Timestamp != 0 {
		ts = time.UnixMilli(a.Timestamp).UTC()
	}
	return domain.Attachment{ID: a.ID, Name: a.Name, Type: domain.AttachmentType(a.Type), Data: a.Data, Timestamp: ts}
}

func attachmentsToWire(in []domain.Attachment) []Attachment {
	if in == nil {
		return nil
	}
	out := make([]Attachment, len(in))
	for i, a := range in {
		out[i] = AttachmentToWire(a)
	}
	return out
}

func attachmentsFromWire(in []Attachment) []domain.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Attachment, len(in))
	for i, a := range in {
		out[i] = AttachmentFromWire(a)
	}
	return out
}

func TaskToWire(t domain.Task) Task {
	w := Task{
		ID:                t.ID,
		Title:             t.Title,
		Description:       optional(t.Description),
		Niche:             t.Niche,
		Status:            string(t.Status),
		DueDate:           optional(t.DueDate),
		Priority:          optional(string(t.Priority)),
		Value:             t.Value,
		FinancialType:     optional(string(t.FinancialType)),
		FinancialCategory: optional(t.FinancialCategory),
		Attachments:       attachmentsToWire(t.Attachments),
		CreatedAt:         FormatTime(t.CreatedAt),
	}
	if t.RescheduleCount != 0 {
		n := t.RescheduleCount
		w.RescheduleCount = &n
	}
	if t.IsHabit {
		h := true
		w.IsHabit = &h
	}
	return w
}

func TaskFromWire(w Task) domain.Task {
	t := domain.Task{
		ID:                w.ID,
		Title:             w.Title,
		Description:       deref(w.Description),
		Niche:             w.Niche,
		Status:            domain.TaskStatus(w.Status),
		DueDate:           deref(w.DueDate),
		Priority:          domain.Priority(deref(w.Priority)),
		Value:             w.Value,
		FinancialType:     domain.FinancialType(deref(w.FinancialType)),
		FinancialCategory: deref(w.FinancialCategory),
		Attachments:       attachmentsFromWire(w.Attachments),
		CreatedAt:         ParseTime(w.CreatedAt),
	}
	if w.RescheduleCount != nil {
		t.RescheduleCount = *w.RescheduleCount
	}
	if w.IsHabit != nil {
		t.IsHabit = *w.IsHabit
	}
	return t
}

func EncodeTask(t domain.Task) (Row, error) { return encode(TaskToWire(t)) }

func DecodeTask(row Row) (domain.Task, error) {
	var w Task
	if err := decode(row, &w); err != nil {
		return domain.Task{}, err
	}
	return TaskFromWire(w), nil
}

// TaskPatch translates a partial update into wire fields.
func TaskPatch(p domain.TaskPatch) map[string]any {
	m := map[string]any{}
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.Niche != nil {
		m["niche"] = *p.Niche
	}
	if p.Status != nil {
		m["status"] = string(*p.Status)
	}
	if p.DueDate != nil {
		m["due_date"] = *p.DueDate
	}
	if p.Priority != nil {
		m["priority"] = string(*p.Priority)
	}
	if p.Value != nil {
		m["value"] = *p.Value
	}
	if p.FinancialType != nil {
		m["financial_type"] = string(*p.FinancialType)
	}
	if p.FinancialCategory != nil {
		m["financial_category"] = *p.FinancialCategory
	}
	if p.Attachments != nil {
		atts := attachmentsToWire(*p.Attachments)
		if atts == nil {
			atts = []Attachment{}
		}
		m["attachments"] = atts
	}
	if p.RescheduleCount != nil {
		m["reschedule_count"] = *p.RescheduleCount
	}
	if p.IsHabit != nil {
		m["is_habit"] = *p.IsHabit
	}
	return m
}

func ProjectToWire(p domain.IdeaProject) Project {
	return Project{ID: p.ID, Name: p.Name, Description: optional(p.Description), CreatedAt: FormatTime(p.CreatedAt)}
}

func ProjectFromWire(w Project) domain.IdeaProject {
	return domain.IdeaProject{ID: w.ID, Name: w.Name, Description: deref(w.Description), CreatedAt: ParseTime(w.CreatedAt)}
}

func EncodeProject(p domain.IdeaProject) (Row, error) { return encode(ProjectToWire(p)) }

func DecodeProject(row Row) (domain.IdeaProject, error) {
	var w Project
	if err := decode(row, &w); err != nil {
		return domain.IdeaProject{}, err
	}
	return ProjectFromWire(w), nil
}

func ProjectPatch(p domain.IdeaProjectPatch) map[string]any {
	m := map[string]any{}
	if p.Name != nil {
		m["name"] = *p.Name
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	return m
}

func FolderToWire(f domain.IdeaFolder) Folder {
	return Folder{ID: f.ID, ProjectID: f.ProjectID, ParentID: optional(f.ParentID), Name: f.Name, CreatedAt: FormatTime(f.CreatedAt)}
}

func FolderFromWire(w Folder) domain.IdeaFolder {
	return domain.IdeaFolder{ID: w.ID, ProjectID: w.ProjectID, ParentID: deref(w.ParentID), Name: w.Name, CreatedAt: ParseTime(w.CreatedAt)}
}

func EncodeFolder(f domain.IdeaFolder) (Row, error) { return encode(FolderToWire(f)) }

func DecodeFolder(row Row) (domain.IdeaFolder, error) {
	var w Folder
	if err := decode(row, &w); err != nil {
		return domain.IdeaFolder{}, err
	}
	return FolderFromWire(w), nil
}

func FolderPatch(p domain.IdeaFolderPatch) map[string]any {
	m := map[string]any{}
	if p.Name != nil {
		m["name"] = *p.Name
	}
	return m
}

func IdeaItemToWire(i domain.IdeaItem) IdeaItem {
	return IdeaItem{
		ID:            i.ID,
		ProjectID:     i.ProjectID,
		FolderID:      optional(i.FolderID),
		Type:          string(i.Type),
		Content:       i.Content,
		Name:          optional(i.Name),
		Transcription: optional(i.Transcription),
		Hash:          optional(i.Hash),
		CreatedAt:     FormatTime(i.CreatedAt),
	}
}

func IdeaItemFromWire(w IdeaItem) domain.IdeaItem {
	return domain.IdeaItem{
		ID:            w.ID,
		ProjectID:     w.ProjectID,
		FolderID:      deref(w.FolderID),
		Type:          domain.ItemType(w.Type),
		Content:       w.Content,
		Name:          deref(w.Name),
		Transcription: deref(w.Transcription),
		Hash:          deref(w.Hash),
		CreatedAt:     ParseTime(w.CreatedAt),
	}
}

func EncodeIdeaItem(i domain.IdeaItem) (Row, error) { return encode(IdeaItemToWire(i)) }

func DecodeIdeaItem(row Row) (domain.IdeaItem, error) {
	var w IdeaItem
	if err := decode(row, &w); err != nil {
		return domain.IdeaItem{}, err
	}
	return IdeaItemFromWire(w), nil
}

func IdeaItemPatch(p domain.IdeaItemPatch) map[string]any {
	m := map[string]any{}
	if p.Name != nil {
		m["name"] = *p.Name
	}
	if p.Content != nil {
		m["content"] = *p.Content
	}
	if p.Transcription != nil {
		m["transcription"] = *p.Transcription
	}
	if p.FolderID != nil {
		// nil marshals as JSON null, the root folder.
		m["folder_id"] = optional(*p.FolderID)
	}
	return m
}

func SubtaskToWire(s domain.Subtask) Subtask {
	return Subtask{ID: s.ID, TaskID: s.TaskID, Title: s.Title, Completed: s.Completed, CreatedAt: FormatTime(s.CreatedAt)}
}

func SubtaskFromWire(w Subtask) domain.Subtask {
	return domain.Subtask{ID: w.ID, TaskID: w.TaskID, Title: w.Title, Completed: w.Completed, CreatedAt: ParseTime(w.CreatedAt)}
}

func EncodeSubtask(s domain.Subtask) (Row, error) { return encode(SubtaskToWire(s)) }

func DecodeSubtask(row Row) (domain.Subtask, error) {
	var w Subtask
	if err := decode(row, &w); err != nil {
		return domain.Subtask{}, err
	}
	return SubtaskFromWire(w), nil
}

func SubtaskPatch(p domain.SubtaskPatch) map[string]any {
	m := map[string]any{}
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Completed != nil {
		m["completed"] = *p.Completed
	}
	return m
}

func VoiceNoteToWire(v domain.VoiceNote) VoiceNote {
	return VoiceNote{ID: v.ID, AudioURL: v.AudioURL, Transcription: v.Transcription, CreatedAt: FormatTime(v.CreatedAt)}
}

func VoiceNoteFromWire(w VoiceNote) domain.VoiceNote {
	return domain.VoiceNote{ID: w.ID, AudioURL: w.AudioURL, Transcription: w.Transcription, CreatedAt: ParseTime(w.CreatedAt)}
}

func EncodeVoiceNote(v domain.VoiceNote) (Row, error) { return encode(VoiceNoteToWire(v)) }

func DecodeVoiceNote(row Row) (domain.VoiceNote, error) {
	var w VoiceNote
	if err := decode(row, &w); err != nil {
		return domain.VoiceNote{}, err
	}
	return VoiceNoteFromWire(w), nil
}

func VoiceNotePatch(p domain.VoiceNotePatch) map[string]any {
	m := map[string]any{}
	if p.Transcription != nil {
		m["transcription"] = *p.Transcription
	}
	return m
}
