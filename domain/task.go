package domain

import "time"

// TaskStatus is the board column a task sits in. Any status may follow any other.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type FinancialType string

const (
	Income  FinancialType = "income"
	Expense FinancialType = "expense"
)

// Task is a board item. Tasks carrying a Value double as finance entries;
// negative values are expenses.
type Task struct {
	ID                string        `json:"id"`
	Title             string        `json:"title" validate:"required"`
	Description       string        `json:"description,omitempty"`
	Niche             string        `json:"niche"`
	Status            TaskStatus    `json:"status" validate:"omitempty,oneof=todo in-progress done"`
	DueDate           string        `json:"dueDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Priority          Priority      `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Value             *float64      `json:"value,omitempty"`
	FinancialType     FinancialType `json:"financialType,omitempty" validate:"omitempty,oneof=income expense"`
	FinancialCategory string        `json:"financialCategory,omitempty"`
	Attachments       []Attachment  `json:"attachments,omitempty" validate:"dive"`
	RescheduleCount   int           `json:"rescheduleCount,omitempty" validate:"gte=0"`
	IsHabit           bool          `json:"isHabit,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// TaskPatch is a partial update of a Task. Nil fields are left untouched.
type TaskPatch struct {
	Title             *string        `json:"title,omitempty" validate:"omitempty,min=1"`
	Description       *string        `json:"description,omitempty"`
	Niche             *string        `json:"niche,omitempty"`
	Status            *TaskStatus    `json:"status,omitempty" validate:"omitempty,oneof=todo in-progress done"`
	DueDate           *string        `json:"dueDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Priority          *Priority      `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Value             *float64       `json:"value,omitempty"`
	FinancialType     *FinancialType `json:"financialType,omitempty" validate:"omitempty,oneof=income expense"`
	FinancialCategory *string        `json:"financialCategory,omitempty"`
	Attachments       *[]Attachment  `json:"attachments,omitempty"`
	RescheduleCount   *int           `json:"rescheduleCount,omitempty" validate:"omitempty,gte=0"`
	IsHabit           *bool          `json:"isHabit,omitempty"`
}

// Subtask is a checklist entry owned by exactly one task.
type Subtask struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

type SubtaskPatch struct {
	Title     *string `json:"title,omitempty" validate:"omitempty,min=1"`
	Completed *bool   `json:"completed,omitempty"`
}
