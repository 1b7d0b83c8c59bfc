package domain

import (
	"math"
	"time"
)

// TaskStatus enumerates task workflow states.
type TaskStatus string

const (
	TaskToDo       TaskStatus = "To Do"
	TaskInProgress TaskStatus = "In Progress"
	TaskReview     TaskStatus = "Review"
	TaskDone       TaskStatus = "Done"
)

// Valid reports whether the status is one of the known values.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskToDo, TaskInProgress, TaskReview, TaskDone:
		return true
	}
	return false
}

// statusFlow is the single source of truth for legal transitions.
// No state is terminal; Done can be reopened into In Progress.
var statusFlow = map[TaskStatus][]TaskStatus{
	TaskToDo:       {TaskInProgress},
	TaskInProgress: {TaskToDo, TaskReview},
	TaskReview:     {TaskInProgress, TaskDone},
	TaskDone:       {TaskInProgress},
}

// CanTransitionTo reports whether moving from s to next is legal.
// Self-transitions are not in the table and are rejected.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range statusFlow[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TaskPriority enumerates urgency levels.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "Low"
	PriorityMedium TaskPriority = "Medium"
	PriorityHigh   TaskPriority = "High"
	PriorityUrgent TaskPriority = "Urgent"
)

// Valid reports whether the priority is one of the known values.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// MaxTaskTags bounds the free-text tag list.
const MaxTaskTags = 10

// Task belongs to a project. AssignedTo, when set, must be a member of
// the project's team.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	ProjectID   string       `json:"project_id"`
	AssignedTo  string       `json:"assigned_to,omitempty"`
	CreatedBy   string       `json:"created_by"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Tags        []string     `json:"tags"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsOverdue reports whether the due date has passed for an unfinished
// task. Derived at read time, never persisted.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.Status == TaskDone {
		return false
	}
	return now.After(*t.DueDate)
}

// DaysUntilDue returns the number of days until the due date, or false
// when no due date is set. Negative for overdue tasks.
func (t *Task) DaysUntilDue(now time.Time) (int, bool) {
	if t.DueDate == nil {
		return 0, false
	}
	days := int(math.Ceil(t.DueDate.Sub(now).Hours() / 24))
	return days, true
}
