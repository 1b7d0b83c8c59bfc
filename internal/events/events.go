package events

import "time"

// Room prefixes for logical delivery targets.
const (
	roomTeamPrefix    = "team:"
	roomProjectPrefix = "project:"
	roomTaskPrefix    = "task:"
	roomUserPrefix    = "user:"
)

// TeamRoom names the room receiving a team's events.
func TeamRoom(teamID string) string { return roomTeamPrefix + teamID }

// ProjectRoom names the room receiving a project's events.
func ProjectRoom(projectID string) string { return roomProjectPrefix + projectID }

// TaskRoom names the room receiving a single task's events.
func TaskRoom(taskID string) string { return roomTaskPrefix + taskID }

// UserRoom names a user's permanent direct-address room.
func UserRoom(userID string) string { return roomUserPrefix + userID }

// Server event names, stable across clients.
const (
	EventTeamCreated       = "team:created"
	EventTeamUpdated       = "team:updated"
	EventTeamDeleted       = "team:deleted"
	EventMemberAdded       = "team:member:added"
	EventMemberRemoved     = "team:member:removed"
	EventMemberRoleChanged = "team:member:role:changed"

	EventProjectCreated = "project:created"
	EventProjectUpdated = "project:updated"
	EventProjectDeleted = "project:deleted"

	EventTaskCreated       = "task:created"
	EventTaskUpdated       = "task:updated"
	EventTaskDeleted       = "task:deleted"
	EventTaskStatusChanged = "task:status:changed"
	EventTaskAssigned      = "task:assigned"
	EventTaskUnassigned    = "task:unassigned"

	EventNotification = "notification"
)

// TeamPayload describes team and membership events.
type TeamPayload struct {
	TeamID    string    `json:"team_id"`
	TeamName  string    `json:"team_name"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	MemberID  string    `json:"member_id,omitempty"`
	Name      string    `json:"member_name,omitempty"`
	Role      string    `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProjectPayload describes project events.
type ProjectPayload struct {
	ProjectID   string    `json:"project_id"`
	ProjectName string    `json:"project_name"`
	TeamID      string    `json:"team_id"`
	ActorID     string    `json:"actor_id"`
	ActorName   string    `json:"actor_name,omitempty"`
	Status      string    `json:"status,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TaskPayload describes task events.
type TaskPayload struct {
	TaskID           string    `json:"task_id"`
	TaskTitle        string    `json:"task_title"`
	ProjectID        string    `json:"project_id"`
	TeamID           string    `json:"team_id"`
	ActorID          string    `json:"actor_id"`
	ActorName        string    `json:"actor_name,omitempty"`
	AssigneeID       string    `json:"assignee_id,omitempty"`
	AssigneeName     string    `json:"assignee_name,omitempty"`
	PrevAssigneeID   string    `json:"previous_assignee_id,omitempty"`
	Status           string    `json:"status,omitempty"`
	PreviousStatus   string    `json:"previous_status,omitempty"`
	Priority         string    `json:"priority,omitempty"`
	PreviousPriority string    `json:"previous_priority,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Notification is delivered to a user's direct room.
type Notification struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
