package domain

import "time"

// ActivityAction tags an activity record with the mutation it documents.
type ActivityAction string

const (
	ActionUserRegistered ActivityAction = "user_registered"
	ActionUserLogin      ActivityAction = "user_login"

	ActionTeamCreated       ActivityAction = "team_created"
	ActionTeamUpdated       ActivityAction = "team_updated"
	ActionTeamDeleted       ActivityAction = "team_deleted"
	ActionMemberAdded       ActivityAction = "member_added"
	ActionMemberRemoved     ActivityAction = "member_removed"
	ActionMemberRoleChanged ActivityAction = "member_role_changed"

	ActionProjectCreated ActivityAction = "project_created"
	ActionProjectUpdated ActivityAction = "project_updated"
	ActionProjectDeleted ActivityAction = "project_deleted"

	ActionTaskCreated         ActivityAction = "task_created"
	ActionTaskUpdated         ActivityAction = "task_updated"
	ActionTaskDeleted         ActivityAction = "task_deleted"
	ActionTaskStatusChanged   ActivityAction = "task_status_changed"
	ActionTaskAssigned        ActivityAction = "task_assigned"
	ActionTaskUnassigned      ActivityAction = "task_unassigned"
	ActionTaskPriorityChanged ActivityAction = "task_priority_changed"
)

// ActivityRecord is an immutable audit entry. Team/project/task
// references are weak: they scope the record for retrieval and never
// keep the referenced entity alive. Records expire after the configured
// retention window.
type ActivityRecord struct {
	ID          string         `json:"id"`
	Action      ActivityAction `json:"action"`
	UserID      string         `json:"user_id"`
	TeamID      string         `json:"team_id,omitempty"`
	ProjectID   string         `json:"project_id,omitempty"`
	TaskID      string         `json:"task_id,omitempty"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
