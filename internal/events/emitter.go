package events

import (
	"encoding/json"
	"fmt"
	"time"

	"log/slog"
)

// Emitter maps completed mutations to room deliveries. Delivery is
// best-effort: a mutation has already succeeded and been recorded by the
// time its event is emitted, so no method returns an error.
type Emitter interface {
	TeamCreated(p TeamPayload)
	TeamUpdated(p TeamPayload)
	TeamDeleted(p TeamPayload)
	MemberAdded(p TeamPayload)
	MemberRemoved(p TeamPayload)
	MemberRoleChanged(p TeamPayload)

	ProjectCreated(p ProjectPayload)
	ProjectUpdated(p ProjectPayload)
	ProjectDeleted(p ProjectPayload)

	TaskCreated(p TaskPayload)
	TaskUpdated(p TaskPayload)
	TaskDeleted(p TaskPayload)
	TaskStatusChanged(p TaskPayload)
	TaskAssigned(p TaskPayload)
	TaskUnassigned(p TaskPayload)
}

// Broadcaster delivers an encoded event to every connection in a room.
type Broadcaster interface {
	Broadcast(room string, payload []byte)
}

// envelope frames every wire message.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Router implements Emitter over a live Broadcaster.
type Router struct {
	hub Broadcaster
	log *slog.Logger
}

// NewRouter constructs a Router.
func NewRouter(hub Broadcaster, log *slog.Logger) *Router {
	return &Router{hub: hub, log: log}
}

var _ Emitter = (*Router)(nil)

func (r *Router) emit(event string, data any, rooms ...string) {
	payload, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		r.log.Error("event encode failed", "event", event, "error", err)
		return
	}
	for _, room := range rooms {
		r.hub.Broadcast(room, payload)
	}
	r.log.Debug("event emitted", "event", event, "rooms", rooms)
}

func (r *Router) notify(userID string, n Notification) {
	if userID == "" {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	r.emit(EventNotification, n, UserRoom(userID))
}

// TeamCreated notifies only the creator's direct room.
func (r *Router) TeamCreated(p TeamPayload) {
	r.emit(EventTeamCreated, p, UserRoom(p.ActorID))
}

func (r *Router) TeamUpdated(p TeamPayload) {
	r.emit(EventTeamUpdated, p, TeamRoom(p.TeamID))
}

func (r *Router) TeamDeleted(p TeamPayload) {
	r.emit(EventTeamDeleted, p, TeamRoom(p.TeamID))
}

func (r *Router) MemberAdded(p TeamPayload) {
	r.emit(EventMemberAdded, p, TeamRoom(p.TeamID))
	r.notify(p.MemberID, Notification{
		Type:    "info",
		Title:   "Team Invitation",
		Message: fmt.Sprintf("You have been added to team: %s", p.TeamName),
		Data:    map[string]any{"team_id": p.TeamID},
	})
}

func (r *Router) MemberRemoved(p TeamPayload) {
	r.emit(EventMemberRemoved, p, TeamRoom(p.TeamID))
	r.notify(p.MemberID, Notification{
		Type:    "warning",
		Title:   "Removed from Team",
		Message: fmt.Sprintf("You have been removed from team: %s", p.TeamName),
		Data:    map[string]any{"team_id": p.TeamID},
	})
}

func (r *Router) MemberRoleChanged(p TeamPayload) {
	r.emit(EventMemberRoleChanged, p, TeamRoom(p.TeamID))
	r.notify(p.MemberID, Notification{
		Type:    "info",
		Title:   "Role Updated",
		Message: fmt.Sprintf("Your role in %s has been changed to %s", p.TeamName, p.Role),
		Data:    map[string]any{"team_id": p.TeamID, "role": p.Role},
	})
}

func (r *Router) ProjectCreated(p ProjectPayload) {
	r.emit(EventProjectCreated, p, TeamRoom(p.TeamID))
}

func (r *Router) ProjectUpdated(p ProjectPayload) {
	r.emit(EventProjectUpdated, p, TeamRoom(p.TeamID), ProjectRoom(p.ProjectID))
}

func (r *Router) ProjectDeleted(p ProjectPayload) {
	r.emit(EventProjectDeleted, p, TeamRoom(p.TeamID), ProjectRoom(p.ProjectID))
}

func (r *Router) TaskCreated(p TaskPayload) {
	r.emit(EventTaskCreated, p, ProjectRoom(p.ProjectID))
	r.notify(p.AssigneeID, Notification{
		Type:    "info",
		Title:   "New Task Assigned",
		Message: fmt.Sprintf("You have been assigned to: %s", p.TaskTitle),
		Data:    map[string]any{"task_id": p.TaskID, "project_id": p.ProjectID},
	})
}

func (r *Router) TaskUpdated(p TaskPayload) {
	r.emit(EventTaskUpdated, p, ProjectRoom(p.ProjectID), TaskRoom(p.TaskID))
}

func (r *Router) TaskDeleted(p TaskPayload) {
	r.emit(EventTaskDeleted, p, ProjectRoom(p.ProjectID), TaskRoom(p.TaskID))
}

// TaskStatusChanged notifies the assignee directly only when someone
// else moved their task.
func (r *Router) TaskStatusChanged(p TaskPayload) {
	r.emit(EventTaskStatusChanged, p, ProjectRoom(p.ProjectID), TaskRoom(p.TaskID))
	if p.AssigneeID != "" && p.AssigneeID != p.ActorID {
		r.notify(p.AssigneeID, Notification{
			Type:    "info",
			Title:   "Task Status Changed",
			Message: fmt.Sprintf("%q status changed to %s", p.TaskTitle, p.Status),
			Data:    map[string]any{"task_id": p.TaskID, "status": p.Status},
		})
	}
}

func (r *Router) TaskAssigned(p TaskPayload) {
	r.emit(EventTaskAssigned, p, ProjectRoom(p.ProjectID), TaskRoom(p.TaskID))
	r.notify(p.AssigneeID, Notification{
		Type:    "info",
		Title:   "Task Assigned",
		Message: fmt.Sprintf("You have been assigned to: %s", p.TaskTitle),
		Data:    map[string]any{"task_id": p.TaskID, "project_id": p.ProjectID},
	})
}

func (r *Router) TaskUnassigned(p TaskPayload) {
	r.emit(EventTaskUnassigned, p, ProjectRoom(p.ProjectID), TaskRoom(p.TaskID))
	r.notify(p.PrevAssigneeID, Notification{
		Type:    "info",
		Title:   "Task Unassigned",
		Message: fmt.Sprintf("You have been unassigned from: %s", p.TaskTitle),
		Data:    map[string]any{"task_id": p.TaskID},
	})
}

// Noop discards every event. Used when no live transport is attached.
type Noop struct{}

var _ Emitter = Noop{}

func (Noop) TeamCreated(TeamPayload)          {}
func (Noop) TeamUpdated(TeamPayload)          {}
func (Noop) TeamDeleted(TeamPayload)          {}
func (Noop) MemberAdded(TeamPayload)          {}
func (Noop) MemberRemoved(TeamPayload)        {}
func (Noop) MemberRoleChanged(TeamPayload)    {}
func (Noop) ProjectCreated(ProjectPayload)    {}
func (Noop) ProjectUpdated(ProjectPayload)    {}
func (Noop) ProjectDeleted(ProjectPayload)    {}
func (Noop) TaskCreated(TaskPayload)          {}
func (Noop) TaskUpdated(TaskPayload)          {}
func (Noop) TaskDeleted(TaskPayload)          {}
func (Noop) TaskStatusChanged(TaskPayload)    {}
func (Noop) TaskAssigned(TaskPayload)         {}
func (Noop) TaskUnassigned(TaskPayload)       {}
