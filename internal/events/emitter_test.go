package events

import (
	"encoding/json"
	"io"
	"testing"

	"log/slog"
)

type delivery struct {
	room    string
	payload []byte
}

type hubSpy struct {
	deliveries []delivery
}

func (h *hubSpy) Broadcast(room string, payload []byte) {
	h.deliveries = append(h.deliveries, delivery{room: room, payload: payload})
}

func (h *hubSpy) rooms() []string {
	out := make([]string, 0, len(h.deliveries))
	for _, d := range h.deliveries {
		out = append(out, d.room)
	}
	return out
}

func newRouter() (*Router, *hubSpy) {
	hub := &hubSpy{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(hub, log), hub
}

func decodeEnvelope(t *testing.T, payload []byte) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	return msg.Event, msg.Data
}

func TestTeamCreatedGoesToCreatorOnly(t *testing.T) {
	router, hub := newRouter()
	router.TeamCreated(TeamPayload{TeamID: "team-1", TeamName: "Core", ActorID: "alice"})
	if len(hub.deliveries) != 1 {
		t.Fatalf("expected one delivery, got %v", hub.rooms())
	}
	if hub.deliveries[0].room != UserRoom("alice") {
		t.Fatalf("expected the creator's room, got %s", hub.deliveries[0].room)
	}
	event, _ := decodeEnvelope(t, hub.deliveries[0].payload)
	if event != EventTeamCreated {
		t.Fatalf("unexpected event: %s", event)
	}
}

func TestMemberAddedBroadcastsAndNotifies(t *testing.T) {
	router, hub := newRouter()
	router.MemberAdded(TeamPayload{TeamID: "team-1", TeamName: "Core", ActorID: "alice", MemberID: "bob"})
	rooms := hub.rooms()
	if len(rooms) != 2 || rooms[0] != TeamRoom("team-1") || rooms[1] != UserRoom("bob") {
		t.Fatalf("unexpected deliveries: %v", rooms)
	}
	event, data := decodeEnvelope(t, hub.deliveries[1].payload)
	if event != EventNotification {
		t.Fatalf("expected a notification, got %s", event)
	}
	if data["title"] != "Team Invitation" {
		t.Fatalf("unexpected notification: %v", data)
	}
}

func TestProjectUpdatedFansOutToBothRooms(t *testing.T) {
	router, hub := newRouter()
	router.ProjectUpdated(ProjectPayload{ProjectID: "proj-1", TeamID: "team-1", ActorID: "alice"})
	rooms := hub.rooms()
	if len(rooms) != 2 || rooms[0] != TeamRoom("team-1") || rooms[1] != ProjectRoom("proj-1") {
		t.Fatalf("unexpected deliveries: %v", rooms)
	}
}

func TestTaskStatusChangedSkipsSelfNotification(t *testing.T) {
	router, hub := newRouter()
	router.TaskStatusChanged(TaskPayload{
		TaskID:     "task-1",
		ProjectID:  "proj-1",
		ActorID:    "bob",
		AssigneeID: "bob",
		Status:     "In Progress",
	})
	rooms := hub.rooms()
	if len(rooms) != 2 {
		t.Fatalf("moving your own task must not notify you: %v", rooms)
	}

	hub.deliveries = nil
	router.TaskStatusChanged(TaskPayload{
		TaskID:     "task-1",
		ProjectID:  "proj-1",
		ActorID:    "alice",
		AssigneeID: "bob",
		Status:     "Review",
	})
	rooms = hub.rooms()
	if len(rooms) != 3 || rooms[2] != UserRoom("bob") {
		t.Fatalf("expected an assignee notification, got %v", rooms)
	}
}

func TestTaskCreatedUnassignedSkipsNotification(t *testing.T) {
	router, hub := newRouter()
	router.TaskCreated(TaskPayload{TaskID: "task-1", ProjectID: "proj-1", ActorID: "alice"})
	rooms := hub.rooms()
	if len(rooms) != 1 || rooms[0] != ProjectRoom("proj-1") {
		t.Fatalf("unexpected deliveries: %v", rooms)
	}
}

func TestUnassignedNotifiesPreviousAssignee(t *testing.T) {
	router, hub := newRouter()
	router.TaskUnassigned(TaskPayload{
		TaskID:         "task-1",
		ProjectID:      "proj-1",
		ActorID:        "alice",
		PrevAssigneeID: "bob",
	})
	rooms := hub.rooms()
	if len(rooms) != 3 || rooms[2] != UserRoom("bob") {
		t.Fatalf("expected the previous assignee to be told, got %v", rooms)
	}
}
