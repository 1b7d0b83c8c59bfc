package ws

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/crewkit/crewkit/internal/events"
)

// JoinAuthorizer re-validates membership before a connection may enter a
// room. Mirrors the authorization the services apply to reads.
type JoinAuthorizer interface {
	AuthorizeJoin(ctx context.Context, userID, room string) error
}

// clientCommand is what connected clients send to manage subscriptions.
type clientCommand struct {
	Action string `json:"action"`
	TeamID string `json:"team_id,omitempty"`
	Proj   string `json:"project_id,omitempty"`
	TaskID string `json:"task_id,omitempty"`
}

// Client-initiated actions.
const (
	ActionJoinTeam        = "join:team"
	ActionLeaveTeam       = "leave:team"
	ActionJoinProject     = "join:project"
	ActionLeaveProject    = "leave:project"
	ActionSubscribeTask   = "subscribe:task"
	ActionUnsubscribeTask = "unsubscribe:task"
)

// Session owns one authenticated connection's room membership. Every
// session holds the user's permanent direct room for its whole lifetime;
// team/project/task rooms are joined on demand and re-checked against
// current membership at join time.
type Session struct {
	hub    *Hub
	client *Client
	auth   JoinAuthorizer
	userID string
	rooms  map[string]struct{}
	log    *slog.Logger
}

// NewSession registers the connection in its user room and returns the
// session ready to serve commands.
func NewSession(hub *Hub, client *Client, auth JoinAuthorizer, userID string, log *slog.Logger) *Session {
	s := &Session{
		hub:    hub,
		client: client,
		auth:   auth,
		userID: userID,
		rooms:  make(map[string]struct{}),
		log:    log,
	}
	userRoom := events.UserRoom(userID)
	hub.Join(userRoom, client)
	s.rooms[userRoom] = struct{}{}
	return s
}

// Serve reads commands until the connection drops, then leaves every
// joined room.
func (s *Session) Serve(ctx context.Context, conn *websocket.Conn) {
	defer s.teardown()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.sendError("invalid message")
			continue
		}
		s.handle(ctx, cmd)
	}
}

func (s *Session) handle(ctx context.Context, cmd clientCommand) {
	switch cmd.Action {
	case ActionJoinTeam:
		s.join(ctx, events.TeamRoom(cmd.TeamID), cmd.TeamID != "")
	case ActionLeaveTeam:
		s.leave(events.TeamRoom(cmd.TeamID))
	case ActionJoinProject:
		s.join(ctx, events.ProjectRoom(cmd.Proj), cmd.Proj != "")
	case ActionLeaveProject:
		s.leave(events.ProjectRoom(cmd.Proj))
	case ActionSubscribeTask:
		s.join(ctx, events.TaskRoom(cmd.TaskID), cmd.TaskID != "")
	case ActionUnsubscribeTask:
		s.leave(events.TaskRoom(cmd.TaskID))
	default:
		s.sendError("unknown action")
	}
}

func (s *Session) join(ctx context.Context, room string, idPresent bool) {
	if !idPresent {
		s.sendError("missing identifier")
		return
	}
	if err := s.auth.AuthorizeJoin(ctx, s.userID, room); err != nil {
		s.log.Warn("room join rejected", "user_id", s.userID, "room", room, "error", err)
		s.sendError("not authorized for room")
		return
	}
	s.hub.Join(room, s.client)
	s.rooms[room] = struct{}{}
	s.log.Debug("room joined", "user_id", s.userID, "room", room)
}

func (s *Session) leave(room string) {
	if _, ok := s.rooms[room]; !ok {
		return
	}
	s.hub.Leave(room, s.client)
	delete(s.rooms, room)
}

func (s *Session) teardown() {
	for room := range s.rooms {
		s.hub.Leave(room, s.client)
	}
	s.client.Close()
	s.log.Debug("session closed", "user_id", s.userID)
}

func (s *Session) sendError(msg string) {
	payload, err := json.Marshal(map[string]any{
		"event": "error",
		"data":  map[string]any{"message": msg, "timestamp": time.Now().UTC()},
	})
	if err != nil {
		return
	}
	_ = s.client.Send(payload)
}
