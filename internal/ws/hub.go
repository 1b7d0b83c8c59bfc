package ws

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages live subscriptions by room name. Rooms are created on
// first join and dropped when their last subscriber leaves; broadcasting
// to an empty room is a silent no-op. All room state is owned by the
// run loop.
type Hub struct {
	rooms     map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with a room name.
type message struct {
	room    string
	payload []byte
}

// subscription defines join/leave requests.
type subscription struct {
	room   string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		rooms:     make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.rooms[sub.room]; !ok {
				h.rooms[sub.room] = make(map[Subscriber]struct{})
			}
			h.rooms[sub.room][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.rooms[sub.room]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.rooms, sub.room)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.rooms[msg.room]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.rooms, msg.room)
				}
			}
		}
	}
}

// Join adds a client to a room.
func (h *Hub) Join(room string, client Subscriber) {
	h.register <- subscription{room: room, client: client}
}

// Leave removes a client from a room.
func (h *Hub) Leave(room string, client Subscriber) {
	h.unreg <- subscription{room: room, client: client}
}

// Broadcast sends payload to every client in the room.
func (h *Hub) Broadcast(room string, payload []byte) {
	h.broadcast <- message{room: room, payload: payload}
}
