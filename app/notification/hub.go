package notification

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"lifemonitor/pkg/log"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// Control is a message sent by a client to join or leave rooms.
type Control struct {
	Type  string   `json:"type"`
	Rooms []string `json:"rooms"`
}

type session struct {
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]bool
}

// Hub tracks the WebSocket sessions. Every session joins the room named
// after its user.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*session]bool
	rooms    map[string]map[*session]bool
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		sessions: map[*session]bool{},
		rooms:    map[string]map[*session]bool{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and serves the session until it is closed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := &session{conn: conn, send: make(chan []byte, sendBuffer), rooms: map[string]bool{}}
	h.mu.Lock()
	h.sessions[s] = true
	h.mu.Unlock()
	if userID != "" {
		h.join(s, userID)
	}
	log.Debugf(nil, "WebSocket session of user %q opened", userID)

	go h.writeLoop(s)
	h.readLoop(s)
	return nil
}

func (h *Hub) join(s *session, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sessions[s] {
		return
	}
	for _, room := range rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = map[*session]bool{}
		}
		h.rooms[room][s] = true
		s.rooms[room] = true
	}
}

func (h *Hub) leave(s *session, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		h.leaveLocked(s, room)
	}
}

func (h *Hub) leaveLocked(s *session, room string) {
	delete(s.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) remove(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sessions[s] {
		return
	}
	for room := range s.rooms {
		h.leaveLocked(s, room)
	}
	delete(h.sessions, s)
	close(s.send)
}

// Members is the number of sessions in a room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Deliver sends the payload of m to the sessions of its target ids and rooms,
// to every session when it has no target.
func (h *Hub) Deliver(m *Message) {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		log.Warnf(nil, "Unable to encode notification payload: %v", err)
		return
	}
	h.mu.RLock()
	targets := map[*session]bool{}
	if len(m.TargetIDs) == 0 && len(m.TargetRooms) == 0 {
		targets = h.sessions
	} else {
		for _, rooms := range [][]string{m.TargetIDs, m.TargetRooms} {
			for _, room := range rooms {
				for s := range h.rooms[room] {
					targets[s] = true
				}
			}
		}
	}
	var slow []*session
	for s := range targets {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range slow {
		log.Warnf(nil, "Closing a WebSocket session not keeping up with notifications")
		h.remove(s)
	}
}

func (h *Hub) readLoop(s *session) {
	defer func() {
		h.remove(s)
		_ = s.conn.Close()
	}()
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf(nil, "WebSocket session closed: %v", err)
			}
			return
		}
		c := Control{}
		if err := json.Unmarshal(data, &c); err != nil {
			log.Debugf(nil, "Ignoring malformed WebSocket message: %v", err)
			continue
		}
		switch c.Type {
		case "join":
			h.join(s, c.Rooms...)
		case "leave":
			h.leave(s, c.Rooms...)
		}
	}
}

func (h *Hub) writeLoop(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
