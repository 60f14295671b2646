package devserver

import (
	"log/slog"
	"sync"

	"golang.org/x/net/websocket"
)

// Message is pushed to every connected client as JSON.
type Message struct {
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	MessageReload = "reload"
	MessageError  = "error"
)

// sendBuffer bounds queued messages per session; a client that falls further
// behind is dropped.
const sendBuffer = 16

// Hub tracks live-reload sessions, one per open browser tab.
type Hub struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

type session struct {
	conn *websocket.Conn
	send chan Message

	closeOnce sync.Once
	done      chan struct{}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{logger: logger, sessions: make(map[*session]struct{})}
}

// Handler returns the websocket endpoint clients connect to.
func (h *Hub) Handler() websocket.Handler {
	return func(conn *websocket.Conn) {
		s := &session{conn: conn, send: make(chan Message, sendBuffer), done: make(chan struct{})}
		if !h.add(s) {
			_ = conn.Close()
			return
		}
		defer h.remove(s)

		// Clients never send anything meaningful; reading detects closure.
		go func() {
			var discard string
			for {
				if err := websocket.Message.Receive(conn, &discard); err != nil {
					s.close()
					return
				}
			}
		}()

		for {
			select {
			case <-s.done:
				return
			case msg := <-s.send:
				if err := websocket.JSON.Send(conn, msg); err != nil {
					s.close()
					return
				}
			}
		}
	}
}

func (h *Hub) add(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	h.logger.Debug("live-reload session opened", "sessions", len(h.sessions))
	return true
}

func (h *Hub) remove(s *session) {
	s.close()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		h.logger.Debug("live-reload session closed", "sessions", len(h.sessions))
	}
}

// Sessions returns the number of connected clients.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Reload tells every client to reload the page.
func (h *Hub) Reload() {
	h.broadcast(Message{Type: MessageReload})
}

// BuildError shows a build failure in every client.
func (h *Hub) BuildError(stage, message string) {
	h.broadcast(Message{Type: MessageError, Stage: stage, Message: message})
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		select {
		case s.send <- msg:
		default:
			h.logger.Warn("dropping slow live-reload session")
			delete(h.sessions, s)
			s.close()
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.sessions {
		delete(h.sessions, s)
		s.close()
	}
}
