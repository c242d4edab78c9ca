package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEvent is one message pushed over the /events stream: workflow lifecycle
// transitions (started, status changed, completed; no per-activity
// events), keyed by workflow/run so a
// dashboard can correlate them with the HTTP status endpoints.
type wsEvent struct {
	Type       string      `json:"type"`
	WorkflowID string      `json:"workflow_id,omitempty"`
	RunID      string      `json:"run_id,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// eventHub fans wsEvents out to every connected /events client. Registration
// and broadcast both run on h.run's single goroutine so the client set never
// needs its own lock.
type eventHub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan wsEvent
	done       chan struct{}
	closeOnce  sync.Once
}

func newEventHub() *eventHub {
	return &eventHub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan wsEvent, 256),
		done:       make(chan struct{}),
	}
}

func (h *eventHub) run() {
	for {
		select {
		case conn := <-h.register:
			h.clients[conn] = true

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}

		case event := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					slog.Warn("dropping event stream client", "error", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}

		case <-h.done:
			for conn := range h.clients {
				conn.Close()
			}
			return
		}
	}
}

// stop terminates the hub's goroutine and closes every connected socket.
func (h *eventHub) stop() {
	h.closeOnce.Do(func() { close(h.done) })
}

// publish queues an event for broadcast. It never blocks the caller beyond
// the channel's buffer: a full buffer means no one has serviced clients
// fast enough, and the event is dropped rather than stall workflow code.
func (h *eventHub) publish(event wsEvent) {
	select {
	case h.broadcast <- event:
	default:
		slog.Warn("event stream buffer full, dropping event", "type", event.Type, "workflow_id", event.WorkflowID)
	}
}

// eventsHandler handles GET /events, upgrading to a WebSocket and
// registering the connection with the hub until the client disconnects.
func (s *Server) eventsHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("event stream upgrade failed", "error", err)
		return
	}

	s.hub.register <- conn

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.unregister <- conn
			return
		}
	}
}
