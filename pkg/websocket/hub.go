// Package websocket streams result events to staff watching an exam.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"exam-system/internal/httpx"
	"exam-system/internal/identity"
	"exam-system/pkg/events"
	"exam-system/pkg/logger"
)

// Message is the envelope written to every socket.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Watcher decides whether caller may follow the results of an exam.
type Watcher interface {
	CanWatch(ctx context.Context, caller identity.Identity, examID uint) error
}

type Hub struct {
	watcher  Watcher
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu         sync.RWMutex
	rooms      map[uint]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub builds a hub. An empty origins list accepts any origin.
func NewHub(watcher Watcher, origins []string, log *logger.Logger) *Hub {
	h := &Hub{
		watcher:    watcher,
		log:        log.With("component", "ws"),
		rooms:      make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || origin == "" || allowed[origin]
		},
	}
	return h
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	examID uint
	caller identity.Identity
}

// Run owns room membership until ctx is cancelled; every open socket is
// closed on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[c.examID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[c.examID] = room
			}
			room[c] = true
			n := len(room)
			h.mu.Unlock()
			h.log.Debug("watcher joined", "exam_id", c.examID, "account_id", c.caller.AccountID, "watchers", n)

		case c := <-h.unregister:
			h.remove(c)

		case <-ctx.Done():
			h.mu.Lock()
			for examID, room := range h.rooms {
				for c := range room {
					close(c.send)
				}
				delete(h.rooms, examID)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.examID]
	if !ok || !room[c] {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.examID)
	}
	h.log.Debug("watcher left", "exam_id", c.examID, "account_id", c.caller.AccountID)
}

// Watchers returns the number of open sockets on an exam.
func (h *Hub) Watchers(examID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[examID])
}

// Deliver broadcasts ev to the sockets watching its exam. Slow clients whose
// buffer is full are dropped.
func (h *Hub) Deliver(ev events.ResultEvent) {
	data, err := json.Marshal(Message{Type: ev.Type, Data: ev})
	if err != nil {
		h.log.Error("marshal result event", "error", err)
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.rooms[ev.ExamID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("send buffer full; dropping watcher", "exam_id", ev.ExamID, "account_id", c.caller.AccountID)
		h.remove(c)
	}
}

// PublishResult lets the hub stand in for the event bus on a single
// instance.
func (h *Hub) PublishResult(_ context.Context, ev events.ResultEvent) error {
	h.Deliver(ev)
	return nil
}

// HandleWebSocket authorizes the caller for the exam in the path, then
// upgrades the connection. Authorization failures are answered as plain
// HTTP errors before the upgrade.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	examID, err := httpx.ID(r, "examID")
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	if err := h.watcher.CanWatch(r.Context(), caller, examID); err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		examID: examID,
		caller: caller,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only services control frames; watchers do not send commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("unexpected close", "exam_id", c.examID, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("write failed", "exam_id", c.examID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
