package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscriberSend = 32
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// EventHub fans assessment events out to websocket subscribers. Slow subscribers lose events
// instead of blocking publishers.
type EventHub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader
	onChange func(subscribers int)

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	closed  bool
}

// NewEventHub creates an empty hub. onChange, if set, is told the subscriber count after each change.
func NewEventHub(logger *logrus.Logger, onChange func(subscribers int)) *EventHub {
	return &EventHub{
		logger:   logger,
		onChange: onChange,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// Publish implements service.EventPublisher.
func (h *EventHub) Publish(event service.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients {
		select {
		case sub.send <- data:
		default:
			h.logger.WithFields(logrus.Fields{
				"event":         event.Type,
				"assessment_id": event.AssessmentID,
				"remote_addr":   sub.conn.RemoteAddr().String(),
			}).Warn("Dropping event for slow subscriber")
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	h.closed = true
	for sub := range h.clients {
		sub.close()
		delete(h.clients, sub)
	}
	h.mu.Unlock()
	h.notify()
}

// ServeWS upgrades the request and streams events until the client goes away.
func (h *EventHub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, subscriberSend)}
	if !h.add(sub) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	h.logger.WithField("remote_addr", conn.RemoteAddr().String()).Info("Event subscriber connected")

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *EventHub) add(sub *subscriber) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[sub] = struct{}{}
	h.mu.Unlock()
	h.notify()
	return true
}

func (h *EventHub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.clients[sub]
	delete(h.clients, sub)
	h.mu.Unlock()

	sub.close()
	if ok {
		h.notify()
	}
}

func (h *EventHub) notify() {
	if h.onChange != nil {
		h.onChange(h.Subscribers())
	}
}

// readPump discards client messages and detects disconnects.
func (h *EventHub) readPump(sub *subscriber) {
	defer h.remove(sub)

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Debug("Event subscriber closed unexpectedly")
			}
			return
		}
	}
}

func (h *EventHub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case data, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
