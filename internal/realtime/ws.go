package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saffronhouse/orders-backend/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// clientMessage is a frame sent by a client to join a room.
type clientMessage struct {
	Event   string `json:"event"`
	StaffID string `json:"staffId"`
	AdminID string `json:"adminId"`
}

// Handler upgrades HTTP requests to websocket connections subscribed to hub
// rooms.
type Handler struct {
	hub        *Hub
	upgrader   websocket.Upgrader
	bufferSize int
	logg       *logger.Logger
}

// NewHandler builds the /ws handler. An empty or "*" origin list accepts any
// origin.
func NewHandler(hub *Hub, allowedOrigins []string, bufferSize int, logg *logger.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		bufferSize: bufferSize,
		logg:       logg,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			set[strings.ToLower(origin)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		return
	}

	ctx := context.WithoutCancel(r.Context())
	sub := NewSubscriber(h.bufferSize)
	ctx = h.logg.WithField(ctx, "subscriber_id", sub.ID())
	h.logg.Info(ctx, "realtime client connected")

	done := make(chan struct{})
	go h.writeLoop(conn, sub, done)
	h.readLoop(ctx, conn, sub)

	h.hub.LeaveAll(sub)
	close(done)
	h.logg.Info(ctx, "realtime client disconnected")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber) {
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "realtime client read failed")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			sub.offer(errorFrame("malformed message"))
			continue
		}
		room, ok := roomFor(msg)
		if !ok {
			sub.offer(errorFrame("unknown event " + msg.Event))
			continue
		}
		h.hub.Join(room, sub)
		data, _ := json.Marshal(map[string]string{"room": room})
		sub.offer(Message{Event: EventJoined, Data: data})
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func roomFor(msg clientMessage) (string, bool) {
	switch msg.Event {
	case "join_kitchen":
		return RoomKitchen, true
	case "join_dashboard":
		return RoomDashboard, true
	case "join_delivery":
		if strings.TrimSpace(msg.StaffID) == "" {
			return "", false
		}
		return DeliveryRoom(msg.StaffID), true
	default:
		return "", false
	}
}

func errorFrame(message string) Message {
	data, _ := json.Marshal(map[string]string{"message": message})
	return Message{Event: EventError, Data: data}
}
