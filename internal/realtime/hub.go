// Package realtime pushes order events to connected staff clients grouped
// into rooms: the kitchen, the admin dashboard, and one room per rider.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/saffronhouse/orders-backend/pkg/logger"
)

const (
	RoomKitchen   = "kitchen_staff"
	RoomDashboard = "admin_dashboard"

	deliveryRoomPrefix = "delivery_"
	defaultBufferSize  = 32
)

const (
	EventNewOrder           = "new_order"
	EventOrderStatusUpdated = "order_status_updated"
	EventOrderAssigned      = "order_assigned"
	EventJoined             = "joined"
	EventError              = "error"
)

// DeliveryRoom names the room of one delivery staff member.
func DeliveryRoom(staffID string) string {
	return deliveryRoomPrefix + strings.TrimSpace(staffID)
}

// Emitter publishes an event to every subscriber of a room. Delivery is at
// most once and never blocks the caller.
type Emitter interface {
	Publish(ctx context.Context, room, event string, payload any)
}

// Message is one server frame.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Subscriber is one connected client with a bounded outbound buffer.
type Subscriber struct {
	id string
	ch chan Message
}

func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Subscriber{id: uuid.NewString(), ch: make(chan Message, buffer)}
}

func (s *Subscriber) ID() string { return s.id }

// C returns the channel of frames queued for the client.
func (s *Subscriber) C() <-chan Message { return s.ch }

func (s *Subscriber) offer(msg Message) bool {
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

type dropRecorder interface {
	IncDropped(room string)
}

// Hub is the in-process room table. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Subscriber]struct{}
	dropped dropRecorder
	logg    *logger.Logger
}

type HubOption func(*Hub)

func WithDropRecorder(rec dropRecorder) HubOption {
	return func(h *Hub) { h.dropped = rec }
}

func NewHub(logg *logger.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		rooms: make(map[string]map[*Subscriber]struct{}),
		logg:  logg,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Join(room string, sub *Subscriber) {
	if room == "" || sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}
}

func (h *Hub) Leave(room string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(room, sub)
}

// LeaveAll removes the subscriber from every room, typically on disconnect.
func (h *Hub) LeaveAll(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.rooms {
		h.removeLocked(room, sub)
	}
}

func (h *Hub) removeLocked(room string, sub *Subscriber) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomSize reports the number of subscribers currently in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Publish encodes payload once and offers it to every member of room.
func (h *Hub) Publish(ctx context.Context, room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if h.logg != nil {
			h.logg.Error(h.logg.WithField(ctx, "event", event), "encode realtime payload", err)
		}
		return
	}
	h.Deliver(room, Message{Event: event, Data: data})
}

// Deliver fans an already encoded frame out to the room and returns the
// number of subscribers that accepted it.
func (h *Hub) Deliver(room string, msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sub := range h.rooms[room] {
		if sub.offer(msg) {
			delivered++
			continue
		}
		if h.dropped != nil {
			h.dropped.IncDropped(room)
		}
	}
	return delivered
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) Publish(context.Context, string, string, any) {}
