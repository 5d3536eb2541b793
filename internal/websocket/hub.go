package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/metrics"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const lookupTimeout = 5 * time.Second

// CalendarLookup resolves share codes for subscription requests.
type CalendarLookup interface {
	GetByShareCode(ctx context.Context, code string) (*domain.Calendar, error)
	Summarize(ctx context.Context, calendar *domain.Calendar) (*domain.CalendarSummary, error)
}

// Hub tracks connected clients and the calendar topics they subscribe to.
type Hub struct {
	topics     map[string]*topic
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	done       chan struct{} // closed when Run() exits
	stopped    bool
	stopOnce   sync.Once
	calendars  CalendarLookup
	logger     zerolog.Logger
	mu         sync.RWMutex
}

func NewHub(calendars CalendarLookup, logger zerolog.Logger) *Hub {
	return &Hub{
		topics:     make(map[string]*topic),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		calendars:  calendars,
		logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			h.stopped = true
			for client := range h.clients {
				h.dropClientLocked(client)
			}
			h.clients = make(map[*Client]bool)
			h.topics = make(map[string]*topic)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if !h.stopped {
				h.clients[client] = true
				metrics.WSConnections.Inc()
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if !h.stopped {
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					h.dropClientLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop closes every client connection and waits for Run to return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister safely unregisters a client, handling the case where the hub may be stopped.
func (h *Hub) Unregister(client *Client) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()

	if stopped {
		return
	}

	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish sends a message to every subscriber of the calendar with the given
// share code. Publishing to a topic with no subscribers is a no-op.
func (h *Hub) Publish(shareCode string, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(msgType)).Msg("failed to build message")
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(string(msgType)).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	t, ok := h.topics[shareCode]
	if !ok {
		return
	}
	dropped, err := t.publish(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("share_code", shareCode).Msg("failed to publish")
		return
	}
	if dropped > 0 {
		h.logger.Warn().
			Str("share_code", shareCode).
			Str("type", string(msgType)).
			Int("dropped", dropped).
			Msg("dropped message for slow subscribers")
	}
}

// Join subscribes client to the calendar behind shareCode and replies with
// joined_calendar. Unknown calendars are ignored.
func (h *Hub) Join(ctx context.Context, client *Client, shareCode string) error {
	code := strings.ToUpper(strings.TrimSpace(shareCode))
	if code == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	calendar, err := h.calendars.GetByShareCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.logger.Debug().Str("share_code", code).Msg("join for unknown calendar ignored")
		return nil
	}
	if err != nil {
		return err
	}
	summary, err := h.calendars.Summarize(ctx, calendar)
	if err != nil {
		return err
	}

	welcome, err := NewMessage(MessageTypeJoinedCalendar, JoinedCalendarPayload{Calendar: summary})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}

	t, ok := h.topics[code]
	if !ok {
		t = newTopic(code)
		h.topics[code] = t
	}
	if t.add(client, welcome) {
		client.addTopic(code)
		metrics.WSSubscriptions.Inc()
	}
	return nil
}

// Leave removes client from the topic and confirms with left_calendar.
func (h *Hub) Leave(client *Client, shareCode string) {
	code := strings.ToUpper(strings.TrimSpace(shareCode))

	h.mu.Lock()
	removed := h.leaveLocked(client, code)
	h.mu.Unlock()

	if removed {
		client.Send(MessageTypeLeftCalendar, LeftCalendarPayload{ShareCode: code})
	}
}

// SubscriberCount reports how many clients are subscribed to shareCode.
func (h *Hub) SubscriberCount(shareCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	t, ok := h.topics[shareCode]
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

func (h *Hub) leaveLocked(client *Client, code string) bool {
	t, ok := h.topics[code]
	if !ok || !t.remove(client) {
		return false
	}
	client.removeTopic(code)
	metrics.WSSubscriptions.Dec()
	if t.empty() {
		delete(h.topics, code)
	}
	return true
}

// dropClientLocked removes every subscription of client and closes it.
// Caller holds h.mu.
func (h *Hub) dropClientLocked(client *Client) {
	for _, code := range client.subscriptions() {
		h.leaveLocked(client, code)
	}
	client.Close()
	metrics.WSConnections.Dec()
}

func marshal(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}
