package websocket

import (
	"sync"

	"github.com/dom/shared-calendar/internal/metrics"
)

// topic is the set of clients subscribed to one calendar. Sequence numbers
// are assigned and messages enqueued under mu, so every subscriber sees
// publishes in the same order.
type topic struct {
	shareCode string
	mu        sync.Mutex
	seq       int
	clients   map[*Client]struct{}
}

func newTopic(shareCode string) *topic {
	return &topic{
		shareCode: shareCode,
		clients:   make(map[*Client]struct{}),
	}
}

// publish stamps msg with the next sequence number and enqueues it to every
// subscriber. It returns the number of clients the message was dropped for.
func (t *topic) publish(msg *Message) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	msg.Seq = t.seq
	data, err := marshal(msg)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for client := range t.clients {
		if !client.trySend(data) {
			dropped++
		}
	}
	if dropped > 0 {
		metrics.DroppedMessagesTotal.Add(float64(dropped))
	}
	return dropped, nil
}

// add subscribes client and, when welcome is set, enqueues it to the client
// ahead of any later publish on the topic.
func (t *topic) add(client *Client, welcome *Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, already := t.clients[client]
	t.clients[client] = struct{}{}
	if welcome != nil {
		if data, err := marshal(welcome); err == nil {
			client.trySend(data)
		}
	}
	return !already
}

func (t *topic) remove(client *Client) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.clients[client]; !ok {
		return false
	}
	delete(t.clients, client)
	return true
}

func (t *topic) empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients) == 0
}
