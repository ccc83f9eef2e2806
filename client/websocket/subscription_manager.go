package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// subscriptionManager tracks every currently active subscription so inbound
// frames can be dispatched by id. There is no automatic reconnect: disconnect
// clears every subscription. It is the text/WS-native descendant of the reference's
// SubscriptionManager, which tracked the same kind of state but subscribed
// over HTTP POST rather than over the socket itself.
type subscriptionManager struct {
	mu   sync.RWMutex
	subs map[int]*subscriptionState

	nextID atomic.Uint32
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		subs: make(map[int]*subscriptionState),
	}
}

// allocate reserves the next monotonically increasing id and records the
// topic/payload, returning the id and the JSON body to send over the wire.
func (m *subscriptionManager) allocate(topic string, payload map[string]interface{}) (int, string, error) {
	if topic == "" {
		return 0, "", fmt.Errorf("empty topic")
	}

	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["type"] = topic

	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to marshal subscription payload: %w", err)
	}

	id := int(m.nextID.Add(1))

	m.mu.Lock()
	m.subs[id] = &subscriptionState{topic: topic, payload: payload}
	m.mu.Unlock()

	return id, string(encoded), nil
}

// drop removes a subscription's bookkeeping. Called on unsubscribe, on a
// Complete frame, and when a subscribe frame cannot be sent; disconnect uses
// clear instead.
func (m *subscriptionManager) drop(id int) {
	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
}

// get returns the state for id, if it is currently active.
func (m *subscriptionManager) get(id int) (*subscriptionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[id]
	return s, ok
}

// all returns a defensive copy of every active subscription, keyed by id.
func (m *subscriptionManager) all() map[int]*subscriptionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int]*subscriptionState, len(m.subs))
	for id, s := range m.subs {
		out[id] = s
	}
	return out
}

// clear drops every subscription's bookkeeping, used on disconnect.
func (m *subscriptionManager) clear() {
	m.mu.Lock()
	m.subs = make(map[int]*subscriptionState)
	m.mu.Unlock()
}
