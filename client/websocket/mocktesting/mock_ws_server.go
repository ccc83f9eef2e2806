// Package mocktesting provides a text-sub-protocol WebSocket test server,
// the descendant of the reference adapter's MockSaxoWebSocketServer adapted
// from Saxo's binary framing to this module's "<id> <code> <body>" frames.
package mocktesting

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// MockStreamingServer speaks the `connect 31 ...` / `sub <id> <json>` /
// `unsub <id>` text sub-protocol over a TLS test server, so a real
// gorilla.Dialer (via a client that trusts the test server's certificate)
// can connect exactly as it would in production.
type MockStreamingServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	receivedMu sync.Mutex
	received   []string // every client->server frame, in arrival order

	requireCookie string
}

// NewMockStreamingServer starts a TLS test server. If requireCookie is
// non-empty, connections whose Cookie header does not contain it are
// rejected with 401, mirroring the reference's Authorization-header check.
func NewMockStreamingServer(requireCookie string) *MockStreamingServer {
	m := &MockStreamingServer{
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:       make(map[*websocket.Conn]bool),
		requireCookie: requireCookie,
	}
	m.server = httptest.NewTLSServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the wss:// URL of the server.
func (m *MockStreamingServer) URL() string {
	return "wss" + strings.TrimPrefix(m.server.URL, "https")
}

// HTTPClient returns a client configured to trust this server's certificate,
// for dialers that need to reuse its TLS config.
func (m *MockStreamingServer) HTTPClient() *http.Client {
	return m.server.Client()
}

// Close shuts down the server and every connected client.
func (m *MockStreamingServer) Close() {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	for conn := range m.clients {
		conn.Close()
	}
	m.server.Close()
}

// Received returns every frame the server has read from any client, in
// arrival order.
func (m *MockStreamingServer) Received() []string {
	m.receivedMu.Lock()
	defer m.receivedMu.Unlock()
	out := make([]string, len(m.received))
	copy(out, m.received)
	return out
}

// Broadcast writes raw to every connected client as a text frame.
func (m *MockStreamingServer) Broadcast(raw string) error {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	for conn := range m.clients {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			return fmt.Errorf("failed to broadcast: %w", err)
		}
	}
	return nil
}

// SendAnswer is a convenience wrapper around Broadcast for "<id> A <body>".
func (m *MockStreamingServer) SendAnswer(id int, body string) error {
	return m.Broadcast(fmt.Sprintf("%d A %s", id, body))
}

// SendDelta is a convenience wrapper around Broadcast for "<id> D <delta>".
func (m *MockStreamingServer) SendDelta(id int, delta string) error {
	return m.Broadcast(fmt.Sprintf("%d D %s", id, delta))
}

// SendError is a convenience wrapper around Broadcast for "<id> E <body>".
func (m *MockStreamingServer) SendError(id int, body string) error {
	return m.Broadcast(fmt.Sprintf("%d E %s", id, body))
}

func (m *MockStreamingServer) handle(w http.ResponseWriter, r *http.Request) {
	if m.requireCookie != "" && !strings.Contains(r.Header.Get("Cookie"), m.requireCookie) {
		http.Error(w, "missing or invalid session cookie", http.StatusUnauthorized)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.clientsMu.Lock()
	m.clients[conn] = true
	m.clientsMu.Unlock()

	defer func() {
		m.clientsMu.Lock()
		delete(m.clients, conn)
		m.clientsMu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m.receivedMu.Lock()
		m.received = append(m.received, string(data))
		m.receivedMu.Unlock()
	}
}
