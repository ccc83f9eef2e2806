package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gorilla "github.com/gorilla/websocket"
)

// Config holds the websocket manager's own tunables, lifted out of the
// top-level client.Config so this package has no dependency on it.
type Config struct {
	HandshakeTimeout time.Duration
	HeartbeatPeriod  time.Duration
	HeartbeatTimeout time.Duration

	// TLSClientConfig is reused verbatim by the dialer. The reference
	// adapter reuses the auth client's own HTTP transport TLS config when
	// dialing, so tests against a self-signed httptest.NewTLSServer work
	// without a separate certificate trust step; this field serves the
	// same purpose here.
	TLSClientConfig *tls.Config
}

// Client owns exactly one duplex connection to the streaming endpoint: it
// frames the text sub-protocol, allocates subscription ids, decodes delta
// updates, and drives a heartbeat timer — the direct descendant of the
// reference's SaxoWebSocketClient, generalized from Saxo's binary framing and
// HTTP-POST subscriptions to this spec's text frames and WS-native
// subscribe/unsubscribe.
type Client struct {
	url    string
	cfg    Config
	logger *slog.Logger

	status atomic.Int32

	connMu sync.Mutex // serializes writes; gorilla connections are not safe for concurrent writers
	conn   *gorilla.Conn

	subs *subscriptionManager

	observersMu      sync.Mutex
	messageObservers map[int]MessageObserver
	errorObservers   map[int]ErrorObserver

	lastFrame lastFrameTracker

	ctx    context.Context
	cancel context.CancelFunc

	incoming chan string

	readerDone    chan struct{}
	processorDone chan struct{}
	heartbeatDone chan struct{}
}

// NewClient creates a Client for the given websocket URL (scheme ws/wss).
func NewClient(url string, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:              url,
		cfg:              cfg,
		logger:           logger,
		subs:             newSubscriptionManager(),
		messageObservers: make(map[int]MessageObserver),
		errorObservers:   make(map[int]ErrorObserver),
	}
}

// Status returns the current connection lifecycle state.
func (c *Client) Status() Status {
	return Status(c.status.Load())
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// Subscribe allocates a new subscription id, sends "sub <id> <json>" over the
// open connection, and returns the id. Sends are only permitted while
// CONNECTED; otherwise this fails synchronously with "not connected".
func (c *Client) Subscribe(topic string, payload map[string]interface{}) (int, error) {
	if !c.IsConnected() {
		return 0, &notConnectedError{}
	}

	id, body, err := c.subs.allocate(topic, payload)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate subscription: %w", err)
	}

	if err := c.writeText(subscribeFrame(id, body)); err != nil {
		c.subs.drop(id)
		return 0, fmt.Errorf("failed to send subscribe frame: %w", err)
	}

	c.logger.Debug("sent subscribe frame", "id", id, "topic", topic)
	return id, nil
}

// Unsubscribe sends "unsub <id>" and drops the subscription's bookkeeping
// regardless of whether the send succeeds — unsubscribe is always
// best-effort from the caller's perspective.
func (c *Client) Unsubscribe(id int) error {
	defer c.subs.drop(id)

	if !c.IsConnected() {
		return &notConnectedError{}
	}
	if err := c.writeText(unsubscribeFrame(id)); err != nil {
		return fmt.Errorf("failed to send unsubscribe frame: %w", err)
	}
	c.logger.Debug("sent unsubscribe frame", "id", id)
	return nil
}

// RegisterObservers installs the message/error callbacks for a subscription
// id. Only one pair may be registered per id at a time; a second call
// replaces the first.
func (c *Client) RegisterObservers(id int, onMessage MessageObserver, onError ErrorObserver) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	if onMessage != nil {
		c.messageObservers[id] = onMessage
	}
	if onError != nil {
		c.errorObservers[id] = onError
	}
}

// RemoveObservers uninstalls both callbacks for id. Safe to call multiple
// times or for an id that was never registered.
func (c *Client) RemoveObservers(id int) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	delete(c.messageObservers, id)
	delete(c.errorObservers, id)
}

func (c *Client) writeText(msg string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return &notConnectedError{}
	}
	return c.conn.WriteMessage(gorilla.TextMessage, []byte(msg))
}

type notConnectedError struct{}

func (e *notConnectedError) Error() string { return "not connected" }
