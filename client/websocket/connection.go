package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gorilla "github.com/gorilla/websocket"
)

// Connect opens the transport with a Cookie header, performs the `connect 31
// ...` handshake, and starts the reader, processor, and heartbeat goroutines.
// Not reentrant: calling Connect while CONNECTING or CONNECTED fails.
// Grounded on the reference's EstablishConnection, generalized from Saxo's
// Bearer-header dial to this spec's Cookie-header dial.
func (c *Client) Connect(ctx context.Context, cookieHeader string) error {
	if !c.status.CompareAndSwap(int32(StatusDisconnected), int32(StatusConnecting)) {
		return fmt.Errorf("connect called while already %s", c.Status())
	}

	header := http.Header{}
	if cookieHeader != "" {
		header.Set("Cookie", cookieHeader)
	}

	dialer := gorilla.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout, TLSClientConfig: c.cfg.TLSClientConfig}
	conn, resp, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		c.status.Store(int32(StatusDisconnected))
		if resp != nil {
			return &TransportError{Message: fmt.Sprintf("websocket dial failed with status %d", resp.StatusCode), Cause: err}
		}
		return &TransportError{Message: "websocket dial failed", Cause: err}
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.incoming = make(chan string, 128)
	c.readerDone = make(chan struct{})
	c.processorDone = make(chan struct{})
	c.heartbeatDone = make(chan struct{})

	conn.SetCloseHandler(func(code int, text string) error {
		c.logger.Info("websocket close received", "code", code, "text", text)
		return nil
	})

	if err := c.writeText(connectFrame); err != nil {
		c.teardown()
		return &TransportError{Message: "failed to send connect handshake", Cause: err}
	}

	c.lastFrame.touch()
	c.status.Store(int32(StatusConnected))

	go c.readLoop()
	go c.processLoop()
	go c.heartbeatLoop()

	c.logger.Info("websocket connected", "url", c.url)
	return nil
}

// Disconnect cancels the heartbeat, removes all observers, closes the
// transport, clears per-subscription state, and transitions to
// DISCONNECTED. Safe to call when not connected.
func (c *Client) Disconnect() error {
	if c.Status() == StatusDisconnected {
		return nil
	}
	c.teardown()
	return nil
}

func (c *Client) teardown() {
	c.status.Store(int32(StatusDisconnected))

	if c.cancel != nil {
		c.cancel()
	}

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
		_ = conn.Close()
	}

	c.observersMu.Lock()
	c.messageObservers = make(map[int]MessageObserver)
	c.errorObservers = make(map[int]ErrorObserver)
	c.observersMu.Unlock()

	c.subs.clear()
}

// heartbeatLoop checks every HeartbeatPeriod that a frame has arrived within
// HeartbeatTimeout. On a stale connection it emits a transport error to every
// registered error observer and tears the connection down.
func (c *Client) heartbeatLoop() {
	defer close(c.heartbeatDone)

	ticker := time.NewTicker(c.cfg.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.lastFrame.since() >= c.cfg.HeartbeatTimeout {
				err := &TransportError{Message: fmt.Sprintf("connection timeout, no message received in %s", c.cfg.HeartbeatTimeout)}
				c.logger.Warn("heartbeat timeout", "error", err)
				c.broadcastError(err)
				c.teardown()
				return
			}
		}
	}
}
