package websocket

import (
	"encoding/json"
	"fmt"

	gorilla "github.com/gorilla/websocket"
)

// readLoop is the single reader goroutine draining the gorilla connection. It
// never parses frames itself — it only hands raw text to the processor over
// a buffered channel, following the reference's reader/processor split so a
// slow consumer never blocks the socket read.
func (c *Client) readLoop() {
	defer close(c.readerDone)

	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				c.logger.Warn("websocket read error", "error", err)
			}
			c.broadcastError(&TransportError{Message: "connection closed", Cause: err})
			go c.teardown()
			return
		}

		select {
		case c.incoming <- string(data):
		case <-c.ctx.Done():
			return
		}
	}
}

// processLoop is the single processor goroutine: it parses each raw message
// off the incoming channel and dispatches it.
func (c *Client) processLoop() {
	defer close(c.processorDone)

	for {
		select {
		case <-c.ctx.Done():
			return
		case raw := <-c.incoming:
			c.lastFrame.touch()
			c.dispatch(raw)
		}
	}
}

func (c *Client) dispatch(raw string) {
	frame, err := ParseFrame(raw)
	if err != nil {
		c.logger.Warn("received malformed frame", "error", err, "raw", raw)
		c.broadcastError(&TransportError{Message: "malformed frame", Cause: err})
		return
	}

	state, active := c.subs.get(frame.ID)
	if !active {
		c.logger.Debug("dropping frame for unknown subscription", "id", frame.ID, "code", string(frame.Code))
		return
	}

	switch frame.Code {
	case CodeAnswer:
		if err := c.storeAndParse(state, []byte(frame.Body)); err != nil {
			c.emitTransportError(frame.ID, err)
			return
		}
		c.emitMessage(frame)

	case CodeDelta:
		state.mu.Lock()
		previous := state.lastAnswerText
		state.mu.Unlock()

		if previous == nil {
			c.emitTransportError(frame.ID, fmt.Errorf("delta with no base"))
			return
		}

		rendered, err := ApplyDelta(previous, frame.Body)
		if err != nil {
			c.emitTransportError(frame.ID, err)
			return
		}
		if err := c.storeAndParse(state, rendered); err != nil {
			c.emitTransportError(frame.ID, err)
			return
		}
		c.emitMessage(Frame{ID: frame.ID, Code: frame.Code, Body: string(rendered)})

	case CodeComplete:
		state.mu.Lock()
		state.lastAnswerText = nil
		state.mu.Unlock()
		c.emitMessage(frame)
		c.subs.drop(frame.ID)

	case CodeError:
		c.emitMessage(frame)
	}
}

// storeAndParse validates that body is well-formed JSON before storing it as
// the subscription's new previous text; a parse failure is a transport-level
// error for this id.
func (c *Client) storeAndParse(state *subscriptionState, body []byte) error {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("failed to parse message body as JSON: %w", err)
	}

	state.mu.Lock()
	state.lastAnswerText = body
	state.mu.Unlock()
	return nil
}

func (c *Client) emitMessage(frame Frame) {
	c.observersMu.Lock()
	observer, ok := c.messageObservers[frame.ID]
	c.observersMu.Unlock()
	if ok {
		observer(frame)
	}
}

func (c *Client) emitTransportError(id int, cause error) {
	c.emitError(id, &TransportError{Message: "frame processing failed", Cause: cause})
}

func (c *Client) emitError(id int, err error) {
	c.observersMu.Lock()
	observer, ok := c.errorObservers[id]
	c.observersMu.Unlock()
	if ok {
		observer(id, err)
	}
}

// broadcastError surfaces a connection-wide transport error (heartbeat
// timeout, read error) to every currently registered error observer, per the
// design's "transport errors surface to all currently pending
// subscribeAndWait calls" propagation policy.
func (c *Client) broadcastError(err error) {
	c.observersMu.Lock()
	observers := make([]ErrorObserver, 0, len(c.errorObservers))
	ids := make([]int, 0, len(c.errorObservers))
	for id, observer := range c.errorObservers {
		observers = append(observers, observer)
		ids = append(ids, id)
	}
	c.observersMu.Unlock()

	for i, observer := range observers {
		observer(ids[i], err)
	}
}
