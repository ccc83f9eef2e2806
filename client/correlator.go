package traderepublic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bjoelf/traderepublic-client/client/websocket"
)

// Validator inspects a raw Answer payload and returns a typed value, or an
// error if the payload does not match what the caller expected. This is the
// "capability" the design's validator-polymorphism note describes: any
// func(json.RawMessage) (T, error) suffices, whether hand-written or
// generated.
type Validator[T any] func(raw json.RawMessage) (T, error)

// Correlator turns the WebSocket manager's async subscribe/observe model
// into one-shot typed calls: subscribeAndWait subscribes, waits for the
// first matching Answer or Error frame (or a timeout, or a transport
// error), validates it, and always unsubscribes on the way out.
type Correlator struct {
	ws     *websocket.Client
	auth   *AuthController
	logger *slog.Logger
	cfg    Config
}

// NewCorrelator builds a correlator over ws, using auth to gate every call on
// a valid session.
func NewCorrelator(ws *websocket.Client, auth *AuthController, cfg Config, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{ws: ws, auth: auth, logger: logger, cfg: cfg}
}

// SubscribeAndWait implements the design's §4.6 algorithm generically over T.
// A zero timeout uses the configured default.
//
// Observers are registered immediately after Subscribe returns its id rather
// than before the call, as the design's step ordering suggests: no server
// frame can be addressed to an id that has not yet been sent in a subscribe
// frame, so the two orderings are observably identical, and registering by
// id avoids a shared placeholder key that concurrent calls would otherwise
// collide on.
func SubscribeAndWait[T any](ctx context.Context, c *Correlator, topic string, payload map[string]interface{}, validate Validator[T], timeout time.Duration) (T, error) {
	var zero T

	// callID exists purely for log correlation across a call's subscribe,
	// answer/error, and cleanup lines; it never goes on the wire.
	callID := uuid.NewString()

	if err := c.auth.EnsureAuthenticated(ctx); err != nil {
		return zero, err
	}

	if timeout <= 0 {
		timeout = c.cfg.SubscribeAndWaitDefaultTimeout
	}

	type outcome struct {
		value T
		err   error
	}
	resultCh := make(chan outcome, 1)

	var once sync.Once
	resolve := func(value T, err error) {
		once.Do(func() {
			resultCh <- outcome{value: value, err: err}
		})
	}

	onMessage := func(frame websocket.Frame) {
		switch frame.Code {
		case websocket.CodeAnswer:
			value, err := validate(json.RawMessage(frame.Body))
			if err != nil {
				resolve(zero, &ValidationError{Topic: topic})
				return
			}
			resolve(value, nil)
		case websocket.CodeError:
			resolve(zero, requestErrorFromPayload(topic, frame.Body))
		case websocket.CodeDelta, websocket.CodeComplete:
			// Ignored for request/response semantics.
		}
	}

	onError := func(_ int, err error) {
		resolve(zero, err)
	}

	if topic == "" {
		return zero, &ConfigError{Message: "empty topic"}
	}
	if _, err := json.Marshal(payload); err != nil {
		return zero, &ConfigError{Message: fmt.Sprintf("malformed %s payload: %v", topic, err)}
	}

	id, err := c.ws.Subscribe(topic, payload)
	if err != nil {
		return zero, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	c.logger.Debug("subscribe_and_wait started", "call_id", callID, "topic", topic, "sub_id", id)

	cleanup := func() {
		c.ws.RemoveObservers(id)
		if err := c.ws.Unsubscribe(id); err != nil {
			c.logger.Debug("unsubscribe failed, ignoring", "call_id", callID, "id", id, "error", err)
		}
	}
	defer cleanup()

	c.ws.RegisterObservers(id, onMessage, onError)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		return result.value, result.err
	case <-timer.C:
		return zero, &TimeoutError{Topic: topic}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

type serverErrorBody struct {
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage"`
}

func requestErrorFromPayload(topic string, body string) error {
	var parsed serverErrorBody
	msg := "API error"
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if parsed.Message != "" {
			msg = parsed.Message
		} else if parsed.ErrorMessage != "" {
			msg = parsed.ErrorMessage
		}
	}
	return &RequestError{Topic: topic, Message: msg}
}
