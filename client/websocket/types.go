// Package websocket owns the single duplex connection to the streaming API:
// framing the text sub-protocol, allocating subscription ids, decoding delta
// updates against per-subscription previous payloads, and driving the
// heartbeat timer. It mirrors the reference adapter's package layout
// (connection manager, subscription bookkeeping, message dispatch split
// across files) with Trade Republic's text/delta wire format in place of
// Saxo's binary one.
package websocket

import (
	"sync"
	"time"
)

// Code identifies the kind of an inbound frame.
type Code byte

const (
	CodeAnswer   Code = 'A'
	CodeDelta    Code = 'D'
	CodeComplete Code = 'C'
	CodeError    Code = 'E'
)

// Frame is a single parsed inbound message: "<id> <code> <body>".
type Frame struct {
	ID   int
	Code Code
	Body string
}

// subscriptionState tracks one active subscription: the topic/payload it was
// opened with, and the last rendered text needed to apply the next delta.
type subscriptionState struct {
	topic   string
	payload map[string]interface{}

	mu             sync.Mutex
	lastAnswerText []byte
}

// MessageObserver receives every frame addressed to a subscription id.
type MessageObserver func(Frame)

// ErrorObserver receives transport-level errors; err may be a *TransportError
// with no particular subscription, or a framed error addressed to id.
type ErrorObserver func(id int, err error)

// Status is the connection lifecycle state.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// TransportError is a connection-level failure: a failed dial or handshake, a
// read error, a malformed frame, a frame that could not be processed, or a
// heartbeat timeout.
type TransportError struct {
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause == nil {
		return "transport error: " + e.Message
	}
	return "transport error: " + e.Message + ": " + e.Cause.Error()
}

func (e *TransportError) Unwrap() error { return e.Cause }

// lastFrameTracker tracks the last time any inbound frame arrived, guarded by
// its own mutex so the heartbeat checker and the processor goroutine never race.
type lastFrameTracker struct {
	mu sync.Mutex
	at time.Time
}

func (t *lastFrameTracker) touch() {
	t.mu.Lock()
	t.at = time.Now()
	t.mu.Unlock()
}

func (t *lastFrameTracker) since() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.at.IsZero() {
		return 0
	}
	return time.Since(t.at)
}
