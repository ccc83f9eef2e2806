package traderepublic

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/bjoelf/traderepublic-client/client/websocket"
	"github.com/bjoelf/traderepublic-client/client/websocket/mocktesting"
)

// authenticatedController returns an AuthController already in the AUTH
// state, without driving a real login/2FA round trip, so correlator tests
// can focus on the subscribe/wait/cleanup behavior.
func authenticatedController(t *testing.T) *AuthController {
	t.Helper()
	server := newMockAuthServer()
	t.Cleanup(server.Close)
	server.SetLoginResponse(http.StatusOK, "proc-1")
	server.SetVerify2FAResponse("/auth/web/login/proc-1/1234", http.StatusOK)

	auth, _ := testAuthController(t, server)
	if err := auth.Login(context.Background(), "+491234567890", "1234"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := auth.Verify2FA(context.Background(), "1234"); err != nil {
		t.Fatalf("Verify2FA: %v", err)
	}
	return auth
}

func connectedWSClient(t *testing.T) (*websocket.Client, *mocktesting.MockStreamingServer) {
	t.Helper()
	server := mocktesting.NewMockStreamingServer("")
	t.Cleanup(server.Close)

	cfg := websocket.Config{
		HandshakeTimeout: 2 * time.Second,
		HeartbeatPeriod:  time.Hour,
		HeartbeatTimeout: time.Hour,
		TLSClientConfig:  server.HTTPClient().Transport.(*http.Transport).TLSClientConfig,
	}
	ws := websocket.NewClient(server.URL(), cfg, nil)
	if err := ws.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { ws.Disconnect() })
	return ws, server
}

type tickerResult struct {
	Bid struct {
		Price float64 `json:"price"`
	} `json:"bid"`
}

func TestSubscribeAndWait_ResolvesOnAnswer(t *testing.T) {
	auth := authenticatedController(t)
	ws, server := connectedWSClient(t)
	cfg := DefaultConfig()
	corr := NewCorrelator(ws, auth, cfg, testLogger())

	validate := func(raw json.RawMessage) (tickerResult, error) {
		var r tickerResult
		err := json.Unmarshal(raw, &r)
		return r, err
	}

	resultCh := make(chan tickerResult, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := SubscribeAndWait(context.Background(), corr, "ticker", map[string]interface{}{"id": "US0378331005"}, validate, time.Second)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- r
	}()

	id := waitForSubscription(t, server)
	if err := server.SendAnswer(id, `{"bid":{"price":150.5}}`); err != nil {
		t.Fatalf("SendAnswer: %v", err)
	}

	select {
	case r := <-resultCh:
		if r.Bid.Price != 150.5 {
			t.Fatalf("bid price = %v, want 150.5", r.Bid.Price)
		}
	case err := <-errCh:
		t.Fatalf("SubscribeAndWait returned error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SubscribeAndWait result")
	}
}

func TestSubscribeAndWait_ResolvesOnError(t *testing.T) {
	auth := authenticatedController(t)
	ws, server := connectedWSClient(t)
	cfg := DefaultConfig()
	corr := NewCorrelator(ws, auth, cfg, testLogger())

	validate := func(raw json.RawMessage) (tickerResult, error) {
		var r tickerResult
		err := json.Unmarshal(raw, &r)
		return r, err
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := SubscribeAndWait(context.Background(), corr, "ticker", map[string]interface{}{"id": "bogus"}, validate, time.Second)
		errCh <- err
	}()

	id := waitForSubscription(t, server)
	if err := server.SendError(id, `{"message":"unknown instrument"}`); err != nil {
		t.Fatalf("SendError: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error")
		}
		if _, ok := err.(*RequestError); !ok {
			t.Fatalf("expected *RequestError, got %T: %v", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error result")
	}
}

func TestSubscribeAndWait_TimesOutWithNoResponse(t *testing.T) {
	auth := authenticatedController(t)
	ws, _ := connectedWSClient(t)
	cfg := DefaultConfig()
	corr := NewCorrelator(ws, auth, cfg, testLogger())

	validate := func(raw json.RawMessage) (tickerResult, error) {
		var r tickerResult
		err := json.Unmarshal(raw, &r)
		return r, err
	}

	_, err := SubscribeAndWait(context.Background(), corr, "ticker", nil, validate, 50*time.Millisecond)
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected *TimeoutError, got %T: %v", err, err)
	}
}

func TestSubscribeAndWait_UnsubscribesAfterTimeout(t *testing.T) {
	auth := authenticatedController(t)
	ws, server := connectedWSClient(t)
	cfg := DefaultConfig()
	corr := NewCorrelator(ws, auth, cfg, testLogger())

	validate := func(raw json.RawMessage) (tickerResult, error) {
		var r tickerResult
		err := json.Unmarshal(raw, &r)
		return r, err
	}

	_, _ = SubscribeAndWait(context.Background(), corr, "ticker", nil, validate, 30*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, frame := range server.Received() {
			if len(frame) > 6 && frame[:6] == "unsub " {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected an unsub frame to be sent after timeout")
}

// waitForSubscription polls the server's received frames for the first "sub
// <id> ..." line and returns its id.
func waitForSubscription(t *testing.T, server *mocktesting.MockStreamingServer) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, frame := range server.Received() {
			var id int
			if n, _ := sscanSubID(frame, &id); n {
				return id
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a subscribe frame")
	return 0
}

func sscanSubID(frame string, id *int) (bool, error) {
	if len(frame) < 4 || frame[:4] != "sub " {
		return false, nil
	}
	rest := frame[4:]
	end := 0
	for end < len(rest) && rest[end] != ' ' {
		end++
	}
	if end == 0 {
		return false, nil
	}
	n := 0
	for _, ch := range rest[:end] {
		if ch < '0' || ch > '9' {
			return false, nil
		}
		n = n*10 + int(ch-'0')
	}
	*id = n
	return true, nil
}
