package websocket

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bjoelf/traderepublic-client/client/websocket/mocktesting"
)

func testConfig(server *mocktesting.MockStreamingServer) Config {
	var tlsConfig = server.HTTPClient().Transport.(*http.Transport).TLSClientConfig
	return Config{
		HandshakeTimeout: 2 * time.Second,
		HeartbeatPeriod:  20 * time.Millisecond,
		HeartbeatTimeout: 60 * time.Millisecond,
		TLSClientConfig:  tlsConfig,
	}
}

func TestClient_ConnectSendsHandshakeFrame(t *testing.T) {
	server := mocktesting.NewMockStreamingServer("")
	defer server.Close()

	c := NewClient(server.URL(), testConfig(server), nil)
	if err := c.Connect(context.Background(), "session=abc"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	waitFor(t, func() bool { return len(server.Received()) >= 1 })

	got := server.Received()[0]
	if !strings.HasPrefix(got, "connect 31 ") {
		t.Fatalf("expected connect handshake, got %q", got)
	}
}

func TestClient_ConnectRejectsWrongCookie(t *testing.T) {
	server := mocktesting.NewMockStreamingServer("session=right")
	defer server.Close()

	c := NewClient(server.URL(), testConfig(server), nil)
	err := c.Connect(context.Background(), "session=wrong")
	if err == nil {
		c.Disconnect()
		t.Fatal("expected connect to fail with wrong cookie")
	}
}

func TestClient_ConnectNotReentrant(t *testing.T) {
	server := mocktesting.NewMockStreamingServer("")
	defer server.Close()

	c := NewClient(server.URL(), testConfig(server), nil)
	if err := c.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	if err := c.Connect(context.Background(), ""); err == nil {
		t.Fatal("expected second connect to fail")
	}
}

func TestClient_SubscribeIDsAreMonotonicAndUnique(t *testing.T) {
	server := mocktesting.NewMockStreamingServer("")
	defer server.Close()

	c := NewClient(server.URL(), testConfig(server), nil)
	if err := c.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	id1, err := c.Subscribe("ticker", map[string]interface{}{"id": "DE1"})
	if err != nil {
		t.Fatalf("subscribe 1: %v", err)
	}
	if err := c.Unsubscribe(id1); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	id2, err := c.Subscribe("ticker", map[string]interface{}{"id": "DE2"})
	if err != nil {
		t.Fatalf("subscribe 2: %v", err)
	}

	if id2 <= id1 {
		t.Fatalf("expected strictly increasing ids, got %d then %d", id1, id2)
	}
}

func TestClient_SubscribeSendsFrame(t *testing.T) {
	server := mocktesting.NewMockStreamingServer("")
	defer server.Close()

	c := NewClient(server.URL(), testConfig(server), nil)
	if err := c.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	if _, err := c.Subscribe("ticker", map[string]interface{}{"id": "DE0007164600.LSX"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	waitFor(t, func() bool { return len(server.Received()) >= 2 })

	frames := server.Received()
	last := frames[len(frames)-1]
	if !strings.HasPrefix(last, "sub ") {
		t.Fatalf("expected sub frame, got %q", last)
	}
	if !strings.Contains(last, `"type":"ticker"`) || !strings.Contains(last, "DE0007164600.LSX") {
		t.Fatalf("unexpected subscribe frame: %q", last)
	}
}

func TestClient_AnswerThenDeltaDispatchesRenderedPayload(t *testing.T) {
	server := mocktesting.NewMockStreamingServer("")
	defer server.Close()

	c := NewClient(server.URL(), testConfig(server), nil)
	if err := c.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	id, err := c.Subscribe("ticker", nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	msgs := make(chan string, 4)
	c.RegisterObservers(id, func(f Frame) { msgs <- f.Body }, func(int, error) {})

	if err := server.SendAnswer(id, `{"price":100}`); err != nil {
		t.Fatalf("send answer: %v", err)
	}
	if got := <-msgs; got != `{"price":100}` {
		t.Fatalf("got %q", got)
	}

	if err := server.SendDelta(id, "=10\t+50}"); err != nil {
		t.Fatalf("send delta: %v", err)
	}
	if got := <-msgs; got != `{"price":150}` {
		t.Fatalf("got %q", got)
	}
}

func TestClient_DeltaWithNoBaseEmitsTransportError(t *testing.T) {
	server := mocktesting.NewMockStreamingServer("")
	defer server.Close()

	c := NewClient(server.URL(), testConfig(server), nil)
	if err := c.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	id, err := c.Subscribe("ticker", nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	errs := make(chan error, 1)
	c.RegisterObservers(id, func(Frame) {}, func(_ int, err error) { errs <- err })

	if err := server.SendDelta(id, "=1"); err != nil {
		t.Fatalf("send delta: %v", err)
	}

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "delta with no base") {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected transport error, got none")
	}
}

func TestClient_HeartbeatTimeoutDisconnects(t *testing.T) {
	server := mocktesting.NewMockStreamingServer("")
	defer server.Close()

	cfg := testConfig(server)
	c := NewClient(server.URL(), cfg, nil)
	if err := c.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	waitFor(t, func() bool { return c.Status() == StatusDisconnected })
}

func TestClient_SubscribeFailsWhenNotConnected(t *testing.T) {
	c := NewClient("wss://example.invalid", Config{}, nil)
	if _, err := c.Subscribe("ticker", nil); err == nil {
		t.Fatal("expected error subscribing without a connection")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
