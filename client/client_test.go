package traderepublic

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bjoelf/traderepublic-client/client/websocket/mocktesting"
)

func TestClient_LoginVerify2FAConnectsWebSocket(t *testing.T) {
	authServer := newMockAuthServer()
	defer authServer.Close()
	authServer.SetLoginResponse(http.StatusOK, "proc-1")
	authServer.SetVerify2FAResponse("/auth/web/login/proc-1/1234", http.StatusOK)

	wsServer := mocktesting.NewMockStreamingServer("tr_session=s3ss10n")
	defer wsServer.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = authServer.BaseURL()
	cfg.WebSocketURL = wsServer.URL()
	cfg.KeyStorePath = t.TempDir()
	cfg.HTTPRatePerSec = 1000
	cfg.HTTPMinBackoff = time.Millisecond
	cfg.TLSClientConfig = wsServer.HTTPClient().Transport.(*http.Transport).TLSClientConfig

	c, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Login(context.Background(), "+491234567890", "1234"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if c.Status() != StatusAwaiting2FA {
		t.Fatalf("status = %v, want AWAITING_2FA", c.Status())
	}

	if err := c.Verify2FA(context.Background(), "1234"); err != nil {
		t.Fatalf("Verify2FA: %v", err)
	}
	if c.Status() != StatusAuthenticated {
		t.Fatalf("status = %v, want AUTH", c.Status())
	}
	if !c.WS.IsConnected() {
		t.Fatal("expected WebSocket to be connected after Verify2FA")
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.Status() != StatusUnauthenticated {
		t.Fatalf("status = %v, want UNAUTH after Disconnect", c.Status())
	}
}

func TestClient_Verify2FARollsBackOnWebSocketFailure(t *testing.T) {
	authServer := newMockAuthServer()
	defer authServer.Close()
	authServer.SetLoginResponse(http.StatusOK, "proc-1")
	authServer.SetVerify2FAResponse("/auth/web/login/proc-1/1234", http.StatusOK)

	// Require a cookie the client will never send, forcing the WS dial to fail.
	wsServer := mocktesting.NewMockStreamingServer("this-cookie-will-never-match")
	defer wsServer.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = authServer.BaseURL()
	cfg.WebSocketURL = wsServer.URL()
	cfg.KeyStorePath = t.TempDir()
	cfg.HTTPRatePerSec = 1000
	cfg.HTTPMinBackoff = time.Millisecond
	cfg.TLSClientConfig = wsServer.HTTPClient().Transport.(*http.Transport).TLSClientConfig

	c, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Login(context.Background(), "+491234567890", "1234"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.Verify2FA(context.Background(), "1234"); err == nil {
		t.Fatal("expected Verify2FA to fail when the WebSocket dial is rejected")
	}
	if c.Status() != StatusUnauthenticated {
		t.Fatalf("status = %v, want UNAUTH after rollback", c.Status())
	}
}
