package traderepublic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bjoelf/traderepublic-client/client/websocket"
)

// Client is the top-level handle feature services compose: it owns the key
// store, the auth/session controller, the WebSocket manager, and the request
// correlator, wiring them the way the reference adapter's
// CreateBrokerServices/CreateSaxoAuthClient constructors wire the auth
// client, HTTP client, and broker client together.
type Client struct {
	cfg    Config
	logger *slog.Logger

	Keys *KeyStore
	Auth *AuthController
	WS   *websocket.Client
	Corr *Correlator
}

// New builds a Client from cfg. It does not connect or authenticate; call
// Login then Verify2FA to do so.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	keys, err := NewKeyStore(cfg.KeyStorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key store: %w", err)
	}

	auth := NewAuthController(cfg, keys, logger)

	wsCfg := websocket.Config{
		HandshakeTimeout: 30 * time.Second,
		HeartbeatPeriod:  cfg.WSHeartbeatPeriod,
		HeartbeatTimeout: cfg.WSHeartbeatTimeout,
		TLSClientConfig:  cfg.TLSClientConfig,
	}
	ws := websocket.NewClient(cfg.WebSocketURL, wsCfg, logger)

	corr := NewCorrelator(ws, auth, cfg, logger)

	return &Client{cfg: cfg, logger: logger, Keys: keys, Auth: auth, WS: ws, Corr: corr}, nil
}

// Login starts the authentication state machine: POST phoneNumber/pin,
// landing in AWAITING_2FA on success.
func (c *Client) Login(ctx context.Context, phoneNumber, pin string) error {
	return c.Auth.Login(ctx, phoneNumber, pin)
}

// Verify2FA completes the 2FA challenge and, on success, opens the WebSocket
// using the cookie header the auth controller just composed — the one place
// cookies and the transport meet, per the design's note that the manager
// itself knows nothing about cookies or auth.
func (c *Client) Verify2FA(ctx context.Context, code string) error {
	if err := c.Auth.Verify2FA(ctx, code); err != nil {
		return err
	}

	if err := c.WS.Connect(ctx, c.Auth.CookieHeader()); err != nil {
		c.Auth.Disconnect()
		return err
	}

	return nil
}

// Disconnect tears down the WebSocket and reverts the auth controller to
// UNAUTH.
func (c *Client) Disconnect() error {
	err := c.WS.Disconnect()
	c.Auth.Disconnect()
	return err
}

// Status returns the current AuthStatus.
func (c *Client) Status() AuthStatus {
	return c.Auth.Status()
}
