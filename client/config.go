package traderepublic

import (
	"crypto/tls"
	"os"
	"time"
)

// Environment labels the deployment a Config targets. BaseURL and
// WebSocketURL are set independently of it.
type Environment string

const (
	// EnvironmentLive points at the production API.
	EnvironmentLive Environment = "live"
	// EnvironmentMock labels a configuration aimed at a locally running mock
	// server.
	EnvironmentMock Environment = "mock"
)

// Config holds every tunable knob this package exposes. DefaultConfig returns
// one with every knob set to its default; nothing fills in zero-value fields
// of a Config built by hand.
type Config struct {
	Environment  Environment
	BaseURL      string
	WebSocketURL string

	SessionDuration      time.Duration
	SessionRefreshBuffer time.Duration

	HTTPTimeout       time.Duration
	HTTPRatePerSec    float64
	HTTPRetries       int
	HTTPMinBackoff    time.Duration
	HTTPMaxBackoff    time.Duration
	HTTPBackoffFactor float64

	WSHeartbeatPeriod  time.Duration
	WSHeartbeatTimeout time.Duration

	SubscribeAndWaitDefaultTimeout time.Duration

	KeyStorePath string

	// TLSClientConfig overrides the WebSocket dialer's TLS trust store. Left
	// nil in production; tests point it at a mock server's self-signed
	// certificate.
	TLSClientConfig *tls.Config
}

// DefaultConfig returns the configuration described by the design notes,
// pointed at the production host.
func DefaultConfig() Config {
	return Config{
		Environment:  EnvironmentLive,
		BaseURL:      "https://api.traderepublic.com",
		WebSocketURL: "wss://api.traderepublic.com",

		SessionDuration:      290 * time.Second,
		SessionRefreshBuffer: 30 * time.Second,

		HTTPTimeout:       10 * time.Second,
		HTTPRatePerSec:    1,
		HTTPRetries:       3,
		HTTPMinBackoff:    1 * time.Second,
		HTTPMaxBackoff:    10 * time.Second,
		HTTPBackoffFactor: 2,

		WSHeartbeatPeriod:  20 * time.Second,
		WSHeartbeatTimeout: 40 * time.Second,

		SubscribeAndWaitDefaultTimeout: 30 * time.Second,

		KeyStorePath: "data",
	}
}

// LoadConfig builds a Config from DefaultConfig, overridden by environment
// variables. It follows the same env-var-driven shape as the reference
// adapter's LoadTestConfig: TR_ENV sets the Environment label (it does not
// change the URLs), TR_BASE_URL/TR_WEBSOCKET_URL override hosts directly (used by the mock
// servers in tests), and TR_KEY_STORE_PATH overrides where key material is
// persisted.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if env := os.Getenv("TR_ENV"); env != "" {
		cfg.Environment = Environment(env)
	}
	if base := os.Getenv("TR_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	if wsURL := os.Getenv("TR_WEBSOCKET_URL"); wsURL != "" {
		cfg.WebSocketURL = wsURL
	}
	if path := os.Getenv("TR_KEY_STORE_PATH"); path != "" {
		cfg.KeyStorePath = path
	}

	return cfg
}

// IsIntegrationTestEnabled mirrors the reference's integration-test gate: it
// reports true unless TR_SKIP_INTEGRATION or TR_USE_MOCKS is set to "true".
func IsIntegrationTestEnabled() bool {
	if os.Getenv("TR_SKIP_INTEGRATION") == "true" {
		return false
	}
	return os.Getenv("TR_USE_MOCKS") != "true"
}
