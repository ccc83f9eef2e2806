package traderepublic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// AuthStatus is the authentication state machine's current phase.
type AuthStatus int32

const (
	StatusUnauthenticated AuthStatus = iota
	StatusAwaiting2FA
	StatusAuthenticated
)

func (s AuthStatus) String() string {
	switch s {
	case StatusAwaiting2FA:
		return "AWAITING_2FA"
	case StatusAuthenticated:
		return "AUTH"
	default:
		return "UNAUTH"
	}
}

// AuthController drives the {UNAUTH, AWAITING_2FA, AUTH} state machine:
// login, 2FA verification, and session refresh, with a single-flight mutex
// guarding concurrent refreshes. It is the phone+PIN+2FA+cookie descendant of
// the reference's SaxoAuthClient — the token caching/locking architecture
// (tokenMutex plus double-checked locking around getToken/getValidToken) is
// kept, generalized from an OAuth2 bearer token to a rendered Cookie header.
type AuthController struct {
	cfg     Config
	baseURL string
	http    *rateLimitedHTTPClient
	keys    *KeyStore
	cookies *CookieJar
	logger  *slog.Logger

	mu               sync.Mutex
	status           AuthStatus
	processID        string
	phoneNumber      string
	sessionExpiresAt time.Time
	keyPair          *KeyPair

	refreshMu       sync.Mutex
	refreshInFlight chan struct{}
	refreshErr      error
}

// NewAuthController builds a controller pointed at cfg.BaseURL, using keys
// for device registration.
func NewAuthController(cfg Config, keys *KeyStore, logger *slog.Logger) *AuthController {
	if logger == nil {
		logger = slog.Default()
	}
	host := apiHost(cfg.BaseURL)
	return &AuthController{
		cfg:     cfg,
		baseURL: cfg.BaseURL,
		http:    newRateLimitedHTTPClient(nil, cfg, logger),
		keys:    keys,
		cookies: NewCookieJar(host),
		logger:  logger,
	}
}

func apiHost(baseURL string) string {
	host := strings.TrimPrefix(baseURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	if idx := strings.IndexByte(host, '/'); idx >= 0 {
		host = host[:idx]
	}
	return host
}

// Status returns the current phase.
func (a *AuthController) Status() AuthStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// CookieHeader returns the currently rendered Cookie header.
func (a *AuthController) CookieHeader() string {
	return a.cookies.Header()
}

type loginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Pin         string `json:"pin"`
}

type loginResponse struct {
	ProcessID string `json:"processId"`
}

// Login POSTs {phoneNumber, pin} to /auth/web/login. A successful
// {processId} response moves the state machine to AWAITING_2FA.
func (a *AuthController) Login(ctx context.Context, phoneNumber, pin string) error {
	body, err := json.Marshal(loginRequest{PhoneNumber: phoneNumber, Pin: pin})
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}

	headers := http.Header{"Content-Type": []string{"application/json"}}
	resp, err := a.http.do(ctx, http.MethodPost, a.baseURL+"/auth/web/login", headers, body)
	if err != nil {
		return &AuthenticationError{Message: err.Error()}
	}

	var loginResp loginResponse
	if err := json.Unmarshal(resp.Body, &loginResp); err != nil || loginResp.ProcessID == "" {
		return &AuthenticationError{Message: "login response carried no processId"}
	}

	a.mu.Lock()
	a.processID = loginResp.ProcessID
	a.phoneNumber = phoneNumber
	a.status = StatusAwaiting2FA
	a.mu.Unlock()

	a.logger.Info("login succeeded, awaiting 2FA", "process_id", loginResp.ProcessID)
	return nil
}

type verify2FARequest struct {
	DeviceKey string `json:"deviceKey"`
}

// Verify2FA POSTs {deviceKey} to /auth/web/login/{processId}/{code}. On
// success it parses Set-Cookie headers, sets sessionExpiresAt, and moves to
// AUTH. It does not itself open the WebSocket — callers compose that with
// CookieHeader() after this returns, matching the design's note that the
// manager knows nothing about cookies or auth.
func (a *AuthController) Verify2FA(ctx context.Context, code string) error {
	a.mu.Lock()
	processID := a.processID
	a.mu.Unlock()

	if processID == "" {
		return &AuthenticationError{Message: "2FA verification attempted with no active login process"}
	}

	if a.keyPair == nil {
		kp, err := a.keys.EnsureKeyPair()
		if err != nil {
			return fmt.Errorf("failed to initialize device key: %w", err)
		}
		a.keyPair = kp
	}

	deviceKey, err := PublicKeyBase64(a.keyPair)
	if err != nil {
		return fmt.Errorf("failed to encode device key: %w", err)
	}

	body, err := json.Marshal(verify2FARequest{DeviceKey: deviceKey})
	if err != nil {
		return fmt.Errorf("failed to build 2FA request: %w", err)
	}

	url := fmt.Sprintf("%s/auth/web/login/%s/%s", a.baseURL, processID, code)
	headers := http.Header{"Content-Type": []string{"application/json"}}

	httpResp, reqErr := a.doRaw(ctx, http.MethodPost, url, headers, body)
	if reqErr != nil {
		return &AuthenticationError{Message: reqErr.Error()}
	}

	stored := a.cookies.ParseSetCookies(httpResp)
	if stored == 0 {
		return &AuthenticationError{Message: "no cookies received"}
	}

	a.mu.Lock()
	a.sessionExpiresAt = time.Now().Add(a.cfg.SessionDuration)
	a.status = StatusAuthenticated
	a.mu.Unlock()

	a.logger.Info("2FA verified, session established")
	return nil
}

// doRaw performs the rate-limited/retrying request and also returns an
// *http.Response shell so the cookie jar can read Set-Cookie headers; the
// rate-limited client normally returns only a decoded httpResponse, so this
// adapts its header map into the shape CookieJar.ParseSetCookies expects.
func (a *AuthController) doRaw(ctx context.Context, method, url string, headers http.Header, body []byte) (*http.Response, error) {
	resp, err := a.http.do(ctx, method, url, headers, body)
	if err != nil {
		return nil, err
	}
	return &http.Response{StatusCode: resp.StatusCode, Header: resp.Header}, nil
}

// RefreshSession performs a GET /auth/web/session carrying the current
// cookie header, replacing the jar if new cookies arrived and resetting
// sessionExpiresAt.
func (a *AuthController) RefreshSession(ctx context.Context) error {
	headers := http.Header{"Cookie": []string{a.cookies.Header()}}

	httpResp, err := a.doRaw(ctx, http.MethodGet, a.baseURL+"/auth/web/session", headers, nil)
	if err != nil {
		return &AuthenticationError{Message: fmt.Sprintf("session refresh failed: %v", err)}
	}

	if stored := a.cookies.ParseSetCookies(httpResp); stored == 0 {
		a.logger.Debug("session refresh returned no new cookies, keeping existing jar")
	}

	a.mu.Lock()
	a.sessionExpiresAt = time.Now().Add(a.cfg.SessionDuration)
	a.mu.Unlock()

	return nil
}

// EnsureValidSession fails if not AUTH; if the session is within its refresh
// buffer of expiring, it runs a refresh. Concurrent callers observing an
// expiring session share a single in-flight refresh via the refreshMu/
// refreshInFlight pair, the same double-checked-locking shape the reference
// uses around its token cache.
func (a *AuthController) EnsureValidSession(ctx context.Context) error {
	a.mu.Lock()
	status := a.status
	expiresAt := a.sessionExpiresAt
	a.mu.Unlock()

	if status != StatusAuthenticated {
		return &AuthenticationError{Message: "not authenticated"}
	}

	if time.Now().Before(expiresAt.Add(-a.cfg.SessionRefreshBuffer)) {
		return nil
	}

	return a.singleFlightRefresh(ctx)
}

func (a *AuthController) singleFlightRefresh(ctx context.Context) error {
	a.refreshMu.Lock()
	if a.refreshInFlight != nil {
		waitCh := a.refreshInFlight
		a.refreshMu.Unlock()
		select {
		case <-waitCh:
			a.refreshMu.Lock()
			err := a.refreshErr
			a.refreshMu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	a.refreshInFlight = done
	a.refreshMu.Unlock()

	err := a.RefreshSession(ctx)

	a.refreshMu.Lock()
	a.refreshErr = err
	a.refreshInFlight = nil
	a.refreshMu.Unlock()
	close(done)

	return err
}

// Disconnect transitions the controller back to UNAUTH, clearing session
// state. Safe to call regardless of current status.
func (a *AuthController) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusUnauthenticated
	a.processID = ""
	a.sessionExpiresAt = time.Time{}
}

// EnsureAuthenticated is the "lazy authentication for features" helper: if
// AUTH, it ensures the session is fresh and returns nil. If AWAITING_2FA, it
// raises a TwoFactorRequiredError carrying the masked phone number. If
// UNAUTH, initializing keys and logging in is the caller's responsibility
// (no stored phone/pin to retry with here), so it raises TwoFactorRequired
// only after a caller-driven Login has already moved the state to
// AWAITING_2FA; called from UNAUTH it fails with AuthenticationError
// instructing the caller to call Login first.
func (a *AuthController) EnsureAuthenticated(ctx context.Context) error {
	switch a.Status() {
	case StatusAuthenticated:
		return a.EnsureValidSession(ctx)
	case StatusAwaiting2FA:
		return &TwoFactorRequiredError{MaskedPhone: maskPhone(a.phoneNumber)}
	default:
		return &AuthenticationError{Message: "not logged in: call Login first"}
	}
}

// maskPhone renders all but the last two characters of a phone number as
// asterisks, e.g. "+491234567890" -> "***********90".
func maskPhone(phone string) string {
	if len(phone) <= 2 {
		return phone
	}
	visible := phone[len(phone)-2:]
	masked := make([]byte, len(phone)-2)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + visible
}
