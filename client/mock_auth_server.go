package traderepublic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// mockResponse is a configured canned response for one method+path key,
// following the reference mock server's response-registry pattern.
type mockResponse struct {
	StatusCode int
	Body       interface{}
	Cookies    []*http.Cookie
}

// mockRequest captures one inbound request for test assertions.
type mockRequest struct {
	Method string
	Path   string
	Body   string
}

// mockAuthServer is an httptest-backed stand-in for the login/2FA/session
// endpoints, grounded on the reference's MockSaxoServer (response registry
// keyed by "METHOD PATH", plus a captured request log) and re-pointed at
// this spec's three auth endpoints instead of Saxo's OAuth2 token/orders
// endpoints.
type mockAuthServer struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]mockResponse
	requests  []mockRequest
}

func newMockAuthServer() *mockAuthServer {
	m := &mockAuthServer{responses: make(map[string]mockResponse)}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	m.setDefaults()
	return m
}

func (m *mockAuthServer) Close() { m.server.Close() }

func (m *mockAuthServer) BaseURL() string { return m.server.URL }

func (m *mockAuthServer) Requests() []mockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// SetLoginResponse configures the response to POST /auth/web/login.
func (m *mockAuthServer) SetLoginResponse(statusCode int, processID string) {
	m.set(http.MethodPost, "/auth/web/login", mockResponse{
		StatusCode: statusCode,
		Body:       map[string]string{"processId": processID},
	})
}

// SetVerify2FAResponse configures the response to POST
// /auth/web/login/{processId}/{code}, attaching a session cookie on success.
func (m *mockAuthServer) SetVerify2FAResponse(path string, statusCode int) {
	var cookies []*http.Cookie
	if statusCode < 300 {
		cookies = []*http.Cookie{{Name: "tr_session", Value: "s3ss10n"}}
	}
	m.set(http.MethodPost, path, mockResponse{StatusCode: statusCode, Body: map[string]string{}, Cookies: cookies})
}

// SetSessionRefreshResponse configures the response to GET /auth/web/session.
func (m *mockAuthServer) SetSessionRefreshResponse(statusCode int) {
	var cookies []*http.Cookie
	if statusCode < 300 {
		cookies = []*http.Cookie{{Name: "tr_session", Value: "refreshed"}}
	}
	m.set(http.MethodGet, "/auth/web/session", mockResponse{StatusCode: statusCode, Body: map[string]string{}, Cookies: cookies})
}

func (m *mockAuthServer) set(method, path string, resp mockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key(method, path)] = resp
}

func key(method, path string) string { return fmt.Sprintf("%s %s", method, path) }

func (m *mockAuthServer) handle(w http.ResponseWriter, r *http.Request) {
	body := make([]byte, 0)
	if r.Body != nil {
		buf := make([]byte, r.ContentLength)
		n, _ := r.Body.Read(buf)
		body = buf[:n]
	}

	m.mu.Lock()
	m.requests = append(m.requests, mockRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	resp, ok := m.responses[key(r.Method, r.URL.Path)]
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "not found"})
		return
	}

	for _, c := range resp.Cookies {
		http.SetCookie(w, c)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != nil {
		json.NewEncoder(w).Encode(resp.Body)
	}
}

func (m *mockAuthServer) setDefaults() {
	m.SetLoginResponse(http.StatusOK, "proc-1")
	m.SetSessionRefreshResponse(http.StatusOK)
}
