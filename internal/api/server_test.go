package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netscope/internal/auth"
	"github.com/anstrom/netscope/internal/capture"
	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/discovery"
	"github.com/anstrom/netscope/internal/metrics"
	"github.com/anstrom/netscope/internal/portscan"
)

type mockDiscoverer struct {
	mock.Mock
}

func (m *mockDiscoverer) Stream(ctx context.Context, base string, low, high int,
	onHost func(discovery.HostResult)) ([]discovery.HostResult, error) {
	args := m.Called(ctx, base, low, high, onHost)
	hosts, _ := args.Get(0).([]discovery.HostResult)
	return hosts, args.Error(1)
}

type mockScanner struct {
	mock.Mock
}

func (m *mockScanner) Stream(ctx context.Context, target string, ports []int,
	onPort func(portscan.PortResult)) ([]portscan.PortResult, error) {
	args := m.Called(ctx, target, ports, onPort)
	found, _ := args.Get(0).([]portscan.PortResult)
	return found, args.Error(1)
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) AnalyzeFile(ctx context.Context, path string) (*capture.Result, error) {
	args := m.Called(ctx, path)
	result, _ := args.Get(0).(*capture.Result)
	return result, args.Error(1)
}

func createTestConfig() *config.Config {
	cfg := config.Default()
	cfg.API.Port = 0
	cfg.Capture.UploadDir = ""
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *mockScanner, *metrics.PrometheusMetrics) {
	t.Helper()
	scanner := &mockScanner{}
	pm := metrics.NewPrometheusMetrics()
	srv, err := New(cfg, Engines{
		Discovery: &mockDiscoverer{},
		Scanner:   scanner,
		Analyzer:  &mockAnalyzer{},
	}, pm)
	require.NoError(t, err)
	return srv, scanner, pm
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, Engines{}, nil)
	assert.Error(t, err)

	_, err = New(config.Default(), Engines{Discovery: &mockDiscoverer{}}, nil)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	srv, err := NewFromConfig(createTestConfig())
	require.NoError(t, err)
	assert.NotNil(t, srv.Handler())
	assert.Equal(t, "127.0.0.1:0", srv.httpServer.Addr)
}

func TestRoutes(t *testing.T) {
	srv, scanner, _ := newTestServer(t, createTestConfig())
	scanner.On("Stream", mock.Anything, "10.0.0.5", []int(nil), mock.Anything).
		Return([]portscan.PortResult{{Port: 22, Service: "ssh"}}, nil)

	rr := do(t, srv.Handler(), http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = do(t, srv.Handler(), http.MethodPost, "/api/scanner/ports", `{"target":"10.0.0.5"}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"target":"10.0.0.5","ports":[{"port":22,"service":"ssh"}]}`, rr.Body.String())

	rr = do(t, srv.Handler(), http.MethodGet, "/api/scanner/ports", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = do(t, srv.Handler(), http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, createTestConfig())

	do(t, srv.Handler(), http.MethodGet, "/api/health", "", nil)
	do(t, srv.Handler(), http.MethodPost, "/api/scanner/ports", `{}`, nil)

	rr := do(t, srv.Handler(), http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `netscope_api_requests_total{method="GET",path="/api/health",status="200"} 1`)
	assert.Contains(t, body, `netscope_api_requests_total{method="POST",path="/api/scanner/ports",status="400"} 1`)
}

func TestRequestTimeoutReachesEngine(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.RequestTimeout = 50 * time.Millisecond

	srv, scanner, _ := newTestServer(t, cfg)
	scanner.On("Stream", mock.Anything, "10.0.0.5", []int(nil), mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, time.Second)
		}).
		Return([]portscan.PortResult{}, nil)

	rr := do(t, srv.Handler(), http.MethodPost, "/api/scanner/ports", `{"target":"10.0.0.5"}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	scanner.AssertExpectations(t)
}

func TestAuthentication(t *testing.T) {
	key := "ns_" + strings.Repeat("k", auth.KeyLength)
	hash, err := auth.HashKey(key)
	require.NoError(t, err)

	cfg := createTestConfig()
	cfg.API.APIKeyHash = hash
	srv, _, _ := newTestServer(t, cfg)

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		status  int
	}{
		{"health is public", http.MethodGet, "/api/health", nil, http.StatusOK},
		{"metrics is public", http.MethodGet, "/metrics", nil, http.StatusOK},
		{"missing key", http.MethodPost, "/api/scanner/ports", nil, http.StatusUnauthorized},
		{"wrong key", http.MethodPost, "/api/scanner/ports", map[string]string{"X-API-Key": "ns_wrong"}, http.StatusUnauthorized},
		{"header key", http.MethodPost, "/api/scanner/ports", map[string]string{"X-API-Key": key}, http.StatusBadRequest},
		{"bearer key", http.MethodPost, "/api/scanner/ports", map[string]string{"Authorization": "Bearer " + key}, http.StatusBadRequest},
		{"query key", http.MethodPost, "/api/scanner/ports?api_key=" + key, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv.Handler(), tt.method, tt.path, "{}", tt.headers)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rr.Body.String(), `"error"`)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t, createTestConfig())

	rr := do(t, srv.Handler(), http.MethodOptions, "/api/scanner/ports", "", map[string]string{
		"Origin":                         "http://ui.local",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Content-Type",
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	cfg := createTestConfig()
	cfg.API.CORS.Enabled = false
	srv, _, _ = newTestServer(t, cfg)
	rr = do(t, srv.Handler(), http.MethodGet, "/api/health", "", map[string]string{"Origin": "http://ui.local"})
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartStop(t *testing.T) {
	srv, _, _ := newTestServer(t, createTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
