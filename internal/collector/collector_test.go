package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netscope/internal/config"
)

func TestPush(t *testing.T) {
	var got map[string]any
	var gotPath, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"abc"}`))
	}))
	defer server.Close()

	client := New(config.CollectorConfig{URL: server.URL + "/", DeviceID: "sensor-1", Timeout: time.Second})
	err := client.Push(context.Background(), "ports", map[string]any{"success": true, "target": "10.0.0.5"})
	require.NoError(t, err)

	assert.Equal(t, "/api/logs", gotPath)
	assert.Contains(t, gotAgent, "netscope/")
	assert.Equal(t, "system", got["type"])
	assert.Equal(t, "sensor-1", got["deviceId"])
	assert.Equal(t, "low", got["severity"])
	assert.Equal(t, []any{"netscope", "ports"}, got["tags"])

	data := got["data"].(map[string]any)
	assert.Equal(t, "ports", data["kind"])
	assert.Equal(t, "10.0.0.5", data["report"].(map[string]any)["target"])

	info := got["deviceInfo"].(map[string]any)
	assert.NotEmpty(t, info["platform"])
	assert.NotEmpty(t, info["ip"])
}

func TestPushErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json error", http.StatusBadRequest, `{"error":"Log validation failed"}`, "Log validation failed"},
		{"json message", http.StatusInternalServerError, `{"message":"db down"}`, "db down"},
		{"plain text", http.StatusBadGateway, "upstream unavailable\n", "upstream unavailable"},
		{"empty", http.StatusNotFound, "", "HTTP 404 error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := New(config.CollectorConfig{URL: server.URL}).Push(context.Background(), "network", struct{}{})
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestPushUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := New(config.CollectorConfig{URL: url, Timeout: time.Second}).Push(context.Background(), "network", nil)
	assert.Error(t, err)
}

func TestRecordDefaultsDeviceID(t *testing.T) {
	client := New(config.CollectorConfig{URL: "http://localhost:5000"})
	rec := client.Record("capture", "x")
	assert.Equal(t, client.device.Hostname, rec.DeviceID)
	assert.Equal(t, Payload{Kind: "capture", Report: "x"}, rec.Data)
}
