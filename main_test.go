package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"storefront/internal/config"
	"storefront/internal/events"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppPort:  ":0",
		LogLevel: "debug",
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			DSN:    filepath.Join(t.TempDir(), "app.db") + "?_busy_timeout=10000&_txlock=immediate&_foreign_keys=1",
		},
		Broker: config.BrokerLog,
		Outbox: config.OutboxConfig{
			PollInterval:   50 * time.Millisecond,
			BatchSize:      10,
			PublishRetries: 1,
			MaxBackoff:     time.Second,
		},
	}
}

func newTestApplication(t *testing.T) (*application, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	a, err := newApplication(context.Background(), testConfig(t), zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.app.Shutdown()
		_ = a.close()
	})
	return a, logs
}

func doJSON(t *testing.T, a *application, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHealthCheck(t *testing.T) {
	a, _ := newTestApplication(t)

	status, body := doJSON(t, a, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, 0, health["pending_events"])
}

func TestOrderFlowPublishesThroughOutbox(t *testing.T) {
	a, logs := newTestApplication(t)

	status, body := doJSON(t, a, http.MethodPost, "/api/v1/products", map[string]interface{}{
		"name": "Widget", "price": "15.00", "inventory": 3,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var product struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &product))

	status, body = doJSON(t, a, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"customerId": 7,
		"items":      []map[string]interface{}{{"productId": product.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = doJSON(t, a, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"pending_events":1`)

	sent, err := a.dispatcher.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	published := logs.FilterMessage("event published").All()
	require.Len(t, published, 1)
	assert.Equal(t, events.PatternOrderCreated, published[0].ContextMap()["type"])

	_, body = doJSON(t, a, http.MethodGet, "/health", nil)
	assert.Contains(t, string(body), `"pending_events":0`)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	a, _ := newTestApplication(t)
	status, _ := doJSON(t, a, http.MethodGet, "/api/v1/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestNewPublisherSelectsBroker(t *testing.T) {
	cfg := testConfig(t)
	p, err := newPublisher(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &events.LogPublisher{}, p)

	cfg.Broker = "nats"
	_, err = newPublisher(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
