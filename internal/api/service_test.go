package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdmdm-nz/devdwatch/internal/devd"
	"github.com/dmdmdm-nz/devdwatch/internal/monitor"
)

// mockMonitor is a test double for DeviceMonitor
type mockMonitor struct {
	mu        sync.Mutex
	devices   []monitor.Record
	connected bool
	subs      []chan monitor.Record
}

func (m *mockMonitor) Devices() []monitor.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]monitor.Record{}, m.devices...)
}

func (m *mockMonitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMonitor) Subscribe() (<-chan monitor.Record, func()) {
	ch := make(chan monitor.Record, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch, func() {}
}

func (m *mockMonitor) subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *mockMonitor) publish(rec monitor.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		ch <- rec
	}
}

func newTestServer(t *testing.T, mon *mockMonitor, gatherer prometheus.Gatherer) *httptest.Server {
	t.Helper()
	s := NewService("127.0.0.1", 0)
	s.AttachMonitor(mon, gatherer)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &mockMonitor{}, nil)

	code, _ := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)

	resp, err := http.Post(srv.URL+"/health", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestReady_FollowsConnection(t *testing.T) {
	mon := &mockMonitor{}
	srv := newTestServer(t, mon, nil)

	code, _ := get(t, srv.URL+"/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	mon.mu.Lock()
	mon.connected = true
	mon.mu.Unlock()

	code, _ = get(t, srv.URL+"/ready")
	assert.Equal(t, http.StatusOK, code)
}

func TestDevices(t *testing.T) {
	mon := &mockMonitor{devices: []monitor.Record{
		{Kind: monitor.KindDevice, Action: "Add", Name: "da0", Parent: "scbus0", Details: devd.Details{{Key: "bus", Value: "0"}}},
	}}
	srv := newTestServer(t, mon, nil)

	resp, err := http.Get(srv.URL + "/devices")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var result []monitor.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result, 1)
	assert.Equal(t, "da0", result[0].Name)
	assert.Equal(t, devd.Details{{Key: "bus", Value: "0"}}, result[0].Details)
}

func TestDevices_Empty(t *testing.T) {
	srv := newTestServer(t, &mockMonitor{}, nil)

	code, body := get(t, srv.URL+"/devices")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]", strings.TrimSpace(body))
}

func TestMetrics(t *testing.T) {
	metrics := monitor.NewMetrics()
	metrics.Reconnects.Inc()
	srv := newTestServer(t, &mockMonitor{}, metrics.Registry)

	code, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "devdwatch_connection_reconnects_total 1")
}

func TestMetrics_NotMountedWithoutGatherer(t *testing.T) {
	srv := newTestServer(t, &mockMonitor{}, nil)

	code, _ := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStreamEvents_Filtered(t *testing.T) {
	mon := &mockMonitor{}
	srv := newTestServer(t, mon, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?kind=device&name=umass*"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return mon.subscribers() == 1 }, time.Second, 10*time.Millisecond)

	mon.publish(monitor.Record{Kind: monitor.KindNotify, System: "DEVFS"})
	mon.publish(monitor.Record{Kind: monitor.KindDevice, Action: "Add", Name: "da0"})
	mon.publish(monitor.Record{Kind: monitor.KindDevice, Action: "Add", Name: "umass0"})

	var rec monitor.Record
	require.NoError(t, wsjson.Read(ctx, c, &rec))
	assert.Equal(t, "umass0", rec.Name)
	assert.Equal(t, "Add", rec.Action)
}

func TestEventFilter(t *testing.T) {
	dev := monitor.Record{Kind: monitor.KindDevice, Name: "da0"}
	note := monitor.Record{Kind: monitor.KindNotify, System: "DEVFS"}

	assert.True(t, eventFilter{}.allows(dev))
	assert.True(t, eventFilter{}.allows(note))
	assert.False(t, eventFilter{kind: "notify"}.allows(dev))
	assert.True(t, eventFilter{name: "da*"}.allows(dev))
	assert.False(t, eventFilter{name: "cd*"}.allows(dev))
	assert.True(t, eventFilter{kind: "notify", name: "DEVFS"}.allows(note))
	assert.False(t, eventFilter{name: "IFNET"}.allows(note))
}

func TestStart_WithoutMonitorWaitsForContext(t *testing.T) {
	s := NewService("127.0.0.1", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Start to return")
	}
	assert.NoError(t, s.Close())
}
