package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/connct/screenagent/internal/hub"
	"github.com/connct/screenagent/internal/store"
)

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *hub.Set) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hubs := hub.NewSet(ctx, st, 2*time.Second)
	ts := httptest.NewServer(New(hubs, cfg).Router())
	t.Cleanup(ts.Close)
	return ts, hubs
}

func TestDevicesEmpty(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/devices")
	if err != nil {
		t.Fatalf("GET /devices failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var devices []hub.DeviceInfo
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("expected empty list, got %+v", devices)
	}
}

func TestMessageNotConnected(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	body := strings.NewReader(`{"deviceName":"deviceA","content":"open settings"}`)
	resp, err := http.Post(ts.URL+"/message", "application/json", body)
	if err != nil {
		t.Fatalf("POST /message failed: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !strings.Contains(result["error"], "not connected") {
		t.Errorf("expected not-connected error, got %+v", result)
	}
}

func TestMessageRoundTripOverWebSocket(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	// Connect a device and answer the first task frame.
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/device"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	reg := hub.Envelope{Type: hub.TypeRegister, DeviceName: "laptop"}
	if err := ws.WriteMessage(websocket.TextMessage, reg.Encode()); err != nil {
		t.Fatalf("register write failed: %v", err)
	}

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env hub.Envelope
			if json.Unmarshal(data, &env) != nil || env.Type != hub.TypeTask {
				continue
			}
			resp := hub.Envelope{
				Type:      hub.TypeResponse,
				MessageID: env.MessageID,
				Content:   "did: " + env.Content,
			}
			ws.WriteMessage(websocket.TextMessage, resp.Encode())
			return
		}
	}()

	// Give the registration a moment to land.
	time.Sleep(50 * time.Millisecond)

	body := strings.NewReader(`{"deviceName":"laptop","content":"open settings"}`)
	resp, err := http.Post(ts.URL+"/message", "application/json", body)
	if err != nil {
		t.Fatalf("POST /message failed: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if result["response"] != "did: open settings" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestMessageValidation(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	resp, err := http.Post(ts.URL+"/message", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAuthToken(t *testing.T) {
	ts, _ := newTestServer(t, Config{Token: "secret"})

	resp, err := http.Get(ts.URL + "/devices")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/devices", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with token = %d, want 200", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, Config{RateLimit: 2})

	limited := false
	for i := 0; i < 5; i++ {
		body := strings.NewReader(`{"deviceName":"nobody","content":"x"}`)
		resp, err := http.Post(ts.URL+"/message", "application/json", body)
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("burst of requests was never rate limited")
	}
}
