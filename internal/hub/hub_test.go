package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/connct/screenagent/internal/store"
)

func newTestHub(t *testing.T, timeout time.Duration) (*Hub, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "hub.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := New("user1", st, timeout)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h, st
}

// recvEnvelope pops one frame off a mock connection's send buffer.
func recvEnvelope(t *testing.T, c *Conn, within time.Duration) Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("malformed envelope: %v", err)
		}
		return env
	case <-time.After(within):
		t.Fatal("no frame received")
		return Envelope{}
	}
}

func TestRegisterAndListDevices(t *testing.T) {
	h, st := newTestHub(t, 0)

	c := NewConn("conn-1", KindDevice, nil)
	h.Register(c, "laptop", "linux")

	env := recvEnvelope(t, c, time.Second)
	if env.Type != TypeRegistered || env.DeviceName != "laptop" {
		t.Errorf("unexpected ack: %+v", env)
	}

	devices := h.ListActiveDevices()
	if len(devices) != 1 || devices[0].DeviceName != "laptop" {
		t.Errorf("unexpected device list: %+v", devices)
	}

	rows, err := st.DevicesForUser("user1")
	if err != nil {
		t.Fatalf("store query failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ConnID != "conn-1" {
		t.Errorf("registration not persisted: %+v", rows)
	}
}

func TestRegisterDisplacesExistingName(t *testing.T) {
	h, _ := newTestHub(t, 0)

	old := NewConn("conn-old", KindDevice, nil)
	h.Register(old, "laptop", "")
	replacement := NewConn("conn-new", KindDevice, nil)
	h.Register(replacement, "laptop", "")

	devices := h.ListActiveDevices()
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %+v", devices)
	}
	ids := []string{}
	h.do(func() {
		for id := range h.devices {
			ids = append(ids, id)
		}
	})
	if len(ids) != 1 || ids[0] != "conn-new" {
		t.Errorf("old connection still registered: %v", ids)
	}
}

func TestSendTaskNotConnected(t *testing.T) {
	h, _ := newTestHub(t, 0)

	start := time.Now()
	_, err := h.SendTask(context.Background(), "deviceA", "open settings")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("not-connected failure must be immediate")
	}
}

func TestSendTaskRoundTrip(t *testing.T) {
	h, _ := newTestHub(t, 0)

	c := NewConn("conn-1", KindDevice, nil)
	h.Register(c, "laptop", "")
	recvEnvelope(t, c, time.Second) // registered ack

	// Device side: answer the task frame.
	go func() {
		for {
			data := <-c.send
			var env Envelope
			if json.Unmarshal(data, &env) == nil && env.Type == TypeTask {
				h.OnResponse(env.MessageID, "task complete: "+env.Content)
				return
			}
		}
	}()

	result, err := h.SendTask(context.Background(), "laptop", "open settings")
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}
	if result != "task complete: open settings" {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestSendTaskTimeout(t *testing.T) {
	h, _ := newTestHub(t, 50*time.Millisecond)

	c := NewConn("conn-1", KindDevice, nil)
	h.Register(c, "laptop", "")

	_, err := h.SendTask(context.Background(), "laptop", "never answered")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "50ms") {
		t.Errorf("timeout error should name the duration: %v", err)
	}

	// The pending request is gone; a late response is a no-op.
	pendingCount := -1
	h.do(func() { pendingCount = len(h.pending) })
	if pendingCount != 0 {
		t.Errorf("pending requests remaining: %d", pendingCount)
	}
}

func TestDisconnectResolvesAllPending(t *testing.T) {
	h, _ := newTestHub(t, 0)

	c := NewConn("conn-1", KindDevice, nil)
	h.Register(c, "laptop", "")

	const n = 3
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := h.SendTask(context.Background(), "laptop", "task")
			errs <- err
		}()
	}

	// Wait for all tasks to be in flight.
	deadline := time.Now().Add(time.Second)
	for {
		count := 0
		h.do(func() { count = len(h.pending) })
		if count == n {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tasks never became pending (%d)", count)
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.OnDisconnect("conn-1")

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, ErrDisconnected) {
				t.Errorf("expected ErrDisconnected, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("caller left hanging after disconnect")
		}
	}

	if devices := h.ListActiveDevices(); len(devices) != 0 {
		t.Errorf("device list should be empty: %+v", devices)
	}
}

func TestStoppedHubDoesNotBlockCallers(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "hub.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := New("user1", st, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := NewConn("conn-1", KindDevice, nil)
	h.Register(c, "laptop", "")
	recvEnvelope(t, c, time.Second) // registered ack

	// Put one task in flight so a caller is waiting when the hub stops.
	errs := make(chan error, 1)
	go func() {
		_, err := h.SendTask(context.Background(), "laptop", "never answered")
		errs <- err
	}()
	deadline := time.Now().Add(time.Second)
	for {
		count := 0
		h.do(func() { count = len(h.pending) })
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never became pending")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-h.stopped:
	case <-time.After(time.Second):
		t.Fatal("hub never stopped")
	}

	select {
	case err := <-errs:
		if err == nil || !strings.Contains(err.Error(), "stopped") {
			t.Errorf("expected stopped error for in-flight task, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight caller left hanging after hub stop")
	}

	// Late pump callbacks and new sends return instead of blocking on the
	// dead mailbox.
	done := make(chan struct{})
	go func() {
		h.OnDisconnect("conn-1")
		h.OnResponse("some-id", "late")
		_, sendErr := h.SendTask(context.Background(), "laptop", "task")
		if sendErr == nil {
			t.Error("SendTask on a stopped hub must fail")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback blocked on stopped hub")
	}
}

func TestOnResponseUnknownIDIgnored(t *testing.T) {
	h, _ := newTestHub(t, 0)
	h.OnResponse("no-such-id", "late")
	// Just confirm the actor is still alive.
	if got := h.ListActiveDevices(); len(got) != 0 {
		t.Errorf("unexpected devices: %+v", got)
	}
}

func TestListActiveDevicesDeletesStaleRows(t *testing.T) {
	h, st := newTestHub(t, 0)

	// A row with no live connection, as left behind by a process restart.
	if err := st.UpsertDevice("user1", "conn-dead", "ghost"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if devices := h.ListActiveDevices(); len(devices) != 0 {
		t.Errorf("ghost device listed: %+v", devices)
	}

	rows, err := st.DevicesForUser("user1")
	if err != nil {
		t.Fatalf("store query failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("stale row not deleted: %+v", rows)
	}
}

func TestViewerReceivesDeviceList(t *testing.T) {
	h, _ := newTestHub(t, 0)

	v := NewConn("viewer-1", KindViewer, nil)
	h.Subscribe(v)

	env := recvEnvelope(t, v, time.Second)
	if env.Type != TypeDevices || len(env.Devices) != 0 {
		t.Errorf("expected empty device list, got %+v", env)
	}

	c := NewConn("conn-1", KindDevice, nil)
	h.Register(c, "laptop", "")

	env = recvEnvelope(t, v, time.Second)
	if env.Type != TypeDevices || len(env.Devices) != 1 || env.Devices[0].DeviceName != "laptop" {
		t.Errorf("expected broadcast with laptop, got %+v", env)
	}
}

func TestRelayLogReachesViewers(t *testing.T) {
	h, _ := newTestHub(t, 0)

	v := NewConn("viewer-1", KindViewer, nil)
	h.Subscribe(v)
	recvEnvelope(t, v, time.Second) // initial device list

	c := NewConn("conn-1", KindDevice, nil)
	h.Register(c, "laptop", "")
	recvEnvelope(t, v, time.Second) // device list broadcast

	h.RelayLog("conn-1", "step 3: clicking OK")
	env := recvEnvelope(t, v, time.Second)
	if env.Type != TypeDeviceLog || env.DeviceName != "laptop" || env.Message != "step 3: clicking OK" {
		t.Errorf("unexpected log frame: %+v", env)
	}
	if env.Time == "" {
		t.Error("log frame missing timestamp")
	}
}

func TestWebSocketHandler(t *testing.T) {
	h, _ := newTestHub(t, 0)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, KindDevice)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	reg := Envelope{Type: TypeRegister, DeviceName: "laptop", Platform: "test"}
	if err := ws.WriteMessage(websocket.TextMessage, reg.Encode()); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var ack Envelope
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("malformed ack: %v", err)
	}
	if ack.Type != TypeRegistered || ack.DeviceName != "laptop" {
		t.Errorf("unexpected ack: %+v", ack)
	}

	if devices := h.ListActiveDevices(); len(devices) != 1 {
		t.Errorf("device not listed: %+v", devices)
	}
}
