package hub

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/connct/screenagent/internal/store"
)

// DefaultTaskTimeout bounds the round trip of one SendTask call. Complex
// tasks drive many model steps, so the budget is generous.
const DefaultTaskTimeout = 120 * time.Second

type taskResult struct {
	content string
	err     error
}

// pendingRequest correlates one outbound task with its eventual response.
// In-memory only; a hub restart drops all pending requests and callers see
// it as a timeout.
type pendingRequest struct {
	deviceConnID string
	deviceName   string
	ch           chan taskResult
	timer        *time.Timer
}

// Hub is the per-user actor owning the device/viewer registry and the
// pending-request map. All state mutations run on the single Run goroutine,
// so no lock guards the maps.
type Hub struct {
	userKey string
	store   *store.Store
	timeout time.Duration

	commands chan func()
	stopped  chan struct{} // closed when Run exits

	devices map[string]*Conn // conn id -> device connection
	viewers map[string]*Conn // conn id -> viewer connection
	pending map[string]*pendingRequest

	upgrader websocket.Upgrader
}

// New creates a hub for one user. Call Run before using it.
func New(userKey string, st *store.Store, timeout time.Duration) *Hub {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Hub{
		userKey:  userKey,
		store:    st,
		timeout:  timeout,
		commands: make(chan func(), 64),
		stopped:  make(chan struct{}),
		devices:  make(map[string]*Conn),
		viewers:  make(map[string]*Conn),
		pending:  make(map[string]*pendingRequest),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run executes the hub's command loop until the context is cancelled. On
// exit the stopped channel is closed so late do/post callers (connection
// pumps still draining) return instead of blocking on a dead mailbox.
func (h *Hub) Run(ctx context.Context) {
	fmt.Printf("[Hub] Started for user %s\n", h.userKey)
	defer close(h.stopped)
	for {
		select {
		case cmd := <-h.commands:
			cmd()
		case <-ctx.Done():
			fmt.Printf("[Hub] Stopped for user %s\n", h.userKey)
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for it to finish. Must not be
// called from inside the actor. Returns false without running fn when the
// hub has stopped.
func (h *Hub) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case h.commands <- func() {
		fn()
		close(done)
	}:
	case <-h.stopped:
		return false
	}
	select {
	case <-done:
		return true
	case <-h.stopped:
		return false
	}
}

// post runs fn on the actor goroutine without waiting. Dropped when the hub
// has stopped.
func (h *Hub) post(fn func()) {
	select {
	case h.commands <- fn:
	case <-h.stopped:
	}
}

// ServeWS upgrades an HTTP request into a hub connection and starts its
// pumps. The connection joins the registry once it registers or subscribes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, kind ConnKind) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("[Hub] WARNING: upgrade failed: %v\n", err)
		return
	}
	c := NewConn(uuid.New().String(), kind, ws)
	go c.writePump()
	go c.readPump(h)
}

// handleFrame dispatches one parsed frame from a connection.
func (h *Hub) handleFrame(c *Conn, env Envelope) {
	switch env.Type {
	case TypeRegister:
		if env.DeviceName == "" {
			fmt.Printf("[Hub] WARNING: register without deviceName from %s\n", c.ID)
			return
		}
		h.Register(c, env.DeviceName, env.Platform)
	case TypeSubscribe:
		h.Subscribe(c)
	case TypeLog:
		h.RelayLog(c.ID, env.Message)
	case TypeResponse:
		h.OnResponse(env.MessageID, env.Content)
	default:
		fmt.Printf("[Hub] WARNING: unknown frame type %q from %s\n", env.Type, c.ID)
	}
}

// Register upserts a device registration. A live connection already holding
// the name is displaced: the old connection's pending requests resolve as
// disconnected and its registration row is replaced.
func (h *Hub) Register(c *Conn, deviceName, platform string) {
	h.do(func() {
		if old := h.deviceByName(deviceName); old != nil && old.ID != c.ID {
			fmt.Printf("[Hub] Device %q re-registered, displacing connection %s\n", deviceName, old.ID)
			h.removeConnLocked(old.ID)
		}

		c.Name = deviceName
		h.devices[c.ID] = c
		if err := h.store.UpsertDevice(h.userKey, c.ID, deviceName); err != nil {
			fmt.Printf("[Hub] ERROR: persisting device registration: %v\n", err)
		}

		c.Send(Envelope{Type: TypeRegistered, DeviceName: deviceName})
		fmt.Printf("[Hub] Device registered: %s (%s)\n", deviceName, platform)
		h.broadcastDeviceListLocked()
	})
}

// Subscribe upserts a viewer registration and immediately pushes the
// current device list to the new viewer.
func (h *Hub) Subscribe(c *Conn) {
	h.do(func() {
		h.viewers[c.ID] = c
		if err := h.store.UpsertViewer(h.userKey, c.ID); err != nil {
			fmt.Printf("[Hub] ERROR: persisting viewer registration: %v\n", err)
		}
		c.Send(Envelope{Type: TypeDevices, Devices: h.deviceListLocked()})
	})
}

// RelayLog broadcasts a device's log line to all viewers. Observability
// only; unknown connections are dropped with a warning.
func (h *Hub) RelayLog(connID, message string) {
	h.post(func() {
		c, ok := h.devices[connID]
		if !ok {
			fmt.Printf("[Hub] WARNING: log from unknown connection %s\n", connID)
			return
		}
		h.broadcastLocked(Envelope{
			Type:       TypeDeviceLog,
			DeviceName: c.Name,
			Time:       time.Now().UTC().Format(time.RFC3339),
			Message:    message,
		})
	})
}

// ListActiveDevices reconciles persisted registrations against live
// connections. Stale rows are deleted as a side effect, which heals
// registrations left behind by lost connections.
func (h *Hub) ListActiveDevices() []DeviceInfo {
	var list []DeviceInfo
	h.do(func() {
		h.reconcileLocked()
		list = h.deviceListLocked()
	})
	return list
}

// ListActiveViewers reconciles and returns the live viewer connection ids.
func (h *Hub) ListActiveViewers() []string {
	var ids []string
	h.do(func() {
		h.reconcileLocked()
		for id := range h.viewers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	})
	return ids
}

// SendTask routes one task to a named device and blocks until the response
// arrives, the timeout fires, the device disconnects, or ctx is cancelled.
func (h *Hub) SendTask(ctx context.Context, deviceName, content string) (string, error) {
	var req *pendingRequest
	var messageID string
	var sendErr error

	ok := h.do(func() {
		c := h.deviceByName(deviceName)
		if c == nil {
			sendErr = fmt.Errorf("device %q: %w", deviceName, ErrNotConnected)
			return
		}

		messageID = uuid.New().String()
		req = &pendingRequest{
			deviceConnID: c.ID,
			deviceName:   deviceName,
			ch:           make(chan taskResult, 1),
		}
		h.pending[messageID] = req

		id := messageID
		req.timer = time.AfterFunc(h.timeout, func() {
			h.resolve(id, "", fmt.Errorf("%w: no response within %s", ErrTimeout, h.timeout))
		})

		c.Send(Envelope{Type: TypeTask, MessageID: messageID, Content: content})
		h.broadcastLocked(Envelope{
			Type:       TypeDeviceLog,
			DeviceName: deviceName,
			Time:       time.Now().UTC().Format(time.RFC3339),
			Message:    "task dispatched: " + firstLine(content),
		})
		fmt.Printf("[Hub] Task %s sent to %s\n", messageID, deviceName)
	})

	if !ok {
		return "", fmt.Errorf("hub for user %s is stopped", h.userKey)
	}
	if sendErr != nil {
		return "", sendErr
	}

	select {
	case res := <-req.ch:
		return res.content, res.err
	case <-h.stopped:
		return "", fmt.Errorf("hub for user %s is stopped", h.userKey)
	case <-ctx.Done():
		h.post(func() { h.dropPendingLocked(messageID) })
		return "", ctx.Err()
	}
}

// OnResponse resolves the pending request for messageID. Late or duplicate
// responses are silently ignored.
func (h *Hub) OnResponse(messageID, content string) {
	h.resolve(messageID, content, nil)
}

// resolve completes a pending request exactly once; the map entry is the
// guard.
func (h *Hub) resolve(messageID, content string, err error) {
	h.post(func() {
		req, ok := h.pending[messageID]
		if !ok {
			return
		}
		delete(h.pending, messageID)
		if req.timer != nil {
			req.timer.Stop()
		}
		req.ch <- taskResult{content: content, err: err}
	})
}

// OnDisconnect removes the registration for a connection. Every pending
// request held by a disconnecting device resolves with ErrDisconnected
// before this returns; callers are never left hanging.
func (h *Hub) OnDisconnect(connID string) {
	h.do(func() {
		h.removeConnLocked(connID)
	})
}

// --- actor-internal helpers (only called from the Run goroutine) ---

func (h *Hub) deviceByName(name string) *Conn {
	for _, c := range h.devices {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (h *Hub) removeConnLocked(connID string) {
	c, wasDevice := h.devices[connID]
	if wasDevice {
		delete(h.devices, connID)
		if c.ws != nil {
			c.ws.Close()
		}
		for id, req := range h.pending {
			if req.deviceConnID != connID {
				continue
			}
			delete(h.pending, id)
			if req.timer != nil {
				req.timer.Stop()
			}
			req.ch <- taskResult{err: fmt.Errorf("device %q: %w", c.Name, ErrDisconnected)}
		}
		fmt.Printf("[Hub] Device disconnected: %s\n", c.Name)
	}
	delete(h.viewers, connID)

	if err := h.store.DeleteConn(connID); err != nil {
		fmt.Printf("[Hub] ERROR: deleting registration: %v\n", err)
	}
	if wasDevice {
		h.broadcastDeviceListLocked()
	}
}

func (h *Hub) dropPendingLocked(messageID string) {
	if req, ok := h.pending[messageID]; ok {
		delete(h.pending, messageID)
		if req.timer != nil {
			req.timer.Stop()
		}
	}
}

// reconcileLocked deletes persisted rows whose connection is no longer
// live. Handles connections lost during hibernation or a hub restart.
func (h *Hub) reconcileLocked() {
	live := make(map[string]bool, len(h.devices)+len(h.viewers))
	for id := range h.devices {
		live[id] = true
	}
	for id := range h.viewers {
		live[id] = true
	}
	deleted, err := h.store.DeleteStale(h.userKey, live)
	if err != nil {
		fmt.Printf("[Hub] ERROR: reconciling registrations: %v\n", err)
		return
	}
	if deleted > 0 {
		fmt.Printf("[Hub] Reconciled %d stale registrations for %s\n", deleted, h.userKey)
	}
}

func (h *Hub) deviceListLocked() []DeviceInfo {
	list := make([]DeviceInfo, 0, len(h.devices))
	for _, c := range h.devices {
		list = append(list, DeviceInfo{DeviceName: c.Name, Status: "online"})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].DeviceName < list[j].DeviceName })
	return list
}

func (h *Hub) broadcastDeviceListLocked() {
	h.broadcastLocked(Envelope{Type: TypeDevices, Devices: h.deviceListLocked()})
}

func (h *Hub) broadcastLocked(env Envelope) {
	for _, v := range h.viewers {
		if !v.Send(env) {
			fmt.Printf("[Hub] WARNING: viewer %s send buffer full, dropping frame\n", v.ID)
		}
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
