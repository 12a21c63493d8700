// Package device implements the device-side connection to a hub: register,
// receive tasks, stream progress logs, answer with results, and reconnect
// when the link drops.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/connct/screenagent/internal/hub"
)

const (
	writeTimeout    = 5 * time.Second
	registerTimeout = 10 * time.Second
	reconnectBase   = time.Second
	reconnectCap    = 60 * time.Second
)

// TaskHandler executes one task and returns its result text. The log
// callback relays progress lines to the hub's viewers while the task runs.
type TaskHandler func(ctx context.Context, content string, log func(string)) (string, error)

// Client maintains the device's hub connection. One task runs at a time; a
// task arriving while another is in flight is refused immediately so the
// hub-side caller is not left waiting on a queue that does not exist.
type Client struct {
	url        string
	deviceName string
	platform   string
	token      string
	handler    TaskHandler

	mu   sync.Mutex // serializes websocket writes
	ws   *websocket.Conn
	busy bool
}

// New creates a device client. url is the hub's device websocket endpoint.
func New(url, deviceName, platform, token string, handler TaskHandler) *Client {
	return &Client{
		url:        url,
		deviceName: deviceName,
		platform:   platform,
		token:      token,
		handler:    handler,
	}
}

// Run connects and serves tasks until ctx is cancelled, reconnecting with
// exponential backoff after any connection loss.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.connect(ctx)
		if err == nil {
			attempt = 0
			c.readLoop(ctx)
		} else {
			fmt.Printf("[Device] WARNING: connect failed: %v\n", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoffDelay(attempt)
		attempt++
		fmt.Printf("[Device] Reconnecting in %s (attempt %d)\n", delay.Round(time.Millisecond), attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoffDelay grows 1s, 2s, 4s... capped at 60s, with ±25% jitter so a
// fleet of devices does not reconnect in lockstep.
func backoffDelay(attempt int) time.Duration {
	delay := reconnectBase
	for i := 0; i < attempt && delay < reconnectCap; i++ {
		delay *= 2
	}
	if delay > reconnectCap {
		delay = reconnectCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay - delay/4 + jitter
}

// connect dials the hub, registers, and waits for the registered ack.
func (c *Client) connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	reg := hub.Envelope{Type: hub.TypeRegister, DeviceName: c.deviceName, Platform: c.platform}
	if err := c.write(reg); err != nil {
		ws.Close()
		return fmt.Errorf("register: %w", err)
	}

	ws.SetReadDeadline(time.Now().Add(registerTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return fmt.Errorf("awaiting registration ack: %w", err)
	}
	ws.SetReadDeadline(time.Time{})

	var ack hub.Envelope
	if err := json.Unmarshal(data, &ack); err != nil || ack.Type != hub.TypeRegistered {
		ws.Close()
		return fmt.Errorf("unexpected registration reply: %s", data)
	}

	fmt.Printf("[Device] Registered as %q\n", c.deviceName)
	return nil
}

// readLoop dispatches frames until the connection drops.
func (c *Client) readLoop(ctx context.Context) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				fmt.Printf("[Device] Connection lost: %v\n", err)
			}
			return
		}

		var env hub.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			fmt.Printf("[Device] WARNING: malformed frame: %v\n", err)
			continue
		}

		switch env.Type {
		case hub.TypeTask:
			c.handleTask(ctx, env)
		case hub.TypeDevices, hub.TypeRegistered:
			// Informational, nothing to do.
		default:
			fmt.Printf("[Device] WARNING: unknown frame type %q\n", env.Type)
		}
	}
}

// handleTask runs one task on its own goroutine. A second task arriving
// while the first runs gets an immediate busy error instead of queueing.
func (c *Client) handleTask(ctx context.Context, env hub.Envelope) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		c.respond(env.MessageID, "ERROR: device is busy with another task")
		return
	}
	c.busy = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.busy = false
			c.mu.Unlock()
		}()

		fmt.Printf("[Device] Task %s: %s\n", env.MessageID, firstLine(env.Content))
		result, err := c.handler(ctx, env.Content, c.Log)
		if err != nil {
			c.respond(env.MessageID, "ERROR: "+err.Error())
			return
		}
		c.respond(env.MessageID, result)
	}()
}

// Log relays one progress line to the hub. Best effort; a write failure is
// logged locally and dropped.
func (c *Client) Log(message string) {
	if err := c.write(hub.Envelope{Type: hub.TypeLog, Message: message}); err != nil {
		fmt.Printf("[Device] WARNING: log relay failed: %v\n", err)
	}
}

func (c *Client) respond(messageID, content string) {
	env := hub.Envelope{Type: hub.TypeResponse, MessageID: messageID, Content: content}
	if err := c.write(env); err != nil {
		fmt.Printf("[Device] ERROR: sending response for %s: %v\n", messageID, err)
	}
}

func (c *Client) write(env hub.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, env.Encode())
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
