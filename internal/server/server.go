// Package server exposes the orchestrator-facing control surface and the
// websocket endpoints devices and viewers connect to.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/connct/screenagent/internal/hub"
)

// Config holds the server settings.
type Config struct {
	Addr string
	// Token, when set, is required as a Bearer token on every request.
	Token string
	// RateLimit is the per-user budget for POST /message, requests per
	// minute. 0 uses the default of 30.
	RateLimit int
}

// Server routes control requests to per-user hubs.
type Server struct {
	cfg  Config
	hubs *hub.Set

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a server over a hub set.
func New(hubs *hub.Set, cfg Config) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	return &Server{
		cfg:      cfg,
		hubs:     hubs,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.authMiddleware)

	r.Get("/devices", s.handleDevices)
	r.Post("/message", s.handleMessage)
	r.Get("/ws/device", s.handleDeviceWS)
	r.Get("/ws/viewer", s.handleViewerWS)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
// No Read/WriteTimeout on the http.Server: they interfere with hijacked
// websocket connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("[Server] Listening on %s\n", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fmt.Println("[Server] Shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" {
			auth := r.Header.Get("Authorization")
			token := strings.TrimPrefix(auth, "Bearer ")
			if token != s.cfg.Token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// userKey identifies the hub a request belongs to. Authentication proper is
// out of scope; the key just partitions hubs.
func userKey(r *http.Request) string {
	if key := r.Header.Get("X-User-Key"); key != "" {
		return key
	}
	if key := r.URL.Query().Get("user"); key != "" {
		return key
	}
	return "default"
}

func (s *Server) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(s.cfg.RateLimit))/60.0, s.cfg.RateLimit)
		s.limiters[key] = l
	}
	return l
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	h := s.hubs.Get(userKey(r))
	devices := h.ListActiveDevices()
	if devices == nil {
		devices = []hub.DeviceInfo{}
	}
	writeJSON(w, http.StatusOK, devices)
}

type messageRequest struct {
	DeviceName string `json:"deviceName"`
	Content    string `json:"content"`
}

// handleMessage is the long-poll send: it blocks until the device responds
// or the hub's timeout fires. The caller always gets either a response or a
// labeled error within the budget.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	key := userKey(r)
	if !s.limiter(key).Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.DeviceName == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deviceName and content are required"})
		return
	}

	h := s.hubs.Get(key)
	response, err := h.SendTask(r.Context(), req.DeviceName, req.Content)
	if err != nil {
		fmt.Printf("[Server] Task for %q failed: %v\n", req.DeviceName, err)
		writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

func (s *Server) handleDeviceWS(w http.ResponseWriter, r *http.Request) {
	s.hubs.Get(userKey(r)).ServeWS(w, r, hub.KindDevice)
}

func (s *Server) handleViewerWS(w http.ResponseWriter, r *http.Request) {
	s.hubs.Get(userKey(r)).ServeWS(w, r, hub.KindViewer)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
