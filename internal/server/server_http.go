package server

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "github.com/meterlink/host/internal/errors"
	"github.com/meterlink/host/internal/registry"
	"github.com/meterlink/host/internal/storage"
)

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket pairing connections.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check endpoint for monitoring.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Status endpoint for the CLI (uptime, devices, credential state).
	mux.HandleFunc("/status", s.handleStatus)

	// Loopback-only control endpoints. These let the CLI drive a running
	// host without exposing credential issuance to the LAN.
	mux.HandleFunc("/pair/qr", s.handlePairQR)
	mux.HandleFunc("/devices/", s.handleDeviceRevoke)

	return mux
}

// handleWebSocket upgrades an HTTP connection to a WebSocket pairing
// connection. No bearer token is required at upgrade time: the
// connection starts unauthenticated and must redeem a pairing token
// in-band via an auth message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan Message, channelBufferSize),
		done:   make(chan struct{}),
		server: s,
		state:  StateConnecting,
		// One auth attempt per 2 seconds with a burst of 3. Plenty for a
		// human rescanning a QR code, hostile to a token-guessing loop.
		authLimiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client] = true
	s.mu.Unlock()

	// Every accepted connection is tracked immediately, unauthenticated.
	s.registry.Add(client.id)

	log.Printf("server: client connected (%d total)", s.ClientCount())

	go client.writePump()
	go client.readPump()
}

// removeClient deregisters a connection from both the client table and
// the registry. Called from readPump on exit.
func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	c.state = StateClosed
	s.mu.Unlock()

	s.registry.Remove(c.id)
}

// onAuthenticated runs the post-promotion bookkeeping: the consumed
// credential is cleared (a redeemed QR code must not be reusable even
// for display) and the device is recorded in persistent history.
func (s *Server) onAuthenticated(id, name string) {
	s.mu.Lock()
	s.currentCredential = nil
	history := s.history
	s.mu.Unlock()

	if history == nil {
		return
	}

	now := time.Now()
	if err := history.SaveDevice(&storage.Device{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		LastSeen:  now,
	}); err != nil {
		log.Printf("server: failed to record device history: %v", err)
	}
}

// trackActivity bumps the last-seen timestamp for authenticated
// clients. Failures are logged and ignored; activity tracking is
// best-effort.
func (s *Server) trackActivity(c *Client) {
	if !s.registry.IsAuthenticated(c.id) {
		return
	}

	s.mu.RLock()
	history := s.history
	s.mu.RUnlock()

	if history == nil {
		return
	}
	if err := history.UpdateLastSeen(c.id, time.Now()); err != nil && err != storage.ErrDeviceNotFound {
		log.Printf("server: failed to update last seen: %v", err)
	}
}

// StatusResponse is the JSON body served by /status.
type StatusResponse struct {
	Running          bool                       `json:"running"`
	Addr             string                     `json:"addr"`
	Port             int                        `json:"port"`
	UptimeSeconds    int64                      `json:"uptime_seconds"`
	Fingerprint      string                     `json:"fingerprint,omitempty"`
	ActiveCredential bool                       `json:"active_credential"`
	ConnectedDevices []registry.ConnectedDevice `json:"connected_devices"`
	LastError        string                     `json:"last_error,omitempty"`
}

// handleStatus serves host status for the CLI status command.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	resp := StatusResponse{
		Running:          s.running,
		Addr:             s.addr,
		Port:             s.boundPort,
		Fingerprint:      s.fingerprint,
		ActiveCredential: s.currentCredential != nil,
	}
	if s.running {
		resp.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	if s.lastErr != nil {
		resp.LastError = s.lastErr.Error()
	}
	s.mu.RUnlock()

	resp.ActiveCredential = resp.ActiveCredential && s.tokens.HasActive()
	resp.ConnectedDevices = s.registry.Devices()
	if resp.ConnectedDevices == nil {
		resp.ConnectedDevices = []registry.ConnectedDevice{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handlePairQR issues a fresh pairing credential and returns its JSON
// payload. Loopback-only: the QR secret must never be fetchable from
// the LAN, only by the CLI on the same machine.
func (s *Server) handlePairQR(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := s.IssuePairingCredential()
	if err != nil {
		code, msg := apperrors.ToCodeAndMessage(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error_code": code, "error": msg})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// handleDeviceRevoke handles POST /devices/{id}/revoke. It disconnects
// the device's live connection (if any) and removes it from persistent
// history. Loopback-only, like /pair/qr.
func (s *Server) handleDeviceRevoke(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path shape: /devices/{id}/revoke
	rest := strings.TrimPrefix(r.URL.Path, "/devices/")
	id, ok := strings.CutSuffix(rest, "/revoke")
	if !ok || id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	disconnected := s.Disconnect(id)

	s.mu.RLock()
	history := s.history
	s.mu.RUnlock()
	if history != nil {
		if err := history.DeleteDevice(id); err != nil {
			log.Printf("server: failed to delete device %s: %v", id, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"disconnected": disconnected})
}

// isLoopbackRequest reports whether the request originated from the
// local machine.
func isLoopbackRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
