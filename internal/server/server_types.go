package server

import (
	"net/http"
	"os"
	"sync"
	"time"

	// gorilla/websocket is the most popular WebSocket library for Go.
	// It provides a complete implementation of the WebSocket protocol
	// with support for reading/writing messages, ping/pong, and close handling.
	"github.com/gorilla/websocket"

	// Rate limiting for auth attempts to slow down token guessing.
	"golang.org/x/time/rate"

	"github.com/meterlink/host/internal/registry"
	"github.com/meterlink/host/internal/storage"
	"github.com/meterlink/host/internal/token"
)

// channelBufferSize is the buffer size for the broadcast channel and
// per-client send channels. The buffer absorbs bursts of snapshots
// without blocking senders; a full buffer drops messages for the slow
// client rather than stalling the rest.
const channelBufferSize = 64

// authFailureGrace is how long the server waits after queueing an
// authFailure before force-closing the connection. The delay lets the
// failure frame flush so the client can show an explicit error state.
const authFailureGrace = 250 * time.Millisecond

// disconnectGrace is how long the server waits after queueing a
// disconnect message before force-closing the connection.
const disconnectGrace = 250 * time.Millisecond

// DeviceHistory persists display metadata for paired devices so the
// CLI can list them across host restarts. If nil, pairing still works
// but no history is kept.
type DeviceHistory interface {
	SaveDevice(device *storage.Device) error
	UpdateLastSeen(id string, t time.Time) error
	DeleteDevice(id string) error
}

// Server owns the pairing listener and all live connections.
// It handles multiple concurrent clients and ensures snapshots are
// delivered to authenticated clients without blocking the sender.
type Server struct {
	// addr is the address to listen on (e.g., "0.0.0.0:7600").
	addr string

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// tokens issues and redeems single-use pairing tokens.
	tokens *token.Store

	// registry is the source of truth for which connections exist and
	// which are authenticated. It drives broadcast fan-out.
	registry *registry.Registry

	// mu protects the mutable fields below from concurrent access.
	mu sync.RWMutex

	// clients tracks all connected WebSocket clients.
	clients map[*Client]bool

	// running indicates the listener is up and accepting connections.
	running bool

	// stopped prevents sending to a closed broadcast channel. Reset on
	// restart.
	stopped bool

	// broadcast receives snapshot messages to fan out. Recreated on each
	// start so the server can be restarted after Stop.
	broadcast chan Message

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	// boundPort is the actual listening port, resolved after net.Listen.
	// This differs from the addr port when binding to :0.
	boundPort int

	// machineName is embedded in QR payloads so the mobile app can show
	// which host it is pairing with. Defaults to the system hostname.
	machineName string

	// fingerprint is the TLS certificate fingerprint, surfaced via the
	// status endpoint for out-of-band verification.
	fingerprint string

	// history records paired devices for the CLI device list.
	// Set via SetDeviceHistory. Nil disables persistence.
	history DeviceHistory

	// currentCredential is the outstanding QR payload, if any. Cleared
	// when its token is consumed, explicitly invalidated, or the server
	// stops.
	currentCredential *PairingQRPayload

	// startedAt is when the listener came up, for status/uptime.
	startedAt time.Time

	// lastErr is the most recent startup or serve error.
	lastErr error
}

// Client represents a single WebSocket connection.
// Each client has its own goroutine for writing messages, which
// prevents slow clients from blocking the broadcast.
type Client struct {
	// id is the connection id, stable for the connection's lifetime.
	// It doubles as the registry key and the device id.
	id string

	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing messages.
	// The write goroutine reads from this and sends to the WebSocket.
	send chan Message

	// done is closed to signal the client should shut down.
	// Used to coordinate clean shutdown without racing on send channel.
	done chan struct{}

	// sendOnce ensures done is only closed once. Stop(), readPump, and
	// the auth-failure timer may all try to close it.
	sendOnce sync.Once

	// server is a reference back to the parent server.
	server *Server

	// state is the connection lifecycle state. Written only by the
	// client's own readPump goroutine; reads from other goroutines go
	// through server.mu.
	state ConnState

	// authLimiter rate-limits auth attempts on this connection to slow
	// down token guessing. One attempt per 2 seconds with a burst of 3.
	authLimiter *rate.Limiter
}

// NewServer creates a new pairing server.
// Call StartAsync or Start to begin accepting connections.
func NewServer(addr string, tokens *token.Store, reg *registry.Registry) *Server {
	machineName, err := os.Hostname()
	if err != nil {
		machineName = "meterlink host"
	}

	return &Server{
		addr:        addr,
		tokens:      tokens,
		registry:    reg,
		clients:     make(map[*Client]bool),
		broadcast:   make(chan Message, channelBufferSize),
		machineName: machineName,
		upgrader: websocket.Upgrader{
			// The QR token is the authentication boundary, not the
			// Origin header; browsers are not the expected client.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetDeviceHistory wires the persistent device history store.
func (s *Server) SetDeviceHistory(history DeviceHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = history
}

// SetMachineName overrides the host name embedded in QR payloads.
func (s *Server) SetMachineName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.machineName = name
	}
}

// SetFingerprint records the TLS certificate fingerprint for the
// status endpoint.
func (s *Server) SetFingerprint(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = fp
}

// Running reports whether the listener is up.
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Port returns the actual listening port, or 0 if not running.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundPort
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// LastError returns the most recent startup or serve error, if any.
func (s *Server) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClientCount returns the number of live connections (any state).
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ConnectedDevices returns the authenticated devices, oldest first.
func (s *Server) ConnectedDevices() []registry.ConnectedDevice {
	return s.registry.Devices()
}

// setState applies a state machine event for a client under the server
// lock and reports whether the transition was valid.
func (s *Server) setState(c *Client, event ConnEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := Transition(c.state, event)
	if ok {
		c.state = next
	}
	return ok
}

// clientState reads a client's state under the server lock.
func (s *Server) clientState(c *Client) ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.state
}
