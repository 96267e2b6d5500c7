package server

import (
	"crypto/tls"
	"log"
	"net"
	"net/http"
	"time"

	apperrors "github.com/meterlink/host/internal/errors"
)

// TLSConfig holds the TLS configuration for the server.
type TLSConfig struct {
	// CertPath is the path to the TLS certificate file.
	CertPath string
	// KeyPath is the path to the TLS private key file.
	KeyPath string
}

// StartAsync starts the server in a goroutine and returns any startup
// errors. The returned channel receives nil if startup succeeded, or an
// error if the listener could not be created (e.g., port already in
// use). Calling StartAsync on a running server is a no-op success.
func (s *Server) StartAsync() <-chan error {
	return s.startAsync(nil)
}

// StartAsyncTLS starts the server with TLS. When TLS is configured, the
// server only accepts HTTPS/WSS connections, rejecting any plaintext
// attempts.
func (s *Server) StartAsyncTLS(tlsCfg TLSConfig) <-chan error {
	errCh := make(chan error, 1)

	cert, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
	if err != nil {
		err = apperrors.Wrap(apperrors.CodeServerBindFailed, "failed to load TLS certificate", err)
		s.recordError(err)
		errCh <- err
		close(errCh)
		return errCh
	}

	return s.startAsync(&tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
}

// startAsync is the shared startup path. A nil tlsConfig means
// plaintext WS.
func (s *Server) startAsync(tlsConfig *tls.Config) <-chan error {
	errCh := make(chan error, 1)

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		errCh <- nil
		close(errCh)
		return errCh
	}
	s.mu.Unlock()

	mux := s.createMux()

	// Create the listener first so port conflicts surface immediately
	// instead of inside the serving goroutine.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		bindErr := apperrors.BindFailed(s.addr, err)
		s.recordError(bindErr)
		errCh <- bindErr
		close(errCh)
		return errCh
	}

	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	s.mu.Lock()
	s.httpServer = &http.Server{Handler: mux}
	s.broadcast = make(chan Message, channelBufferSize)
	s.clients = make(map[*Client]bool)
	s.boundPort = ln.Addr().(*net.TCPAddr).Port
	s.running = true
	s.stopped = false
	s.startedAt = time.Now()
	s.lastErr = nil
	srv := s.httpServer
	s.mu.Unlock()

	// Start the broadcast goroutine that fans snapshots out to clients.
	go s.runBroadcaster()

	go func() {
		scheme := "ws"
		if tlsConfig != nil {
			scheme = "wss"
		}
		log.Printf("server: listening on %s (%s)", ln.Addr(), scheme)

		// Signal successful startup before blocking in Serve.
		errCh <- nil
		close(errCh)

		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
			s.recordError(err)
		}
	}()

	return errCh
}

// Stop gracefully shuts down the server. It sends close frames to all
// clients, clears the registry, revokes outstanding pairing tokens, and
// stops accepting new connections. Stopping a stopped server is a
// no-op; the pre-start "not running" condition and the post-stop state
// are indistinguishable to callers.
func (s *Server) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopped = true

	// Signal all clients to stop. writePump sends the close frame and
	// closes the connection when it sees done; we don't write directly
	// here to avoid racing with writePump.
	for client := range s.clients {
		client.closeSend()
	}
	s.clients = make(map[*Client]bool)

	// Close the broadcast channel so runBroadcaster exits. Must happen
	// after stopped=true so concurrent Broadcast calls cannot panic.
	close(s.broadcast)

	s.currentCredential = nil
	srv := s.httpServer
	s.httpServer = nil
	s.boundPort = 0
	s.mu.Unlock()

	// A stopped server has no live connections and no redeemable
	// credentials.
	s.registry.Clear()
	s.tokens.InvalidateAll()

	log.Printf("server: stopped")

	if srv != nil {
		return srv.Close()
	}
	return nil
}

// recordError stores the most recent startup or serve error.
func (s *Server) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}
