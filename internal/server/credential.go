package server

import (
	"log"
	"time"

	apperrors "github.com/meterlink/host/internal/errors"
	"github.com/meterlink/host/internal/netinfo"
)

// PairingQRPayload is the JSON value encoded into a QR code. It is
// scanned visually, never transmitted over the socket; the QR itself is
// the secret-sharing channel. The embedded token is cleartext because
// possession of the payload is exactly the secret being shared.
type PairingQRPayload struct {
	// Host is the LAN-facing IP the mobile app should connect to.
	Host string `json:"host"`

	// Port is the pairing server port.
	Port int `json:"port"`

	// Token is the single-use pairing token.
	Token string `json:"token"`

	// ExpiresAt is when the token stops being redeemable.
	ExpiresAt time.Time `json:"expiresAt"`

	// MachineName identifies this host in the mobile app's pairing UI.
	MachineName string `json:"machineName"`
}

// IssuePairingCredential produces a fresh QR payload bound 1:1 to a new
// single-use token. Issuing a new credential invalidates every prior
// outstanding token (latest-wins): only the most recently displayed QR
// code is ever redeemable.
//
// Fails if the server is not running; a credential pointing at a dead
// listener would only produce confusing client-side timeouts.
func (s *Server) IssuePairingCredential() (*PairingQRPayload, error) {
	s.mu.RLock()
	running := s.running
	port := s.boundPort
	machineName := s.machineName
	s.mu.RUnlock()

	if !running {
		return nil, apperrors.New(apperrors.CodeTokenNotRunning,
			"cannot issue pairing credential: server is not running")
	}

	s.tokens.InvalidateAll()

	tok, err := s.tokens.Issue()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTokenIssue, "failed to issue pairing token", err)
	}

	payload := &PairingQRPayload{
		Host:        netinfo.LANHost(),
		Port:        port,
		Token:       tok.Value,
		ExpiresAt:   tok.ExpiresAt,
		MachineName: machineName,
	}

	s.mu.Lock()
	s.currentCredential = payload
	s.mu.Unlock()

	log.Printf("server: issued pairing credential for %s:%d (expires %s)",
		payload.Host, payload.Port, payload.ExpiresAt.Format(time.RFC3339))

	return payload, nil
}

// InvalidateCurrentCredential revokes the outstanding QR payload and
// every token behind it. Called when the user dismisses the pairing UI.
func (s *Server) InvalidateCurrentCredential() {
	s.tokens.InvalidateAll()

	s.mu.Lock()
	s.currentCredential = nil
	s.mu.Unlock()

	log.Printf("server: invalidated outstanding pairing credential")
}

// CurrentCredential returns the outstanding QR payload, or nil if none
// has been issued or the last one was consumed, invalidated, or the
// server stopped. The payload may still reference an expired token;
// callers should check ExpiresAt for display purposes.
func (s *Server) CurrentCredential() *PairingQRPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentCredential
}
