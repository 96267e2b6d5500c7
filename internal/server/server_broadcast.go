package server

import (
	"log"
	"time"
)

// BroadcastSnapshot serializes a usage snapshot once and fans it out to
// every currently authenticated connection. Unauthenticated connections
// never receive snapshots. Returns an error only if the snapshot cannot
// be serialized; delivery itself is best-effort.
func (s *Server) BroadcastSnapshot(snapshot any) error {
	msg, err := NewSnapshotMessage(snapshot)
	if err != nil {
		return err
	}
	s.Broadcast(msg)
	return nil
}

// Broadcast queues a message for delivery to authenticated clients.
// This method is non-blocking; if the server has been stopped it does
// nothing, and if the broadcast queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	// Hold RLock while checking stopped AND sending to avoid a race with
	// Stop(), which takes the write lock, sets stopped=true, then closes
	// the channel.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return
	}

	select {
	case s.broadcast <- msg:
	default:
		log.Printf("server: broadcast channel full, dropping message")
	}
}

// runBroadcaster reads from the broadcast channel and sends to every
// authenticated client. Runs in its own goroutine for the lifetime of
// one start/stop cycle; exits when Stop closes the channel.
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			// The registry decides fan-out membership. A connection mid
			// auth never receives snapshots.
			if !s.registry.IsAuthenticated(client.id) {
				continue
			}
			select {
			case <-client.done:
				// Client is shutting down; the normal close-detection
				// path will deregister it.
			case client.send <- msg:
			default:
				// Client is too slow; drop the message for this client
				// rather than stalling delivery to the others.
				log.Printf("server: client send buffer full, dropping message")
			}
		}
		s.mu.RUnlock()
	}
}

// Disconnect sends a graceful disconnect message to one device, then
// force-closes its connection after a short grace delay. Returns false
// if no live connection has that device id.
func (s *Server) Disconnect(deviceID string) bool {
	s.mu.RLock()
	var target *Client
	for client := range s.clients {
		if client.id == deviceID {
			target = client
			break
		}
	}
	s.mu.RUnlock()

	if target == nil {
		return false
	}

	log.Printf("server: disconnecting device %s", deviceID)
	target.enqueue(NewDisconnectMessage())
	time.AfterFunc(disconnectGrace, target.closeSend)
	return true
}

// DisconnectAll gracefully disconnects every live connection,
// authenticated or not. The server keeps running.
func (s *Server) DisconnectAll() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	log.Printf("server: disconnecting all clients (%d)", len(clients))
	for _, client := range clients {
		client.enqueue(NewDisconnectMessage())
		time.AfterFunc(disconnectGrace, client.closeSend)
	}
}
