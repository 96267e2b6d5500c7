package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// closeSend safely signals the client to shut down exactly once.
// This is safe to call multiple times from different goroutines.
// We only close the done channel (not send) to avoid racing with
// ongoing send operations. All senders check done before sending.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// enqueue queues a message for this client without blocking.
// Messages are dropped if the client is shutting down or its send
// buffer is full.
func (c *Client) enqueue(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("server: client %s send buffer full, dropping %s", c.id, msg.Type)
	}
}

// writePump continuously sends messages from the send channel to the
// WebSocket. It also sends periodic protocol-level pings to keep the
// connection alive through NATs and firewalls.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Shutdown signaled; send close frame and exit.
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("server: failed to marshal message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("server: write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket and drives the connection
// state machine. It exits when the client disconnects or the transport
// errors, deregistering the connection on the way out.
func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.closeSend()
		log.Printf("server: client disconnected (%d remaining)", c.server.ClientCount())
	}()

	// Pairing traffic is tiny; 64KB leaves room for large snapshots from
	// misbehaving clients without allowing unbounded frames.
	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	// A pong (response to writePump's ping) proves the client is alive
	// and extends the read deadline.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("server: read error: %v", err)
			}
			return
		}

		// Application-level traffic also counts as liveness.
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		c.server.trackActivity(c)

		msg, err := DecodeMessage(data)
		if err != nil {
			// Permissive on parse: a malformed envelope is dropped
			// silently and the connection stays open.
			log.Printf("server: dropping malformed message: %v", err)
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage dispatches one inbound message through the state
// machine. Messages that are not valid for the current state are
// ignored, never fatal.
func (c *Client) handleMessage(msg Message) {
	// The first inbound message of any kind moves the connection from
	// Connecting to Authenticating.
	c.server.setState(c, EventFirstMessage)

	switch msg.Type {
	case MessageTypePing:
		// Liveness probe, tolerated in any state.
		c.enqueue(NewPongMessage())

	case MessageTypeAuth:
		c.handleAuth(msg)

	case MessageTypeDisconnect:
		c.server.setState(c, EventClose)
		c.closeSend()

	default:
		// Server-originated types echoed back, or unknown types.
		log.Printf("server: ignoring message type %q in state %s", msg.Type, c.server.clientState(c))
	}
}

// handleAuth processes an auth attempt. On success the connection is
// promoted in the registry and receives authSuccess; on failure it
// receives authFailure and is closed after a short grace delay. A
// second auth after authentication is ignored entirely.
func (c *Client) handleAuth(msg Message) {
	state := c.server.clientState(c)
	if state != StateAuthenticating {
		// Includes the already-authenticated case: authentication is set
		// exactly once and never reverts.
		log.Printf("server: ignoring auth in state %s", state)
		return
	}

	if !c.authLimiter.Allow() {
		log.Printf("server: auth rate limit exceeded for client %s", c.id)
		c.failAuth()
		return
	}

	payload, err := msg.AuthPayload()
	if err != nil || payload.Token == "" {
		log.Printf("server: bad auth payload from client %s", c.id)
		c.failAuth()
		return
	}

	if !c.server.tokens.ValidateAndConsume(payload.Token) {
		c.failAuth()
		return
	}

	name := payload.DeviceName
	if name == "" {
		name = "Unknown device"
	}

	c.server.registry.Promote(c.id, name)
	c.server.setState(c, EventAuthAccepted)
	c.server.onAuthenticated(c.id, name)

	c.enqueue(NewAuthSuccessMessage())
	log.Printf("server: device %q authenticated (connection %s)", name, c.id)
}

// failAuth reports an authentication failure to the peer and schedules
// the close. The grace delay lets the authFailure frame flush first.
// The failure is never surfaced as a server-level error: strangers
// scanning stale codes are expected.
func (c *Client) failAuth() {
	c.enqueue(NewAuthFailureMessage())
	c.server.setState(c, EventAuthRejected)
	time.AfterFunc(authFailureGrace, c.closeSend)
}
