// Package registry tracks live pairing connections and their
// authentication state. It is the single source of truth for "what
// connections exist and which are authenticated", decoupled from network
// I/O so it is independently testable.
//
// The registry owns bookkeeping only; the server exclusively owns each
// connection's transport. Invariant: an authenticated id is always also a
// known connection, and removal clears both.
package registry

import (
	"sort"
	"sync"
	"time"
)

// ConnectedDevice is the UI-facing view of an authenticated connection.
// It is created only once authentication succeeds and removed when the
// connection closes or is explicitly disconnected.
type ConnectedDevice struct {
	// ID is the connection id (stable for the connection's lifetime).
	ID string `json:"id"`

	// Name is the client-supplied display name (e.g., "iPhone 15 Pro").
	Name string `json:"name"`

	// ConnectedAt is when authentication succeeded.
	ConnectedAt time.Time `json:"connected_at"`
}

// Registry is a mutex-guarded connection table.
// All methods are safe for concurrent use; reads return snapshots and
// never observe a connection mid-transition.
type Registry struct {
	mu sync.RWMutex

	// known holds every tracked connection id, authenticated or not.
	known map[string]bool

	// devices holds the device record for each authenticated connection.
	// Presence in this map is what "authenticated" means.
	devices map[string]ConnectedDevice

	// timeNow returns the current time. Useful for testing.
	timeNow func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		known:   make(map[string]bool),
		devices: make(map[string]ConnectedDevice),
		timeNow: time.Now,
	}
}

// SetTimeNow overrides the clock used for ConnectedAt timestamps.
// Intended for tests.
func (r *Registry) SetTimeNow(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeNow = now
}

// Add registers a new, unauthenticated connection.
// Adding an already-known id is a no-op.
func (r *Registry) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[id] = true
}

// Promote marks a connection as authenticated and records its device
// metadata. No-op if the id is unknown or already authenticated -
// authentication is set exactly once and never reverts.
func (r *Registry) Promote(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.known[id] {
		return
	}
	if _, ok := r.devices[id]; ok {
		return
	}

	r.devices[id] = ConnectedDevice{
		ID:          id,
		Name:        name,
		ConnectedAt: r.timeNow(),
	}
}

// Remove deregisters a connection and any associated device metadata.
// Unknown ids are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.known, id)
	delete(r.devices, id)
}

// Clear removes every connection. Used by server teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known = make(map[string]bool)
	r.devices = make(map[string]ConnectedDevice)
}

// IsKnown reports whether a connection id is tracked.
func (r *Registry) IsKnown(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known[id]
}

// IsAuthenticated reports whether a connection has been promoted.
func (r *Registry) IsAuthenticated(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[id]
	return ok
}

// AuthenticatedIDs returns a snapshot of currently authenticated
// connection ids. This drives broadcast fan-out.
func (r *Registry) AuthenticatedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	return ids
}

// Devices returns a snapshot of connected devices sorted by connect time,
// oldest first. This is the list surfaced to the UI layer.
func (r *Registry) Devices() []ConnectedDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]ConnectedDevice, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ConnectedAt.Before(devices[j].ConnectedAt)
	})
	return devices
}

// Count returns the number of tracked connections (any state).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.known)
}
