// Package mdns provides optional mDNS/Bonjour service advertisement.
//
// When enabled, the host advertises itself on the local network using
// DNS-SD (DNS Service Discovery), letting the mobile app discover it
// without manual IP entry. This is an opt-in feature for security.
//
// Discovery only reveals presence; a pairing token from a freshly scanned
// QR code is still required to authenticate.
package mdns

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type for meterlink hosts.
// Follows the standard Bonjour naming convention: _<service>._<protocol>
const ServiceType = "_meterlink._tcp"

// ProtocolVersion identifies the mDNS protocol version for compatibility.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the pairing server port to advertise.
	Port int

	// Fingerprint is the TLS certificate fingerprint for trust
	// verification before pairing.
	Fingerprint string

	// Name is a human-readable name for this host.
	// Defaults to the system hostname if empty.
	Name string
}

// Advertiser manages mDNS/DNS-SD service registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{
		config: cfg,
	}
}

// Start begins advertising the service via mDNS.
// Safe to call multiple times; subsequent calls are no-ops if already
// running.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := a.config.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "meterlink"
		} else {
			name = hostname
		}
	}

	// TXT records provide information to clients before they connect.
	// DNS TXT strings max out at 255 bytes; a SHA-256 fingerprint is
	// 95 chars, well within the limit.
	txtRecords := []string{
		fmt.Sprintf("version=%s", ProtocolVersion),
		fmt.Sprintf("name=%s", name),
	}
	if a.config.Fingerprint != "" {
		txtRecords = append(txtRecords, fmt.Sprintf("fp=%s", a.config.Fingerprint))
	}

	server, err := zeroconf.Register(
		name,        // Instance name (e.g., "MacBook-Pro")
		ServiceType, // Service type
		"local.",    // Domain
		a.config.Port,
		txtRecords,
		nil, // Network interfaces (nil = all)
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop stops the mDNS advertisement and unregisters the service.
// Safe to call multiple times or on an advertiser that never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// DiscoveredHost represents a host found via mDNS discovery.
type DiscoveredHost struct {
	// Name is the human-readable name of the host.
	Name string

	// Host is the IP address or hostname.
	Host string

	// Port is the pairing server port.
	Port int

	// Fingerprint is the TLS certificate fingerprint (if provided).
	Fingerprint string

	// Version is the protocol version.
	Version string
}

// Discover searches for meterlink hosts on the local network until the
// context is done. Primarily for testing and CLI diagnostics; the mobile
// app uses native NSD.
func Discover(ctx context.Context) ([]DiscoveredHost, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		hosts []DiscoveredHost
		mu    sync.Mutex
		wg    sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			host := DiscoveredHost{
				Name: entry.Instance,
				Port: entry.Port,
			}

			// Prefer IPv4 address
			if len(entry.AddrIPv4) > 0 {
				host.Host = entry.AddrIPv4[0].String()
			} else if len(entry.AddrIPv6) > 0 {
				host.Host = entry.AddrIPv6[0].String()
			}

			for _, txt := range entry.Text {
				switch {
				case len(txt) > 3 && txt[:3] == "fp=":
					host.Fingerprint = txt[3:]
				case len(txt) > 8 && txt[:8] == "version=":
					host.Version = txt[8:]
				case len(txt) > 5 && txt[:5] == "name=":
					host.Name = txt[5:]
				}
			}

			mu.Lock()
			hosts = append(hosts, host)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-ctx.Done()

	// zeroconf closes the entries channel when the context is done.
	wg.Wait()

	return hosts, nil
}
