// Package netinfo resolves the host's LAN-facing addresses for QR payload
// construction and CLI display. Priority: Tailscale IP > LAN IP > loopback.
package netinfo

import "net"

// tailscaleNet is the CGNAT range used by Tailscale (100.64.0.0/10).
var tailscaleNet = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

// PreferredOutboundIP returns the machine's preferred outbound IPv4 address.
// It works by dialing a UDP connection to a public IP (no actual traffic
// sent) and checking which local address was selected by the OS routing
// table. Returns empty string if detection fails.
func PreferredOutboundIP() string {
	// Dial UDP to a public IP. No actual packets are sent for UDP;
	// this just lets us query which local interface the OS would use.
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

// TailscaleIP scans network interfaces for a Tailscale IP address.
// Tailscale uses the 100.64.0.0/10 CGNAT range for its addresses.
// Returns empty string if no Tailscale IP is found.
func TailscaleIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		// Skip loopback and down interfaces
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			ip := ipNet.IP.To4()
			if ip != nil && tailscaleNet.Contains(ip) {
				return ip.String()
			}
		}
	}

	return ""
}

// LANHost returns the best address for a mobile device on the same network
// to reach this machine: Tailscale IP if present, otherwise the preferred
// outbound LAN IP, otherwise loopback as a last resort.
func LANHost() string {
	if ip := TailscaleIP(); ip != "" {
		return ip
	}
	if ip := PreferredOutboundIP(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}
