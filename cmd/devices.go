package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/meterlink/host/internal/storage"
)

// defaultDeviceStorePath resolves the device history database location.
func defaultDeviceStorePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".meterlink", "meterlink.db")
	}
	return "meterlink.db"
}

func runDevicesList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devices list", flag.ContinueOnError)
	fs.SetOutput(stderr)

	dbPath := fs.String("db", "", "Path to the device history database (default: ~/.meterlink/meterlink.db)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	path := *dbPath
	if path == "" {
		path = defaultDeviceStorePath()
	}

	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open device store: %v\n", err)
		return 1
	}
	defer store.Close()

	devices, err := store.ListDevices()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(devices) == 0 {
		fmt.Fprintln(stdout, "No paired devices.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPAIRED\tLAST SEEN")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			d.ID, d.Name,
			d.CreatedAt.Local().Format("2006-01-02 15:04"),
			formatAge(d.LastSeen))
	}
	w.Flush()
	return 0
}

func runDevicesRevoke(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devices revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "", "Host listen address, used to find the daemon port (default: "+defaultAddr+")")
	tlsCert := fs.String("tls-cert", "", "Path to the host TLS certificate (default: ~/.meterlink/certs/host.crt)")
	noTLS := fs.Bool("no-tls", false, "Use HTTP instead of HTTPS")
	dbPath := fs.String("db", "", "Path to the device history database (default: ~/.meterlink/meterlink.db)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: meterlink devices revoke [options] <device-id>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	deviceID := fs.Arg(0)

	// Prefer the running daemon: it disconnects the live connection and
	// cleans up history in one step.
	if revoked, err := revokeViaDaemon(deviceID, *addr, *noTLS, *tlsCert); err == nil {
		if revoked {
			fmt.Fprintf(stdout, "Device %s disconnected and revoked.\n", deviceID)
		} else {
			fmt.Fprintf(stdout, "Device %s revoked (no live connection).\n", deviceID)
		}
		return 0
	}

	// Daemon not running: fall back to editing history directly.
	path := *dbPath
	if path == "" {
		path = defaultDeviceStorePath()
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open device store: %v\n", err)
		return 1
	}
	defer store.Close()

	if err := store.DeleteDevice(deviceID); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Device %s revoked (host not running).\n", deviceID)
	return 0
}

// revokeViaDaemon asks the running daemon to revoke a device. Returns
// whether a live connection was disconnected.
func revokeViaDaemon(deviceID, addr string, noTLS bool, certPath string) (bool, error) {
	client, scheme, _, err := loopbackClient(noTLS, certPath)
	if err != nil {
		return false, err
	}

	reqURL := fmt.Sprintf("%s://%s/devices/%s/revoke", scheme, loopbackAddr(addr), deviceID)
	resp, err := client.Post(reqURL, "application/json", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("host returned status %d", resp.StatusCode)
	}

	var result struct {
		Disconnected bool `json:"disconnected"`
	}
	if err := decodeJSONBody(resp.Body, &result); err != nil {
		return false, err
	}
	return result.Disconnected, nil
}

// formatAge renders a last-seen timestamp as a rough age ("3m ago").
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}
