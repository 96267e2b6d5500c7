package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meterlink/host/internal/server"
)

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "", "Host listen address, used to find the daemon port (default: "+defaultAddr+")")
	tlsCert := fs.String("tls-cert", "", "Path to the host TLS certificate (default: ~/.meterlink/certs/host.crt)")
	noTLS := fs.Bool("no-tls", false, "Use HTTP instead of HTTPS")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	client, scheme, _, err := loopbackClient(*noTLS, *tlsCert)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	reqURL := fmt.Sprintf("%s://%s/status", scheme, loopbackAddr(*addr))
	resp, err := client.Get(reqURL)
	if err != nil {
		fmt.Fprintln(stdout, "Host is not running.")
		fmt.Fprintln(stdout, "Start it with: meterlink start")
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Error: host returned status %d\n", resp.StatusCode)
		return 1
	}

	var status server.StatusResponse
	if err := decodeJSONBody(resp.Body, &status); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	printStatus(stdout, &status)
	return 0
}

// printStatus renders the daemon status for the terminal.
func printStatus(w io.Writer, status *server.StatusResponse) {
	fmt.Fprintf(w, "Running:    yes\n")
	fmt.Fprintf(w, "Address:    %s (port %d)\n", status.Addr, status.Port)
	fmt.Fprintf(w, "Uptime:     %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	if status.Fingerprint != "" {
		fmt.Fprintf(w, "TLS:        %s\n", status.Fingerprint)
	} else {
		fmt.Fprintf(w, "TLS:        disabled\n")
	}
	if status.ActiveCredential {
		fmt.Fprintf(w, "Pairing:    QR code outstanding\n")
	} else {
		fmt.Fprintf(w, "Pairing:    no outstanding code\n")
	}
	if status.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", status.LastError)
	}

	fmt.Fprintf(w, "Devices:    %d connected\n", len(status.ConnectedDevices))
	for _, d := range status.ConnectedDevices {
		fmt.Fprintf(w, "  - %s (connected %s)\n", d.Name, d.ConnectedAt.Local().Format("15:04:05"))
	}
}

// decodeJSONBody decodes a JSON response body into dst.
func decodeJSONBody(body io.Reader, dst any) error {
	return json.NewDecoder(body).Decode(dst)
}
