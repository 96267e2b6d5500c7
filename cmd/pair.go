package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skip2/go-qrcode"

	apperrors "github.com/meterlink/host/internal/errors"
	"github.com/meterlink/host/internal/server"
)

func runPair(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pair", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "", "Host listen address, used to find the daemon port (default: "+defaultAddr+")")
	tlsCert := fs.String("tls-cert", "", "Path to the host TLS certificate (default: ~/.meterlink/certs/host.crt)")
	noTLS := fs.Bool("no-tls", false, "Use HTTP instead of HTTPS (for hosts started with --no-tls)")
	textOnly := fs.Bool("text", false, "Skip the QR image and print pairing data as text")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: meterlink pair [options]\n\nIssue a pairing QR code from the running host.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nThe QR code is valid for 60 seconds and can only be used once.\n")
		fmt.Fprintf(stderr, "Issuing a new code invalidates any previously displayed one.\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	payload, fingerprint, err := fetchPairingCredential(*addr, *noTLS, *tlsCert)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if action := apperrors.GetNextAction(apperrors.GetCode(err)); action != "" {
			fmt.Fprintf(stderr, "%s\n", action)
		} else {
			fmt.Fprintf(stderr, "\nThe host must be running to issue a pairing code.\n")
			fmt.Fprintf(stderr, "Start it with: meterlink start\n")
		}
		return 1
	}

	if *textOnly {
		displayPairingText(stdout, payload, fingerprint)
	} else {
		displayQRPayload(stdout, payload, fingerprint)
	}
	return 0
}

// fetchPairingCredential asks the running daemon for a fresh QR payload
// over the loopback-restricted /pair/qr endpoint.
func fetchPairingCredential(addr string, noTLS bool, certPath string) (*server.PairingQRPayload, string, error) {
	client, scheme, fingerprint, err := loopbackClient(noTLS, certPath)
	if err != nil {
		return nil, "", err
	}

	reqURL := fmt.Sprintf("%s://%s/pair/qr", scheme, loopbackAddr(addr))
	resp, err := client.Get(reqURL)
	if err != nil {
		return nil, "", fmt.Errorf("could not connect to host at %s: %w", loopbackAddr(addr), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, "", fmt.Errorf("pairing credentials can only be issued from this machine")
	}
	if resp.StatusCode != http.StatusOK {
		var failure struct {
			ErrorCode string `json:"error_code"`
			Error     string `json:"error"`
		}
		// Re-wrap the daemon's coded error so the caller can map it back
		// to a recovery hint.
		if err := json.NewDecoder(resp.Body).Decode(&failure); err == nil && failure.Error != "" {
			return nil, "", apperrors.New(failure.ErrorCode, failure.Error)
		}
		return nil, "", fmt.Errorf("host returned status %d", resp.StatusCode)
	}

	var payload server.PairingQRPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", err
	}
	return &payload, fingerprint, nil
}

// displayQRPayload renders the pairing payload as a terminal QR code
// with a plain-text fallback underneath.
func displayQRPayload(w io.Writer, payload *server.PairingQRPayload, fingerprint string) {
	// The QR encodes the payload JSON directly; the mobile app decodes
	// it and connects to host:port with the embedded token.
	content, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(w, "Error encoding pairing payload: %v\n", err)
		displayPairingText(w, payload, fingerprint)
		return
	}

	qr, err := qrcode.New(string(content), qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Falling back to text display.\n\n")
		displayPairingText(w, payload, fingerprint)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO PAIR")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	// Half-block rendering keeps the code scannable at terminal size.
	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	displayPairingText(w, payload, fingerprint)
}

// displayPairingText prints the pairing data in copyable form.
func displayPairingText(w io.Writer, payload *server.PairingQRPayload, fingerprint string) {
	fmt.Fprintf(w, "  Host:        %s:%d (%s)\n", payload.Host, payload.Port, payload.MachineName)
	fmt.Fprintf(w, "  Token:       %s\n", payload.Token)
	if fingerprint != "" {
		fmt.Fprintf(w, "  Fingerprint: %s\n", fingerprint)
	}
	fmt.Fprintf(w, "  Expires:     %s (%s)\n",
		payload.ExpiresAt.Format("15:04:05"),
		formatRemaining(payload.ExpiresAt))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  Scan or enter this in the meterlink app to pair.")
	fmt.Fprintln(w, "  The token can only be used once.")
	fmt.Fprintln(w, "")
}

// formatRemaining renders the time until expiry, e.g. "in 58s".
func formatRemaining(expiresAt time.Time) string {
	remaining := time.Until(expiresAt).Round(time.Second)
	if remaining <= 0 {
		return "expired"
	}
	return fmt.Sprintf("in %s", remaining)
}
