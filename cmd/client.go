package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	hostTLS "github.com/meterlink/host/internal/tls"
)

// defaultAddr is the host daemon's default listen address.
const defaultAddr = "0.0.0.0:7600"

// loopbackAddr converts a listen address into the loopback dial address
// the CLI uses to reach the daemon on this machine. The credential and
// revoke endpoints are loopback-restricted server-side.
func loopbackAddr(addr string) string {
	if addr == "" {
		addr = defaultAddr
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		port = "7600"
	}
	return net.JoinHostPort("127.0.0.1", port)
}

// loopbackClient builds an HTTP client for talking to the running
// daemon. With TLS, the client trusts exactly the host's own
// certificate and returns its fingerprint for display.
func loopbackClient(noTLS bool, certPath string) (client *http.Client, scheme, fingerprint string, err error) {
	if noTLS {
		return &http.Client{Timeout: 5 * time.Second}, "http", "", nil
	}

	if certPath == "" {
		certPath, err = hostTLS.DefaultCertPath()
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to resolve certificate path: %w", err)
		}
	}

	tlsConfig, fingerprint, err := loadHostCertificate(certPath)
	if err != nil {
		return nil, "", "", err
	}

	client = &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}
	return client, "https", fingerprint, nil
}

// loadHostCertificate loads the host's TLS certificate and creates a
// TLS config that trusts only that certificate. The server name check
// is skipped because the CLI dials 127.0.0.1, which is a SAN on
// generated certs anyway; trust is pinned to the exact certificate.
func loadHostCertificate(certPath string) (*tls.Config, string, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("certificate not found at %s (is the host running with TLS?)", certPath)
		}
		return nil, "", fmt.Errorf("failed to read certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(certPEM) {
		return nil, "", fmt.Errorf("failed to parse certificate from %s", certPath)
	}

	fingerprint, err := hostTLS.ComputeFingerprintFromPEM(certPEM)
	if err != nil {
		return nil, "", fmt.Errorf("failed to compute fingerprint: %w", err)
	}

	return &tls.Config{
		RootCAs:    certPool,
		MinVersion: tls.VersionTLS12,
	}, fingerprint, nil
}
