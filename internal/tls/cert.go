// Package tls provides self-signed certificate generation for the host.
// The certificate secures WebSocket connections on the local network; the
// mobile app pins it via the SHA-256 fingerprint carried in the QR payload
// flow and the mDNS TXT record.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CertConfig holds configuration for certificate generation.
type CertConfig struct {
	// CertPath is the path to write the certificate file.
	// If empty, defaults to ~/.meterlink/certs/host.crt
	CertPath string

	// KeyPath is the path to write the private key file.
	// If empty, defaults to ~/.meterlink/certs/host.key
	KeyPath string

	// Hosts is a list of hostnames and IP addresses for the certificate.
	// If empty, defaults to localhost and 127.0.0.1.
	Hosts []string

	// ValidDuration is how long the certificate should be valid.
	// If zero, defaults to 365 days.
	ValidDuration time.Duration
}

// CertInfo contains information about a loaded or generated certificate.
type CertInfo struct {
	CertPath string
	KeyPath  string

	// Fingerprint is the SHA-256 fingerprint of the certificate,
	// colon-separated uppercase hex (e.g., "AA:BB:CC:...").
	Fingerprint string

	NotBefore time.Time
	NotAfter  time.Time

	// IsGenerated is false if the certificate was loaded from existing files.
	IsGenerated bool
}

// DefaultCertPath returns ~/.meterlink/certs/host.crt.
func DefaultCertPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".meterlink", "certs", "host.crt"), nil
}

// DefaultKeyPath returns ~/.meterlink/certs/host.key.
func DefaultKeyPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".meterlink", "certs", "host.key"), nil
}

// EnsureCertificate loads an existing certificate or generates a new one.
// If both files exist they are loaded; otherwise a fresh self-signed
// certificate is written to the configured paths.
func EnsureCertificate(cfg CertConfig) (*CertInfo, error) {
	certPath := cfg.CertPath
	keyPath := cfg.KeyPath
	if certPath == "" {
		var err error
		certPath, err = DefaultCertPath()
		if err != nil {
			return nil, err
		}
	}
	if keyPath == "" {
		var err error
		keyPath, err = DefaultKeyPath()
		if err != nil {
			return nil, err
		}
	}

	if fileExists(certPath) && fileExists(keyPath) {
		info, err := LoadCertificate(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		return info, nil
	}

	genCfg := cfg
	genCfg.CertPath = certPath
	genCfg.KeyPath = keyPath
	info, err := GenerateCertificate(genCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	return info, nil
}

// LoadCertificate loads an existing certificate and computes its fingerprint.
func LoadCertificate(certPath, keyPath string) (*CertInfo, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}

	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &CertInfo{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: ComputeFingerprint(x509Cert),
		NotBefore:   x509Cert.NotBefore,
		NotAfter:    x509Cert.NotAfter,
	}, nil
}

// GenerateCertificate creates a new self-signed ECDSA P-256 certificate
// and writes the pair to the configured paths.
func GenerateCertificate(cfg CertConfig) (*CertInfo, error) {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}

	validDuration := cfg.ValidDuration
	if validDuration == 0 {
		validDuration = 365 * 24 * time.Hour
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	// Serial numbers must be unique for each certificate.
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(validDuration)

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"meterlink"},
			CommonName:   "meterlink host",
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	// Hosts become SANs so the cert is valid for every name/IP the mobile
	// app might dial.
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CertPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	if err := writePEM(cfg.CertPath, "CERTIFICATE", derBytes, 0644); err != nil {
		return nil, err
	}

	keyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := writePEM(cfg.KeyPath, "PRIVATE KEY", keyBytes, 0600); err != nil {
		return nil, err
	}

	x509Cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}

	return &CertInfo{
		CertPath:    cfg.CertPath,
		KeyPath:     cfg.KeyPath,
		Fingerprint: ComputeFingerprint(x509Cert),
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		IsGenerated: true,
	}, nil
}

// ComputeFingerprint computes the SHA-256 fingerprint of a certificate
// as colon-separated uppercase hex bytes.
func ComputeFingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	hexStr := hex.EncodeToString(hash[:])

	var parts []string
	for i := 0; i < len(hexStr); i += 2 {
		parts = append(parts, strings.ToUpper(hexStr[i:i+2]))
	}
	return strings.Join(parts, ":")
}

// ComputeFingerprintFromPEM computes the SHA-256 fingerprint from
// PEM-encoded certificate data.
func ComputeFingerprintFromPEM(pemData []byte) (string, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	return ComputeFingerprint(cert), nil
}

// LoadTLSConfig loads a server TLS configuration from certificate files.
func LoadTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
