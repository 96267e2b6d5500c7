package tls

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "host.crt"), filepath.Join(dir, "host.key")
}

func TestGenerateCertificate(t *testing.T) {
	certPath, keyPath := testPaths(t)

	info, err := GenerateCertificate(CertConfig{
		CertPath: certPath,
		KeyPath:  keyPath,
		Hosts:    []string{"localhost", "192.168.1.50"},
	})
	if err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}

	if !info.IsGenerated {
		t.Error("expected IsGenerated for a fresh certificate")
	}
	if info.Fingerprint == "" {
		t.Error("expected non-empty fingerprint")
	}

	// Fingerprint format: 32 colon-separated uppercase hex pairs.
	parts := strings.Split(info.Fingerprint, ":")
	if len(parts) != 32 {
		t.Errorf("expected 32 fingerprint bytes, got %d", len(parts))
	}

	// The key file must not be world-readable.
	stat, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if stat.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, want 0600", stat.Mode().Perm())
	}
}

func TestEnsureCertificateLoadsExisting(t *testing.T) {
	certPath, keyPath := testPaths(t)
	cfg := CertConfig{CertPath: certPath, KeyPath: keyPath}

	first, err := EnsureCertificate(cfg)
	if err != nil {
		t.Fatalf("first EnsureCertificate failed: %v", err)
	}
	second, err := EnsureCertificate(cfg)
	if err != nil {
		t.Fatalf("second EnsureCertificate failed: %v", err)
	}

	if second.IsGenerated {
		t.Error("second call should load, not regenerate")
	}
	if first.Fingerprint != second.Fingerprint {
		t.Error("fingerprint changed between generate and load")
	}
}

func TestFingerprintFromPEMMatches(t *testing.T) {
	certPath, keyPath := testPaths(t)

	info, err := GenerateCertificate(CertConfig{CertPath: certPath, KeyPath: keyPath})
	if err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}

	pemData, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}

	fp, err := ComputeFingerprintFromPEM(pemData)
	if err != nil {
		t.Fatalf("ComputeFingerprintFromPEM failed: %v", err)
	}
	if fp != info.Fingerprint {
		t.Errorf("PEM fingerprint %s != generated fingerprint %s", fp, info.Fingerprint)
	}
}

func TestCertificateValidity(t *testing.T) {
	certPath, keyPath := testPaths(t)

	info, err := GenerateCertificate(CertConfig{
		CertPath:      certPath,
		KeyPath:       keyPath,
		ValidDuration: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}

	lifetime := info.NotAfter.Sub(info.NotBefore)
	if lifetime != 24*time.Hour {
		t.Errorf("certificate lifetime = %v, want 24h", lifetime)
	}
}

func TestLoadTLSConfig(t *testing.T) {
	certPath, keyPath := testPaths(t)

	if _, err := GenerateCertificate(CertConfig{CertPath: certPath, KeyPath: keyPath}); err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}

	cfg, err := LoadTLSConfig(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadTLSConfig failed: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("expected 1 certificate, got %d", len(cfg.Certificates))
	}
}
