package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/meterlink/host/internal/config"
	"github.com/meterlink/host/internal/mdns"
	"github.com/meterlink/host/internal/netinfo"
	"github.com/meterlink/host/internal/registry"
	"github.com/meterlink/host/internal/server"
	"github.com/meterlink/host/internal/storage"
	hostTLS "github.com/meterlink/host/internal/tls"
	"github.com/meterlink/host/internal/token"
	"github.com/meterlink/host/internal/usage"
)

func runStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.meterlink/config.toml)")
	addr := fs.String("addr", "", "Listen address (default: "+defaultAddr+")")
	noTLS := fs.Bool("no-tls", false, "Serve plaintext WebSocket (insecure, development only)")
	tokenTTL := fs.Int("token-ttl", 0, "Pairing token lifetime in seconds (default: 60)")
	usageFile := fs.String("usage-file", "", "JSON file with the usage snapshot to broadcast")
	pollMs := fs.Int("poll-ms", 0, "Snapshot broadcast interval in milliseconds (default: 5000)")
	mdnsEnabled := fs.Bool("mdns", false, "Advertise the host via mDNS/Bonjour")
	pairOnStart := fs.Bool("pair", false, "Show a pairing QR code immediately after start")
	hostName := fs.String("name", "", "Display name shown in the mobile app (default: hostname)")
	dbPath := fs.String("db", "", "Path to the device history database (default: ~/.meterlink/meterlink.db)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: meterlink start [options]\n\nStart the pairing host daemon.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Seed a default config on first start so the user has something to
	// edit. Best-effort; the daemon runs fine without a config file.
	if *configPath == "" {
		if defaultPath, err := config.DefaultConfigPath(); err == nil {
			if err := config.WriteDefault(defaultPath); err != nil {
				fmt.Fprintf(stderr, "Warning: could not write default config: %v\n", err)
			}
		}
	}

	// Flags take precedence over the config file.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *tokenTTL > 0 {
		cfg.TokenTTLSeconds = *tokenTTL
	}
	if *usageFile != "" {
		cfg.UsageFile = *usageFile
	}
	if *pollMs > 0 {
		cfg.SnapshotPollMs = *pollMs
	}
	if *hostName != "" {
		cfg.HostName = *hostName
	}
	if *dbPath != "" {
		cfg.DeviceStore = *dbPath
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "no-tls":
			cfg.NoTLS = *noTLS
		case "mdns":
			cfg.MdnsEnabled = *mdnsEnabled
		case "pair":
			cfg.Pair = *pairOnStart
		}
	})

	applyConfigDefaults(cfg)

	if dir := filepath.Dir(cfg.DeviceStore); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			fmt.Fprintf(stderr, "Error: failed to create data directory: %v\n", err)
			return 1
		}
	}

	store, err := storage.NewSQLiteStore(cfg.DeviceStore)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open device store: %v\n", err)
		return 1
	}
	defer store.Close()

	tokens := token.NewStore(token.Config{
		Lifetime: time.Duration(cfg.TokenTTLSeconds) * time.Second,
	})

	srv := server.NewServer(cfg.Addr, tokens, registry.New())
	srv.SetDeviceHistory(store)
	srv.SetMachineName(cfg.HostName)

	var fingerprint string
	if cfg.NoTLS {
		fmt.Fprintf(stderr, "Warning: TLS disabled; pairing traffic is unencrypted\n")
		if err := <-srv.StartAsync(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		certInfo, err := hostTLS.EnsureCertificate(hostTLS.CertConfig{
			CertPath: cfg.TLSCert,
			KeyPath:  cfg.TLSKey,
			Hosts:    []string{"localhost", "127.0.0.1", netinfo.LANHost()},
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if certInfo.IsGenerated {
			fmt.Fprintf(stdout, "Generated TLS certificate: %s\n", certInfo.CertPath)
		}
		fingerprint = certInfo.Fingerprint
		srv.SetFingerprint(fingerprint)

		if err := <-srv.StartAsyncTLS(server.TLSConfig{
			CertPath: certInfo.CertPath,
			KeyPath:  certInfo.KeyPath,
		}); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	defer srv.Stop()

	fmt.Fprintf(stdout, "meterlink host listening on %s (port %d)\n", cfg.Addr, srv.Port())

	if cfg.MdnsEnabled {
		advertiser := mdns.NewAdvertiser(mdns.Config{
			Port:        srv.Port(),
			Fingerprint: fingerprint,
			Name:        cfg.HostName,
		})
		if err := advertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: mDNS advertisement failed: %v\n", err)
		} else {
			fmt.Fprintf(stdout, "Advertising via mDNS as %s\n", mdns.ServiceType)
			defer advertiser.Stop()
		}
	}

	if cfg.Pair {
		payload, err := srv.IssuePairingCredential()
		if err != nil {
			fmt.Fprintf(stderr, "Warning: could not issue pairing credential: %v\n", err)
		} else {
			displayQRPayload(stdout, payload, fingerprint)
		}
	}

	var source usage.Source
	if cfg.UsageFile != "" {
		source = usage.NewFileSource(cfg.UsageFile)
	} else {
		source = &usage.StaticSource{Metrics: map[string]any{}}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(cfg.SnapshotPollMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// No point collecting a snapshot nobody will receive.
			if len(srv.ConnectedDevices()) == 0 {
				continue
			}
			snapshot, err := source.Snapshot()
			if err != nil {
				fmt.Fprintf(stderr, "Warning: snapshot unavailable: %v\n", err)
				continue
			}
			if err := srv.BroadcastSnapshot(snapshot); err != nil {
				fmt.Fprintf(stderr, "Warning: broadcast failed: %v\n", err)
			}

		case <-sig:
			fmt.Fprintln(stdout, "Shutting down...")
			if err := srv.Stop(); err != nil {
				fmt.Fprintf(stderr, "Error during shutdown: %v\n", err)
				return 1
			}
			return 0
		}
	}
}

// applyConfigDefaults fills zero-valued config fields with the
// mobile-ready defaults.
func applyConfigDefaults(cfg *config.Config) {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.TokenTTLSeconds <= 0 {
		cfg.TokenTTLSeconds = 60
	}
	if cfg.SnapshotPollMs <= 0 {
		cfg.SnapshotPollMs = 5000
	}
	if cfg.DeviceStore == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DeviceStore = filepath.Join(home, ".meterlink", "meterlink.db")
		} else {
			cfg.DeviceStore = "meterlink.db"
		}
	}
}
