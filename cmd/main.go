package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.3.0" ./cmd
var Version = "dev"

const usageText = `meterlink - LAN pairing host for the meterlink mobile app

Usage:
  meterlink <command> [options]

Commands:
  start          Start the pairing host daemon
  pair           Show a pairing QR code from the running host
  devices list   List paired devices
  devices revoke <device-id>  Revoke a paired device
  status         Show host daemon status

Run 'meterlink <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usageText)
		return 0
	}

	switch args[1] {
	case "start":
		return runStart(args[2:], stdout, stderr)
	case "pair":
		return runPair(args[2:], stdout, stderr)
	case "devices":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: meterlink devices <list|revoke>")
			return 1
		}
		switch args[2] {
		case "list":
			return runDevicesList(args[3:], stdout, stderr)
		case "revoke":
			return runDevicesRevoke(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown devices command: %s\n", args[2])
			return 1
		}
	case "status":
		return runStatus(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usageText)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "meterlink %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usageText)
		return 1
	}
}
