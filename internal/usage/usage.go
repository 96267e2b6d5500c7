// Package usage supplies the snapshot values broadcast to paired
// devices. The pairing server treats snapshots as opaque JSON; this
// package owns where they come from.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Source produces the current usage snapshot on demand. The host's
// refresh loop calls Snapshot before each broadcast; an error skips
// that broadcast cycle without tearing anything down.
type Source interface {
	Snapshot() (any, error)
}

// Snapshot is the broadcast value produced by the built-in sources.
type Snapshot struct {
	// GeneratedAt is when the underlying metrics were produced.
	GeneratedAt time.Time `json:"generated_at"`

	// Metrics is the provider-specific usage document.
	Metrics map[string]any `json:"metrics"`
}

// FileSource reads a JSON metrics document from disk on every call.
// An external collector (API poller, log aggregator) writes the file;
// the pairing host only relays it.
type FileSource struct {
	// Path is the metrics file location.
	Path string
}

// NewFileSource creates a file-backed snapshot source.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Snapshot reads and parses the metrics file. The file's modification
// time becomes the snapshot's GeneratedAt.
func (f *FileSource) Snapshot() (any, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return nil, fmt.Errorf("usage file: %w", err)
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("usage file: %w", err)
	}

	var metrics map[string]any
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("usage file %s: %w", f.Path, err)
	}

	return Snapshot{
		GeneratedAt: info.ModTime(),
		Metrics:     metrics,
	}, nil
}

// StaticSource returns a fixed snapshot. Used when no usage file is
// configured so the broadcast path stays exercised end to end.
type StaticSource struct {
	// Metrics is the document returned on every call.
	Metrics map[string]any
}

// Snapshot returns the fixed metrics with a fresh timestamp.
func (s *StaticSource) Snapshot() (any, error) {
	return Snapshot{
		GeneratedAt: time.Now(),
		Metrics:     s.Metrics,
	}, nil
}
