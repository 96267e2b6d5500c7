package usage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSourceReadsMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	if err := os.WriteFile(path, []byte(`{"sessions": 4, "plan": "pro"}`), 0644); err != nil {
		t.Fatalf("write usage file: %v", err)
	}

	got, err := NewFileSource(path).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	snapshot, ok := got.(Snapshot)
	if !ok {
		t.Fatalf("snapshot type = %T", got)
	}
	if snapshot.Metrics["plan"] != "pro" {
		t.Errorf("Metrics = %v", snapshot.Metrics)
	}
	if snapshot.GeneratedAt.IsZero() {
		t.Error("GeneratedAt should come from file modtime")
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "nope.json"))
	if _, err := src.Snapshot(); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileSourceMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("write usage file: %v", err)
	}

	if _, err := NewFileSource(path).Snapshot(); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestStaticSource(t *testing.T) {
	src := &StaticSource{Metrics: map[string]any{"sessions": 0}}

	got, err := src.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if got.(Snapshot).Metrics["sessions"] != 0 {
		t.Errorf("snapshot = %+v", got)
	}
}
