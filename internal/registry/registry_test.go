package registry

import (
	"testing"
	"time"
)

func TestAddAndPromote(t *testing.T) {
	r := New()

	r.Add("conn-1")
	if !r.IsKnown("conn-1") {
		t.Error("expected conn-1 to be known")
	}
	if r.IsAuthenticated("conn-1") {
		t.Error("new connection should not be authenticated")
	}

	r.Promote("conn-1", "Phone")
	if !r.IsAuthenticated("conn-1") {
		t.Error("expected conn-1 to be authenticated after promote")
	}
}

func TestPromoteUnknownIsNoOp(t *testing.T) {
	r := New()

	r.Promote("ghost", "Phone")
	if r.IsAuthenticated("ghost") {
		t.Error("promoting an unknown id should be a no-op")
	}
	if r.IsKnown("ghost") {
		t.Error("promote must not create connections")
	}
}

func TestPromoteIsIdempotent(t *testing.T) {
	r := New()
	r.Add("conn-1")

	r.Promote("conn-1", "Phone")
	first := r.Devices()[0]

	// A second promote must not overwrite the device record.
	r.Promote("conn-1", "Imposter")
	second := r.Devices()[0]

	if second.Name != first.Name || !second.ConnectedAt.Equal(first.ConnectedAt) {
		t.Errorf("second promote changed device record: %+v -> %+v", first, second)
	}
}

func TestRemoveClearsBothTables(t *testing.T) {
	r := New()
	r.Add("conn-1")
	r.Promote("conn-1", "Phone")

	r.Remove("conn-1")

	if r.IsKnown("conn-1") {
		t.Error("removed connection should not be known")
	}
	if r.IsAuthenticated("conn-1") {
		t.Error("removed connection should not be authenticated")
	}
	if len(r.Devices()) != 0 {
		t.Error("removed connection should not appear in device list")
	}
}

func TestAuthenticatedIDsSnapshot(t *testing.T) {
	r := New()
	r.Add("a")
	r.Add("b")
	r.Add("c")
	r.Promote("a", "Phone A")
	r.Promote("c", "Phone C")

	ids := r.AuthenticatedIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 authenticated ids, got %d", len(ids))
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["a"] || !seen["c"] || seen["b"] {
		t.Errorf("unexpected authenticated set: %v", ids)
	}
}

// Invariant check: every authenticated id is also known.
func TestAuthenticatedSubsetOfKnown(t *testing.T) {
	r := New()
	r.Add("a")
	r.Add("b")
	r.Promote("a", "Phone")
	r.Remove("b")

	for _, id := range r.AuthenticatedIDs() {
		if !r.IsKnown(id) {
			t.Errorf("authenticated id %s is not known", id)
		}
	}
}

func TestDevicesSortedByConnectTime(t *testing.T) {
	r := New()

	currentTime := time.Now()
	r.SetTimeNow(func() time.Time { return currentTime })

	r.Add("late")
	r.Add("early")

	r.Promote("early", "First Phone")
	currentTime = currentTime.Add(time.Minute)
	r.Promote("late", "Second Phone")

	devices := r.Devices()
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].ID != "early" || devices[1].ID != "late" {
		t.Errorf("devices not sorted by connect time: %+v", devices)
	}
}

func TestClear(t *testing.T) {
	r := New()
	r.Add("a")
	r.Promote("a", "Phone")

	r.Clear()

	if r.Count() != 0 || len(r.Devices()) != 0 {
		t.Error("expected empty registry after Clear")
	}
}
