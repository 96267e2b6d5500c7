package mdns

import "testing"

func TestServiceType(t *testing.T) {
	// The mobile app matches this string exactly via NSD.
	if ServiceType != "_meterlink._tcp" {
		t.Errorf("ServiceType = %q", ServiceType)
	}
}

func TestAdvertiserStopWithoutStart(t *testing.T) {
	a := NewAdvertiser(Config{Port: 7600})

	// Stop before Start must not panic.
	a.Stop()

	if a.IsRunning() {
		t.Error("advertiser should not be running")
	}
}
