package server

import "testing"

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name     string
		state    ConnState
		event    ConnEvent
		want     ConnState
		wantOK   bool
	}{
		{"first message starts auth", StateConnecting, EventFirstMessage, StateAuthenticating, true},
		{"auth accepted", StateAuthenticating, EventAuthAccepted, StateAuthenticated, true},
		{"auth rejected closes", StateAuthenticating, EventAuthRejected, StateClosed, true},
		{"close from connecting", StateConnecting, EventClose, StateClosed, true},
		{"close from authenticating", StateAuthenticating, EventClose, StateClosed, true},
		{"close from authenticated", StateAuthenticated, EventClose, StateClosed, true},

		{"accept before any message", StateConnecting, EventAuthAccepted, StateConnecting, false},
		{"reject before any message", StateConnecting, EventAuthRejected, StateConnecting, false},
		{"second first-message ignored", StateAuthenticating, EventFirstMessage, StateAuthenticating, false},
		{"re-auth after authenticated ignored", StateAuthenticated, EventAuthAccepted, StateAuthenticated, false},
		{"no demotion from authenticated", StateAuthenticated, EventAuthRejected, StateAuthenticated, false},
		{"closed is terminal", StateClosed, EventFirstMessage, StateClosed, false},
		{"closed stays closed on close", StateClosed, EventClose, StateClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Transition(tt.state, tt.event)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Transition(%s, %s) = (%s, %v), want (%s, %v)",
					tt.state, tt.event, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNoPathBackToAuthenticating(t *testing.T) {
	// Once authenticated, no event may return the connection to a
	// pre-authenticated state. Re-pairing requires a new connection.
	events := []ConnEvent{EventFirstMessage, EventAuthAccepted, EventAuthRejected}
	for _, event := range events {
		got, _ := Transition(StateAuthenticated, event)
		if got != StateAuthenticated {
			t.Errorf("Transition(authenticated, %s) = %s, want authenticated", event, got)
		}
	}
}

func TestStateStrings(t *testing.T) {
	if StateConnecting.String() != "connecting" || StateClosed.String() != "closed" {
		t.Error("unexpected state names")
	}
	if ConnState(99).String() != "unknown" {
		t.Error("out-of-range state should stringify as unknown")
	}
}
