package server

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeAuthMessage(t *testing.T) {
	raw := []byte(`{"type":"auth","payload":{"token":"abc","deviceName":"Phone"},"timestamp":"2026-01-02T15:04:05Z"}`)

	msg, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if msg.Type != MessageTypeAuth {
		t.Errorf("Type = %q", msg.Type)
	}

	payload, err := msg.AuthPayload()
	if err != nil {
		t.Fatalf("AuthPayload failed: %v", err)
	}
	if payload.Token != "abc" || payload.DeviceName != "Phone" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestDecodeMessageMissingType(t *testing.T) {
	if _, err := DecodeMessage([]byte(`{"payload":{}}`)); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestDecodeMessageMalformed(t *testing.T) {
	if _, err := DecodeMessage([]byte(`not json at all`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestAuthPayloadOnWrongType(t *testing.T) {
	msg := NewPingMessage()
	if _, err := msg.AuthPayload(); err == nil {
		t.Error("expected error extracting auth payload from ping")
	}
}

func TestSnapshotMessageSerializesOnce(t *testing.T) {
	snapshot := map[string]any{"sessions": 3, "plan": "pro"}

	msg, err := NewSnapshotMessage(snapshot)
	if err != nil {
		t.Fatalf("NewSnapshotMessage failed: %v", err)
	}
	if msg.Type != MessageTypeSnapshot {
		t.Errorf("Type = %q", msg.Type)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if decoded["plan"] != "pro" {
		t.Errorf("payload = %v", decoded)
	}
}

func TestSnapshotMessageUnserializable(t *testing.T) {
	if _, err := NewSnapshotMessage(func() {}); err == nil {
		t.Error("expected error for unserializable snapshot")
	}
}

func TestControlMessagesCarryNoPayload(t *testing.T) {
	for _, msg := range []Message{
		NewAuthSuccessMessage(),
		NewAuthFailureMessage(),
		NewPingMessage(),
		NewPongMessage(),
		NewDisconnectMessage(),
	} {
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal %s: %v", msg.Type, err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			t.Fatalf("unmarshal %s: %v", msg.Type, err)
		}
		if _, ok := fields["payload"]; ok {
			t.Errorf("%s should omit payload on the wire", msg.Type)
		}
		if _, ok := fields["timestamp"]; !ok {
			t.Errorf("%s should carry a timestamp", msg.Type)
		}
	}
}

func TestMessageTimestampSet(t *testing.T) {
	before := time.Now().Add(-time.Second)
	msg := NewAuthMessage("tok", "Phone")
	if msg.Timestamp.Before(before) {
		t.Errorf("Timestamp = %v, looks unset", msg.Timestamp)
	}
}
