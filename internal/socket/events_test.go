package socket

import (
	"encoding/json"
	"testing"
)

func TestEncodeEventShape(t *testing.T) {
	raw, err := encodeEvent(EventUserTyping, typingBroadcast{Username: "Alice", IsTyping: true})
	if err != nil {
		t.Fatalf("encodeEvent failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("envelope not valid JSON: %v", err)
	}
	if env.Event != EventUserTyping {
		t.Errorf("event = %q", env.Event)
	}

	var payload typingBroadcast
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if payload.Username != "Alice" || !payload.IsTyping {
		t.Errorf("payload round-trip failed: %+v", payload)
	}
}

func TestEnvelopeDecodesInboundFrame(t *testing.T) {
	frame := []byte(`{"event":"editMessage","data":{"messageId":"64f000000000000000000001","message":"updated"}}`)

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if env.Event != EventEditMessage {
		t.Errorf("event = %q", env.Event)
	}

	var payload editMessagePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload.MessageID != "64f000000000000000000001" || payload.Message != "updated" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestErrorPayloadOmitsEmptyEvent(t *testing.T) {
	raw, err := encodeEvent(EventError, errorPayload{Message: "Something went wrong, please try again"})
	if err != nil {
		t.Fatal(err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(env.Data, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, present := decoded["event"]; present {
		t.Error("empty originating event should be omitted")
	}
	if decoded["message"] == "" {
		t.Error("error message missing")
	}
}
