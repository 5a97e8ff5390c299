package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func newJSONAdapter(buf *bytes.Buffer) *SlogAdapter {
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogAdapter(slog.New(h))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	return m
}

func TestSlogAdapterMessage(t *testing.T) {
	var buf bytes.Buffer
	a := newJSONAdapter(&buf)

	a.Log(Event{
		ConnectionID: "conn-1",
		Direction:    DirectionOut,
		Layer:        LayerStomp,
		Category:     CategoryMessage,
		Message:      &MessageEvent{Command: "SUBSCRIBE", Destination: "/events", SubscriptionID: "sub-3"},
	})

	m := decodeLine(t, &buf)
	if m["msg"] != "protocol" {
		t.Errorf("msg = %v, want protocol", m["msg"])
	}
	if m["level"] != "DEBUG" {
		t.Errorf("level = %v, want DEBUG", m["level"])
	}
	if m["command"] != "SUBSCRIBE" || m["destination"] != "/events" || m["subscription"] != "sub-3" {
		t.Errorf("unexpected attrs: %v", m)
	}
	if m["direction"] != "OUT" || m["layer"] != "STOMP" {
		t.Errorf("unexpected enum attrs: %v", m)
	}
}

func TestSlogAdapterErrorsRaiseLevel(t *testing.T) {
	var buf bytes.Buffer
	a := newJSONAdapter(&buf)

	a.Log(Event{
		Layer:    LayerClient,
		Category: CategoryError,
		Topic:    "/actions",
		Error:    &ErrorEventData{Layer: LayerClient, Message: "callback panicked", Context: "dispatch"},
	})

	m := decodeLine(t, &buf)
	if m["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", m["level"])
	}
	if m["topic"] != "/actions" || m["error_context"] != "dispatch" {
		t.Errorf("unexpected attrs: %v", m)
	}
}

func TestSlogAdapterWithLevel(t *testing.T) {
	var buf bytes.Buffer
	a := newJSONAdapter(&buf).WithLevel(slog.LevelInfo)

	code := 1006
	a.Log(Event{
		Category:   CategoryControl,
		ControlMsg: &ControlMsgEvent{Type: ControlMsgClose, CloseCode: &code, Reason: "abnormal"},
	})

	m := decodeLine(t, &buf)
	if m["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", m["level"])
	}
	if m["close_code"] != float64(1006) {
		t.Errorf("close_code = %v, want 1006", m["close_code"])
	}
}
