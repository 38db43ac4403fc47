package event

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestBusEmitValidatesBeforeSend(t *testing.T) {
	ch := make(chan Event, 1)
	b := NewBus(ch)
	err := b.Emit(Event{Type: "bogus"})
	if err == nil {
		t.Fatalf("expected validation error for unknown event type")
	}
	select {
	case <-ch:
		t.Fatalf("invalid event should not reach the channel")
	default:
	}
}

func TestBusEmitDeliversValidEvent(t *testing.T) {
	ch := make(chan Event, 1)
	b := NewBus(ch)
	if err := b.Emit(NewToken("hi")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got := <-ch
	if got.Token != "hi" {
		t.Fatalf("unexpected token: %q", got.Token)
	}
}

func TestSessionEventRequiresSessionID(t *testing.T) {
	if err := (Event{Type: TypeSession}).Validate(); err == nil {
		t.Fatalf("expected validation error for session event without id")
	}
}

func TestStreamSendWritesDataFrame(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamWriter(&buf)
	if err := s.Send(NewToken("ab")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "data: ") || !strings.HasSuffix(out, "\n\n") {
		t.Fatalf("unexpected frame shape: %q", out)
	}
	var decoded Event
	payload := strings.TrimSuffix(strings.TrimPrefix(out, "data: "), "\n\n")
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("decode frame payload: %v", err)
	}
	if decoded.Type != TypeToken || decoded.Token != "ab" {
		t.Fatalf("unexpected decoded event: %#v", decoded)
	}
}

func TestStreamEventsStopsOnChannelClose(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamWriter(&buf)
	ch := make(chan Event, 2)
	ch <- NewToken("a")
	ch <- NewDone()
	close(ch)

	if err := s.StreamEvents(context.Background(), ch); err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}
	if strings.Count(buf.String(), "data: ") != 2 {
		t.Fatalf("expected two frames written, got: %q", buf.String())
	}
}

func TestStreamEventsRespectsCancellation(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamWriter(&buf)
	ch := make(chan Event)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.StreamEvents(ctx, ch)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}
