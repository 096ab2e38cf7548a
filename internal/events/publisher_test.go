package events

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPublisherCollects(t *testing.T) {
	p := NewMemoryPublisher()
	e := Event{
		Type:        TypePickup,
		ChannelID:   "ch-1",
		ChannelName: "SIP/picker-1",
		Detail:      map[string]string{"target": "SIP/100-1"},
		At:          time.Now().UTC(),
	}
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := p.Events()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != TypePickup || got[0].Detail["target"] != "SIP/100-1" {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestNopPublisherDiscards(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), Event{Type: TypeChannelHangup}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
}

func TestNewRedisPublisherRequiresClient(t *testing.T) {
	if _, err := NewRedisPublisher(nil, ""); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
