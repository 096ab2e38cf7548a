package events

import (
	"context"
	"time"
)

// Event is a switch-level notification published for observers (agent
// consoles, wallboards, monitoring).
type Event struct {
	Type Type `json:"type"`

	ChannelID   string `json:"channel_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`

	// Detail carries event-specific fields (target, spec, outcome, ...).
	Detail map[string]string `json:"detail,omitempty"`

	At time.Time `json:"at"`
}

type Type string

const (
	TypeChannelCreated Type = "channel.created"
	TypeChannelHangup  Type = "channel.hangup"
	TypePickup         Type = "channel.pickup"
	TypePickupFailed   Type = "channel.pickup_failed"
)

// Publisher delivers events. Publishing is best-effort; callers log
// failures and never block call flows on them.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards all events. Useful when no broker is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, e Event) error { return nil }
