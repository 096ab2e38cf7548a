package channel

import (
	"sync"

	"github.com/google/uuid"
)

// Channel is one leg of a call.
//
// Locking invariant: the mutable parts of a Channel (state, dialplan
// attachment, variables, routing identity, media binding) are read and
// written only while the channel lock is held. Accessors below document
// this with "lock held". ID and Name are fixed at creation and safe to
// read at any time.
//
// There is no lock hierarchy across channels; code must never hold two
// channel locks at once except Core.Masquerade, which documents its
// ordering.
type Channel struct {
	mu sync.Mutex

	id   string
	name string

	state      State
	inDialplan bool
	retired    bool

	exten       string
	macroExten  string
	dialContext string

	callGroup   GroupSet
	pickupGroup GroupSet

	vars map[string]string

	// media is the opaque handle binding this leg to its media session.
	// Masquerade moves it between legs.
	media string

	controls chan Control
}

// Params describes a new call leg. The host switch (or an operator via the
// API) creates legs; this core only references them.
type Params struct {
	Name        string
	Exten       string
	MacroExten  string
	DialContext string
	State       State
	InDialplan  bool
	CallGroup   GroupSet
	PickupGroup GroupSet
	Variables   map[string]string
}

// controlQueueDepth bounds the per-leg control frame queue.
const controlQueueDepth = 32

// New creates an unregistered call leg.
func New(p Params) *Channel {
	vars := make(map[string]string, len(p.Variables))
	for k, v := range p.Variables {
		vars[k] = v
	}
	return &Channel{
		id:          uuid.NewString(),
		name:        p.Name,
		state:       p.State,
		inDialplan:  p.InDialplan,
		exten:       p.Exten,
		macroExten:  p.MacroExten,
		dialContext: p.DialContext,
		callGroup:   p.CallGroup,
		pickupGroup: p.PickupGroup,
		vars:        vars,
		media:       uuid.NewString(),
		controls:    make(chan Control, controlQueueDepth),
	}
}

// ID is safe without the lock.
func (c *Channel) ID() string { return c.id }

// Name is for diagnostics only, never a lookup key. Safe without the lock.
func (c *Channel) Name() string { return c.name }

func (c *Channel) Lock()   { c.mu.Lock() }
func (c *Channel) Unlock() { c.mu.Unlock() }

// State returns the signaling state. Lock held.
func (c *Channel) State() State { return c.state }

// SetState transitions the signaling state. Lock held.
func (c *Channel) SetState(s State) { c.state = s }

// InDialplan reports whether the leg is mid-execution in a routing
// program. Lock held.
func (c *Channel) InDialplan() bool { return c.inDialplan }

// SetInDialplan marks dialplan attachment. Lock held.
func (c *Channel) SetInDialplan(v bool) { c.inDialplan = v }

// Retired reports whether the leg has been hung up or masqueraded away.
// Lock held.
func (c *Channel) Retired() bool { return c.retired }

// Exten returns the primary dialed extension. Lock held.
func (c *Channel) Exten() string { return c.exten }

// MacroExten returns the macro alias extension, if any. Lock held.
func (c *Channel) MacroExten() string { return c.macroExten }

// DialContext returns the dialplan context the extension was dialed in.
// Lock held.
func (c *Channel) DialContext() string { return c.dialContext }

// CallGroup returns the groups this leg belongs to as a callee. Lock held.
func (c *Channel) CallGroup() GroupSet { return c.callGroup }

// PickupGroup returns the groups this leg may pick up from. Lock held.
func (c *Channel) PickupGroup() GroupSet { return c.pickupGroup }

// Var looks up a channel variable. Lock held. Absence is a normal
// outcome, not an error.
func (c *Channel) Var(name string) (string, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// SetVar sets a channel variable. Lock held.
func (c *Channel) SetVar(name, value string) {
	if c.vars == nil {
		c.vars = make(map[string]string)
	}
	c.vars[name] = value
}

// Media returns the media session handle. Lock held.
func (c *Channel) Media() string { return c.media }

// Snapshot is a lock-free copy of a leg's observable state for listings,
// events and records.
type Snapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	State       string   `json:"state"`
	InDialplan  bool     `json:"in_dialplan"`
	Exten       string   `json:"exten,omitempty"`
	MacroExten  string   `json:"macro_exten,omitempty"`
	DialContext string   `json:"dial_context,omitempty"`
	CallGroup   GroupSet `json:"call_group,omitempty"`
	PickupGroup GroupSet `json:"pickup_group,omitempty"`
}

// Snapshot copies the observable state under the lock.
func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ID:          c.id,
		Name:        c.name,
		State:       c.state.String(),
		InDialplan:  c.inDialplan,
		Exten:       c.exten,
		MacroExten:  c.macroExten,
		DialContext: c.dialContext,
		CallGroup:   c.callGroup,
		PickupGroup: c.pickupGroup,
	}
}
