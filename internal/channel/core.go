package channel

import (
	"errors"
	"log/slog"
)

var (
	// ErrQueueFull marks a control frame dropped because the leg's queue
	// is at capacity.
	ErrQueueFull = errors.New("channel: control queue full")
	// ErrNotEligible marks a masquerade against a target that is no
	// longer parked alerting.
	ErrNotEligible = errors.New("channel: leg not eligible for masquerade")
)

// Core is the switch side of the channel layer: answer supervision,
// control frame delivery and the masquerade primitive. It owns no legs;
// it operates on legs registered in its Registry.
type Core struct {
	reg *Registry
	log *slog.Logger
}

func NewCore(reg *Registry, log *slog.Logger) *Core {
	if log == nil {
		log = slog.Default()
	}
	return &Core{reg: reg, log: log}
}

// Answer transitions a leg to up. The leg's lock is acquired internally;
// callers must not hold it.
func (c *Core) Answer(ch *Channel) error {
	ch.Lock()
	defer ch.Unlock()
	if ch.Retired() {
		return ErrGone
	}
	if ch.State() == StateUp {
		return nil
	}
	ch.SetState(StateUp)
	c.log.Debug("leg answered", "channel", ch.Name(), "channel_id", ch.ID())
	return nil
}

// QueueControl delivers an out-of-band frame to the leg's consumer. The
// leg's lock is acquired internally; callers must not hold it.
func (c *Core) QueueControl(ch *Channel, ctl Control) error {
	ch.Lock()
	defer ch.Unlock()
	if ch.Retired() {
		return ErrGone
	}
	select {
	case ch.controls <- ctl:
		return nil
	default:
		return ErrQueueFull
	}
}

// Masquerade makes requester the continuation of the call that was
// alerting as target, retiring target.
//
// Lock contract: the caller holds target's lock (typically handed over by
// Registry.Scan) and must NOT hold requester's lock; Masquerade acquires
// it. This target-then-requester order is the only place two leg locks
// are held at once. Callers must keep a requester leg out of scans while
// its transaction is in flight (the pickup orchestrator marks it
// dialplan-attached and filters it by ID), so no two transactions can
// hold the same pair of locks in opposite order.
//
// The swap is all-or-nothing: every failure return leaves both legs
// exactly as they were.
func (c *Core) Masquerade(target, requester *Channel) error {
	if target == requester {
		return ErrNotEligible
	}
	requester.Lock()
	defer requester.Unlock()

	if target.Retired() || requester.Retired() {
		return ErrGone
	}
	if target.InDialplan() || !target.State().Alerting() {
		return ErrNotEligible
	}

	// Point of no return: nothing below can fail.
	requester.exten = target.exten
	requester.macroExten = target.macroExten
	requester.dialContext = target.dialContext
	requester.media = target.media
	for k, v := range target.vars {
		requester.vars[k] = v
	}

	target.retired = true
	target.state = StateDown
	target.media = ""
	select {
	case target.controls <- ControlHangup:
	default:
	}
	if c.reg != nil {
		c.reg.Remove(target.ID())
	}

	c.log.Info("masquerade complete",
		"target", target.Name(), "target_id", target.ID(),
		"requester", requester.Name(), "requester_id", requester.ID())
	return nil
}

// Hangup retires a leg and removes it from the registry. Idempotent. The
// leg's lock is acquired internally; callers must not hold it.
func (c *Core) Hangup(ch *Channel) error {
	ch.Lock()
	if ch.Retired() {
		ch.Unlock()
		return nil
	}
	ch.retired = true
	ch.state = StateDown
	select {
	case ch.controls <- ControlHangup:
	default:
	}
	ch.Unlock()

	if c.reg != nil {
		c.reg.Remove(ch.ID())
	}
	c.log.Debug("leg hung up", "channel", ch.Name(), "channel_id", ch.ID())
	return nil
}
