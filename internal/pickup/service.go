package pickup

import (
	"context"
	"errors"

	"softswitch/internal/channel"
	"softswitch/pkg/logger"
)

// ErrNoTarget means no alternative of the identifier list (or the group
// fallback) matched any eligible alerting leg.
var ErrNoTarget = errors.New("pickup: no target channel found")

// Scanner is the registry contract the orchestrator needs. The registry
// is injected rather than global so tests can run against synthetic legs.
type Scanner interface {
	Scan(pred channel.Predicate) *channel.LockedChannel
}

// Service orchestrates directed call pickup: parse the identifier list,
// scan for a candidate per alternative, run the transaction on the first
// match.
type Service struct {
	reg Scanner
	sw  Switch
}

// NewService wires the orchestrator. Logging is request-scoped via
// pkg/logger context plumbing, not injected here.
func NewService(reg Scanner, sw Switch) *Service {
	return &Service{reg: reg, sw: sw}
}

// Result identifies the leg a pickup transacted against, captured at
// match time. Zero when no candidate matched.
type Result struct {
	TargetID    string
	TargetName  string
	TargetExten string
	DialContext string
}

// Pickup attempts to pick up one alerting leg on behalf of requester.
//
// Empty rawSpec delegates to group fallback: the first eligible leg whose
// call groups intersect the requester's pickup groups, with the
// transaction result propagated.
//
// Otherwise alternatives are tried in list order. A matched candidate is
// transacted exactly once and ends the invocation successfully even when
// the transaction itself fails; the failure is logged, not returned, and
// later alternatives are not retried: a leg that was matched but lost
// the race to a concurrent answer must not cascade into picking up an
// unrelated call. Alternatives with no candidate log one diagnostic each
// and fall through; ErrNoTarget is returned only when every alternative
// missed.
//
// The returned Result names the matched leg whenever one was found,
// including the group fallback's failure returns; it is zero alongside
// ErrNoTarget.
func (s *Service) Pickup(ctx context.Context, requester *channel.Channel, rawSpec string) (Result, error) {
	log := logger.From(ctx)

	requester.Lock()
	reqContext := requester.DialContext()
	reqGroups := requester.PickupGroup()
	// A leg driving a pickup behaves as if it were executing dialplan
	// logic: it must not be matchable by any scan, its own included,
	// while the pickup is in flight. Without this a requester whose
	// extension matches the identifier list would be handed back to
	// itself still locked, and two opposite-direction pickups could
	// each hold the other's requester lock.
	parked := !requester.InDialplan()
	if parked {
		requester.SetInDialplan(true)
	}
	requester.Unlock()
	if parked {
		defer func() {
			requester.Lock()
			requester.SetInDialplan(false)
			requester.Unlock()
		}()
	}

	targets := ParseSpec(rawSpec)
	if len(targets) == 0 {
		return s.pickupByGroup(ctx, requester, reqGroups)
	}

	for _, t := range targets {
		var pred channel.Predicate
		if t.ByMark {
			pred = ByMark(t.Exten)
		} else {
			effCtx := t.Context
			if effCtx == "" {
				effCtx = reqContext
			}
			pred = ByExten(t.Exten, effCtx)
		}

		locked := s.reg.Scan(notSelf(requester, pred))
		if locked == nil {
			log.Info("no pickup target", "target", t.Label(), "requester", requester.Name())
			continue
		}

		res := resultOf(locked.Channel())
		err := s.perform(ctx, requester, locked.Channel())
		locked.Release()
		if err != nil {
			log.Warn("pickup transaction failed", "target", t.Label(), "err", err)
		}
		// First matched candidate ends the search for this invocation.
		return res, nil
	}
	return Result{}, ErrNoTarget
}

func (s *Service) pickupByGroup(ctx context.Context, requester *channel.Channel, groups channel.GroupSet) (Result, error) {
	log := logger.From(ctx)

	locked := s.reg.Scan(notSelf(requester, ByGroup(groups)))
	if locked == nil {
		log.Info("no pickup target in group", "groups", groups.String(), "requester", requester.Name())
		return Result{}, ErrNoTarget
	}
	defer locked.Release()
	res := resultOf(locked.Channel())
	return res, s.perform(ctx, requester, locked.Channel())
}

// notSelf keeps a requester out of its own scans. The requester's lock is
// the one the transaction acquires, so returning it from Scan would hand
// the caller its own leg still locked.
func notSelf(requester *channel.Channel, pred channel.Predicate) channel.Predicate {
	return func(ch *channel.Channel) bool {
		return ch.ID() != requester.ID() && pred(ch)
	}
}

// resultOf captures the matched leg's identity while its lock is held,
// before the transaction mutates or retires it.
func resultOf(ch *channel.Channel) Result {
	return Result{
		TargetID:    ch.ID(),
		TargetName:  ch.Name(),
		TargetExten: ch.Exten(),
		DialContext: ch.DialContext(),
	}
}
