package pickup

import (
	"context"
	"errors"
	"fmt"

	"softswitch/internal/channel"
	"softswitch/pkg/logger"
)

// Switch is the narrow slice of the switch core the pickup transaction
// needs. channel.Core satisfies it; tests inject fakes.
//
// Masquerade inherits the core's contract: the caller holds target's
// lock, and the swap is all-or-nothing.
type Switch interface {
	Answer(ch *channel.Channel) error
	QueueControl(ch *channel.Channel, ctl channel.Control) error
	Masquerade(target, requester *channel.Channel) error
}

var (
	ErrAnswer       = errors.New("pickup: answer failed")
	ErrQueueControl = errors.New("pickup: control signal failed")
	ErrMasquerade   = errors.New("pickup: leg transfer failed")
)

// perform runs the three-step pickup transaction against a matched,
// still-locked target:
//
//  1. answer the requester
//  2. queue an answer control frame on the requester
//  3. masquerade the target onto the requester
//
// Each step is a hard failure point. Steps already applied are not rolled
// back: a masquerade failure leaves the requester answered. Callers
// needing stricter atomicity must compensate themselves (e.g. hang up
// the requester).
func (s *Service) perform(ctx context.Context, requester, target *channel.Channel) error {
	log := logger.From(ctx)
	log.Debug("call pickup", "target", target.Name(), "requester", requester.Name())

	if err := s.sw.Answer(requester); err != nil {
		log.Warn("unable to answer requester", "requester", requester.Name(), "err", err)
		return fmt.Errorf("%w: %v", ErrAnswer, err)
	}
	if err := s.sw.QueueControl(requester, channel.ControlAnswer); err != nil {
		log.Warn("unable to queue answer on requester", "requester", requester.Name(), "err", err)
		return fmt.Errorf("%w: %v", ErrQueueControl, err)
	}
	if err := s.sw.Masquerade(target, requester); err != nil {
		log.Warn("unable to masquerade target into requester",
			"target", target.Name(), "requester", requester.Name(), "err", err)
		return fmt.Errorf("%w: %v", ErrMasquerade, err)
	}
	return nil
}
