package channel

import "fmt"

// Control is an out-of-band frame queued to whatever is driving a leg
// (media stack, bridge, test harness).
type Control int

const (
	ControlAnswer Control = iota
	ControlHangup
	ControlRinging
)

func (c Control) String() string {
	switch c {
	case ControlAnswer:
		return "answer"
	case ControlHangup:
		return "hangup"
	case ControlRinging:
		return "ringing"
	default:
		return fmt.Sprintf("control(%d)", int(c))
	}
}

// Controls exposes the leg's control queue for consumers (receive side).
// The queue is written by Core.QueueControl.
func (c *Channel) Controls() <-chan Control { return c.controls }
