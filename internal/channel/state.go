package channel

import "fmt"

// State is the signaling state of a call leg.
type State int

const (
	StateDown State = iota
	StateReserved
	StateOffHook
	StateDialing
	// StateRing indicates the leg itself is receiving ringback.
	StateRing
	// StateRinging indicates the leg is alerting (being rung).
	StateRinging
	StateBusy
	StateUp
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateReserved:
		return "reserved"
	case StateOffHook:
		return "offhook"
	case StateDialing:
		return "dialing"
	case StateRing:
		return "ring"
	case StateRinging:
		return "ringing"
	case StateBusy:
		return "busy"
	case StateUp:
		return "up"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseState maps the wire/string form back to a State. Unknown input
// returns StateDown and false.
func ParseState(v string) (State, bool) {
	for s := StateDown; s <= StateUp; s++ {
		if s.String() == v {
			return s, true
		}
	}
	return StateDown, false
}

// Alerting reports whether a leg in this state is being signaled but not
// yet answered. Only alerting legs can be picked up.
func (s State) Alerting() bool {
	return s == StateRing || s == StateRinging
}
