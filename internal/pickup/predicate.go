package pickup

import (
	"strings"

	"softswitch/internal/channel"
)

// Eligible reports whether a leg can be picked up at all: parked in an
// alerting state and not currently executing dialplan logic. All match
// predicates are composed with this check.
//
// Like every channel.Predicate, callers run it with the leg's lock held.
func Eligible(ch *channel.Channel) bool {
	return !ch.InDialplan() && ch.State().Alerting()
}

// ByExten matches an eligible leg whose primary or macro extension equals
// exten and whose dial context equals context, both case-insensitively.
func ByExten(exten, context string) channel.Predicate {
	return func(ch *channel.Channel) bool {
		if !Eligible(ch) {
			return false
		}
		if !strings.EqualFold(ch.Exten(), exten) && !strings.EqualFold(ch.MacroExten(), exten) {
			return false
		}
		return strings.EqualFold(ch.DialContext(), context)
	}
}

// ByMark matches an eligible leg whose PICKUPMARK variable equals mark,
// case-insensitively. A leg without the variable never matches.
func ByMark(mark string) channel.Predicate {
	return func(ch *channel.Channel) bool {
		if !Eligible(ch) {
			return false
		}
		v, ok := ch.Var(MarkVariable)
		return ok && strings.EqualFold(v, mark)
	}
}

// ByGroup matches an eligible leg whose call groups intersect the
// requester's pickup groups.
func ByGroup(pickupGroups channel.GroupSet) channel.Predicate {
	return func(ch *channel.Channel) bool {
		return Eligible(ch) && ch.CallGroup().Intersects(pickupGroups)
	}
}
