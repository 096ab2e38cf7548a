package pickup

import "strings"

// MarkVariable is the channel variable consulted for mark-based pickup,
// and doubles as the context sentinel that selects mark matching
// ("10@PICKUPMARK" picks up the leg whose PICKUPMARK variable is "10").
const MarkVariable = "PICKUPMARK"

// Target is one alternative of a pickup spec.
//
// When ByMark is set, Exten holds the mark value and Context is unused.
// Otherwise an empty Context means "the requester's own dial context",
// resolved at match time.
type Target struct {
	Exten   string
	Context string
	ByMark  bool
}

// ParseSpec splits a raw identifier list into ordered alternatives:
// "&"-separated entries, each "exten", "exten@context" or "exten@PICKUPMARK"
// (sentinel compared case-insensitively). An empty raw spec returns no
// targets, which callers treat as "use group fallback".
//
// Degenerate entries (empty exten) are kept: they simply never match,
// producing the same "no target" diagnostic as any other miss.
func ParseSpec(raw string) []Target {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "&")
	out := make([]Target, 0, len(parts))
	for _, part := range parts {
		exten := strings.TrimSpace(part)
		ctx := ""
		if i := strings.IndexByte(exten, '@'); i >= 0 {
			exten, ctx = exten[:i], strings.TrimSpace(exten[i+1:])
		}
		out = append(out, Target{
			Exten:   exten,
			Context: ctx,
			ByMark:  strings.EqualFold(ctx, MarkVariable),
		})
	}
	return out
}

// Label renders the alternative for diagnostics.
func (t Target) Label() string {
	if t.ByMark {
		return t.Exten + "@" + MarkVariable
	}
	if t.Context != "" {
		return t.Exten + "@" + t.Context
	}
	return t.Exten
}
