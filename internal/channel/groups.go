package channel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GroupSet is a set of group numbers 0..63 encoded as a bitmask.
//
// Call groups and pickup groups share this representation: a leg may belong
// to several groups, and pickup eligibility is any non-empty intersection
// between the requester's pickup groups and the target's call groups.
type GroupSet uint64

// Intersects reports whether the two sets share at least one group.
func (g GroupSet) Intersects(o GroupSet) bool { return g&o != 0 }

// Contains reports membership of a single group number.
func (g GroupSet) Contains(n int) bool {
	if n < 0 || n > 63 {
		return false
	}
	return g&(1<<uint(n)) != 0
}

// ParseGroups parses a comma-separated list of group numbers and ranges,
// e.g. "0-5,8". The empty string is the empty set.
func ParseGroups(spec string) (GroupSet, error) {
	var out GroupSet
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, nil
	}
	for _, piece := range strings.Split(spec, ",") {
		piece = strings.TrimSpace(piece)
		lo, hi := piece, piece
		if i := strings.IndexByte(piece, '-'); i >= 0 {
			lo, hi = strings.TrimSpace(piece[:i]), strings.TrimSpace(piece[i+1:])
		}
		start, err := strconv.Atoi(lo)
		if err != nil {
			return 0, fmt.Errorf("group %q is not a number", lo)
		}
		end, err := strconv.Atoi(hi)
		if err != nil {
			return 0, fmt.Errorf("group %q is not a number", hi)
		}
		if start < 0 || end > 63 || start > end {
			return 0, fmt.Errorf("group range %q out of bounds (0-63)", piece)
		}
		for n := start; n <= end; n++ {
			out |= 1 << uint(n)
		}
	}
	return out, nil
}

// MarshalJSON renders the set in the same "0-5,8" form ParseGroups
// accepts, so listings round-trip through the API.
func (g GroupSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

func (g *GroupSet) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseGroups(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

func (g GroupSet) String() string {
	var parts []string
	for n := 0; n <= 63; n++ {
		if !g.Contains(n) {
			continue
		}
		end := n
		for end+1 <= 63 && g.Contains(end+1) {
			end++
		}
		if end > n {
			parts = append(parts, fmt.Sprintf("%d-%d", n, end))
		} else {
			parts = append(parts, strconv.Itoa(n))
		}
		n = end
	}
	return strings.Join(parts, ",")
}
