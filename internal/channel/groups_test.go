package channel

import (
	"encoding/json"
	"testing"
)

func TestParseGroups(t *testing.T) {
	g, err := ParseGroups("0-2,5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, n := range []int{0, 1, 2, 5} {
		if !g.Contains(n) {
			t.Fatalf("expected group %d in set %s", n, g)
		}
	}
	if g.Contains(3) || g.Contains(4) {
		t.Fatalf("unexpected members in %s", g)
	}
}

func TestParseGroups_Empty(t *testing.T) {
	g, err := ParseGroups("")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g != 0 {
		t.Fatalf("expected empty set, got %s", g)
	}
}

func TestParseGroups_Rejects(t *testing.T) {
	for _, spec := range []string{"64", "-1", "5-2", "abc", "1-x"} {
		if _, err := ParseGroups(spec); err == nil {
			t.Fatalf("expected error for %q", spec)
		}
	}
}

func TestGroupSet_Intersects(t *testing.T) {
	a, _ := ParseGroups("1,3")
	b, _ := ParseGroups("3,7")
	c, _ := ParseGroups("0,2")
	if !a.Intersects(b) {
		t.Fatalf("expected %s to intersect %s", a, b)
	}
	if a.Intersects(c) {
		t.Fatalf("expected %s not to intersect %s", a, c)
	}
	if GroupSet(0).Intersects(GroupSet(0)) {
		t.Fatalf("empty sets must not intersect")
	}
}

func TestGroupSet_JSONUsesRangeForm(t *testing.T) {
	g, _ := ParseGroups("0-5,8")
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"0-5,8"` {
		t.Fatalf("expected range form, got %s", data)
	}

	var back GroupSet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != g {
		t.Fatalf("round trip mismatch: %s vs %s", back, g)
	}
}

func TestSnapshotGroupsRoundTripThroughAPIForm(t *testing.T) {
	groups, _ := ParseGroups("1,3-4")
	ch := New(Params{Name: "SIP/100-1", State: StateRinging, CallGroup: groups})

	data, err := json.Marshal(ch.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		CallGroup string `json:"call_group"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := ParseGroups(decoded.CallGroup); err != nil {
		t.Fatalf("rendered group %q is not accepted by ParseGroups: %v", decoded.CallGroup, err)
	}
	if decoded.CallGroup != "1,3-4" {
		t.Fatalf("expected \"1,3-4\", got %q", decoded.CallGroup)
	}
}

func TestGroupSet_StringRoundTrip(t *testing.T) {
	g, _ := ParseGroups("0-3,8,10-12")
	back, err := ParseGroups(g.String())
	if err != nil {
		t.Fatalf("reparse %q: %v", g.String(), err)
	}
	if back != g {
		t.Fatalf("round trip mismatch: %s vs %s", g, back)
	}
}
