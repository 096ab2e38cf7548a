package pickup

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"softswitch/internal/channel"
	"softswitch/pkg/logger"
)

// fakeSwitch counts transaction steps and can fail any of them.
type fakeSwitch struct {
	answerErr error
	queueErr  error
	masqErr   error

	// onAnswer runs inside the Answer step, mid-transaction.
	onAnswer func()

	answers int
	queues  int
	masqs   int

	// masqueraded records which legs were handed to Masquerade as target.
	masqueraded []*channel.Channel
}

func (f *fakeSwitch) Answer(ch *channel.Channel) error {
	f.answers++
	if f.onAnswer != nil {
		f.onAnswer()
	}
	return f.answerErr
}

func (f *fakeSwitch) QueueControl(ch *channel.Channel, ctl channel.Control) error {
	f.queues++
	return f.queueErr
}

func (f *fakeSwitch) Masquerade(target, requester *channel.Channel) error {
	f.masqs++
	f.masqueraded = append(f.masqueraded, target)
	return f.masqErr
}

func requesterLeg(dialCtx string) *channel.Channel {
	return channel.New(channel.Params{Name: "SIP/picker-1", Exten: "300", DialContext: dialCtx, State: channel.StateUp, InDialplan: true})
}

// logCtx returns a context whose logger writes to buf, so tests can count
// diagnostics.
func logCtx(buf *bytes.Buffer) context.Context {
	l := slog.New(slog.NewJSONHandler(buf, nil))
	return logger.With(context.Background(), l)
}

func TestPickup_SingleEligibleMatchTransactsOnce(t *testing.T) {
	reg := channel.NewRegistry()
	target := channel.New(channel.Params{Name: "SIP/ringing-1", Exten: "100", DialContext: "default", State: channel.StateRinging})
	_ = reg.Add(target)

	sw := &fakeSwitch{}
	svc := NewService(reg, sw)

	res, err := svc.Pickup(context.Background(), requesterLeg("default"), "100")
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if sw.answers != 1 || sw.queues != 1 || sw.masqs != 1 {
		t.Fatalf("expected one full transaction, got answers=%d queues=%d masqs=%d", sw.answers, sw.queues, sw.masqs)
	}
	if len(sw.masqueraded) != 1 || sw.masqueraded[0] != target {
		t.Fatalf("transacted wrong target")
	}
	if res.TargetID != target.ID() || res.TargetName != "SIP/ringing-1" || res.TargetExten != "100" {
		t.Fatalf("result does not name the matched leg: %+v", res)
	}
}

func TestPickup_UsesRequesterContextWhenUnqualified(t *testing.T) {
	reg := channel.NewRegistry()
	other := channel.New(channel.Params{Name: "SIP/other-ctx", Exten: "100", DialContext: "lobby", State: channel.StateRinging})
	mine := channel.New(channel.Params{Name: "SIP/my-ctx", Exten: "100", DialContext: "agents", State: channel.StateRinging})
	_ = reg.Add(other)
	_ = reg.Add(mine)

	sw := &fakeSwitch{}
	svc := NewService(reg, sw)

	if _, err := svc.Pickup(context.Background(), requesterLeg("agents"), "100"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if len(sw.masqueraded) != 1 || sw.masqueraded[0] != mine {
		t.Fatalf("expected match in requester's own context")
	}
}

func TestPickup_NoEligibleLegsFailsWithDiagnosticPerAlternative(t *testing.T) {
	reg := channel.NewRegistry()
	// Present but never eligible: attached to dialplan.
	_ = reg.Add(channel.New(channel.Params{Name: "SIP/busy-1", Exten: "100", DialContext: "default", State: channel.StateRinging, InDialplan: true}))

	sw := &fakeSwitch{}
	svc := NewService(reg, sw)

	var buf bytes.Buffer
	res, err := svc.Pickup(logCtx(&buf), requesterLeg("default"), "100&200@default")
	if !errors.Is(err, ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget, got %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("expected zero result with ErrNoTarget, got %+v", res)
	}
	if sw.answers != 0 || sw.masqs != 0 {
		t.Fatalf("no transaction should run without a match")
	}
	if n := strings.Count(buf.String(), "no pickup target"); n != 2 {
		t.Fatalf("expected one diagnostic per alternative, got %d:\n%s", n, buf.String())
	}
}

func TestPickup_AlternativesTriedInListOrder(t *testing.T) {
	reg := channel.NewRegistry()
	// No leg satisfies A@ctx1; a marked leg satisfies B@PICKUPMARK.
	marked := channel.New(channel.Params{
		Name: "SIP/marked-1", Exten: "999", DialContext: "elsewhere", State: channel.StateRinging,
		Variables: map[string]string{MarkVariable: "B"},
	})
	_ = reg.Add(marked)

	sw := &fakeSwitch{}
	svc := NewService(reg, sw)

	var buf bytes.Buffer
	if _, err := svc.Pickup(logCtx(&buf), requesterLeg("default"), "A@ctx1&B@PICKUPMARK"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if len(sw.masqueraded) != 1 || sw.masqueraded[0] != marked {
		t.Fatalf("expected the mark alternative to win")
	}
	// The miss on A@ctx1 is logged before B is tried.
	if !strings.Contains(buf.String(), "A@ctx1") {
		t.Fatalf("expected a diagnostic for the first alternative:\n%s", buf.String())
	}
}

func TestPickup_MatchedCandidateEndsSearchEvenWhenTransactionFails(t *testing.T) {
	reg := channel.NewRegistry()
	first := channel.New(channel.Params{Name: "SIP/first", Exten: "100", DialContext: "default", State: channel.StateRinging})
	second := channel.New(channel.Params{Name: "SIP/second", Exten: "200", DialContext: "default", State: channel.StateRinging})
	_ = reg.Add(first)
	_ = reg.Add(second)

	sw := &fakeSwitch{masqErr: errors.New("boom")}
	svc := NewService(reg, sw)

	// Matching "100" commits the invocation to that candidate; the failed
	// transaction is not retried against "200".
	res, err := svc.Pickup(context.Background(), requesterLeg("default"), "100&200")
	if err != nil {
		t.Fatalf("matched candidate reports success, got %v", err)
	}
	if sw.masqs != 1 {
		t.Fatalf("expected exactly one transaction attempt, got %d", sw.masqs)
	}
	if len(sw.masqueraded) != 1 || sw.masqueraded[0] != first {
		t.Fatalf("expected only the first alternative's candidate to be transacted")
	}
	if res.TargetID != first.ID() {
		t.Fatalf("result must name the matched leg even on transaction failure: %+v", res)
	}
}

func TestPickup_TransactionStopsAtFirstFailedStep(t *testing.T) {
	reg := channel.NewRegistry()
	_ = reg.Add(channel.New(channel.Params{Name: "SIP/ringing-1", Exten: "100", DialContext: "default", State: channel.StateRinging}))

	sw := &fakeSwitch{answerErr: errors.New("no media")}
	svc := NewService(reg, sw)

	if _, err := svc.Pickup(context.Background(), requesterLeg("default"), "100"); err != nil {
		t.Fatalf("matched candidate reports success, got %v", err)
	}
	if sw.answers != 1 || sw.queues != 0 || sw.masqs != 0 {
		t.Fatalf("failed answer must leave the target untouched: answers=%d queues=%d masqs=%d", sw.answers, sw.queues, sw.masqs)
	}
}

func TestPickup_RequesterNeverMatchesItself(t *testing.T) {
	reg := channel.NewRegistry()
	// A parked alerting leg whose own extension matches the identifier
	// list. Matching itself would hand Pickup its own leg still locked.
	requester := channel.New(channel.Params{Name: "SIP/picker-1", Exten: "100", DialContext: "default", State: channel.StateRinging})
	_ = reg.Add(requester)

	sw := &fakeSwitch{}
	svc := NewService(reg, sw)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Pickup(context.Background(), requester, "100")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrNoTarget) {
			t.Fatalf("expected ErrNoTarget, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pickup never returned; requester matched itself")
	}
	if sw.answers != 0 || sw.masqs != 0 {
		t.Fatalf("no transaction expected against the requester's own leg")
	}
}

func TestPickup_RequesterHiddenFromScansWhileInFlight(t *testing.T) {
	reg := channel.NewRegistry()
	target := channel.New(channel.Params{Name: "SIP/ringing-1", Exten: "100", DialContext: "default", State: channel.StateRinging})
	requester := channel.New(channel.Params{Name: "SIP/picker-1", Exten: "200", DialContext: "default", State: channel.StateRinging})
	_ = reg.Add(target)
	_ = reg.Add(requester)

	sw := &fakeSwitch{}
	eligibleMidFlight := false
	sw.onAnswer = func() {
		// Eligible gates every scan predicate, so another pickup must see
		// the requester as ineligible while its own transaction runs.
		requester.Lock()
		eligibleMidFlight = Eligible(requester)
		requester.Unlock()
	}

	svc := NewService(reg, sw)
	if _, err := svc.Pickup(context.Background(), requester, "100"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if eligibleMidFlight {
		t.Fatalf("requester was matchable during its own pickup")
	}

	// Once the pickup is over the leg is parked again and matchable.
	requester.Lock()
	attached := requester.InDialplan()
	requester.Unlock()
	if attached {
		t.Fatalf("dialplan attachment not restored after pickup")
	}
	if got := reg.Scan(ByExten("200", "default")); got == nil {
		t.Fatalf("expected requester matchable again after pickup")
	} else {
		got.Release()
	}
}

func TestPickup_GroupFallbackOnEmptySpec(t *testing.T) {
	reg := channel.NewRegistry()
	callGroup, _ := channel.ParseGroups("2")
	target := channel.New(channel.Params{Name: "SIP/grouped-1", Exten: "100", DialContext: "default", State: channel.StateRinging, CallGroup: callGroup})
	_ = reg.Add(target)

	pickupGroup, _ := channel.ParseGroups("1-3")
	requester := channel.New(channel.Params{Name: "SIP/picker-1", Exten: "300", DialContext: "agents", State: channel.StateUp, InDialplan: true, PickupGroup: pickupGroup})

	sw := &fakeSwitch{}
	svc := NewService(reg, sw)

	res, err := svc.Pickup(context.Background(), requester, "")
	if err != nil {
		t.Fatalf("group pickup: %v", err)
	}
	if len(sw.masqueraded) != 1 || sw.masqueraded[0] != target {
		t.Fatalf("expected group fallback to transact the grouped leg")
	}
	if res.TargetID != target.ID() {
		t.Fatalf("result does not name the grouped leg: %+v", res)
	}
}

func TestPickup_GroupFallbackSkipsRequester(t *testing.T) {
	reg := channel.NewRegistry()
	group, _ := channel.ParseGroups("4")
	// The requester's own call group intersects its pickup group, and it
	// is parked alerting. Itself is still not a pickup candidate.
	requester := channel.New(channel.Params{Name: "SIP/picker-1", DialContext: "agents", State: channel.StateRinging, CallGroup: group, PickupGroup: group})
	_ = reg.Add(requester)

	svc := NewService(reg, &fakeSwitch{})
	if _, err := svc.Pickup(context.Background(), requester, ""); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget, got %v", err)
	}
}

func TestPickup_GroupFallbackPropagatesTransactionFailure(t *testing.T) {
	reg := channel.NewRegistry()
	callGroup, _ := channel.ParseGroups("2")
	grouped := channel.New(channel.Params{Name: "SIP/grouped-1", Exten: "100", DialContext: "default", State: channel.StateRinging, CallGroup: callGroup})
	_ = reg.Add(grouped)

	requester := channel.New(channel.Params{Name: "SIP/picker-1", DialContext: "agents", State: channel.StateUp, InDialplan: true, PickupGroup: callGroup})

	sw := &fakeSwitch{masqErr: errors.New("boom")}
	svc := NewService(reg, sw)

	res, err := svc.Pickup(context.Background(), requester, "")
	if !errors.Is(err, ErrMasquerade) {
		t.Fatalf("expected ErrMasquerade, got %v", err)
	}
	if res.TargetID != grouped.ID() {
		t.Fatalf("group fallback failure must still name the matched leg: %+v", res)
	}
}

func TestPickup_GroupFallbackNoMatch(t *testing.T) {
	reg := channel.NewRegistry()
	requester := channel.New(channel.Params{Name: "SIP/picker-1", DialContext: "agents", State: channel.StateUp, InDialplan: true})

	svc := NewService(reg, &fakeSwitch{})
	if _, err := svc.Pickup(context.Background(), requester, ""); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget, got %v", err)
	}
}

func TestPickup_OnlyFirstOfTwoMarkedLegsTransacted(t *testing.T) {
	reg := channel.NewRegistry()
	mark := map[string]string{MarkVariable: "10"}
	a := channel.New(channel.Params{Name: "SIP/marked-a", Exten: "100", DialContext: "default", State: channel.StateRinging, Variables: mark})
	b := channel.New(channel.Params{Name: "SIP/marked-b", Exten: "200", DialContext: "default", State: channel.StateRinging, Variables: mark})
	_ = reg.Add(a)
	_ = reg.Add(b)

	sw := &fakeSwitch{}
	svc := NewService(reg, sw)

	if _, err := svc.Pickup(context.Background(), requesterLeg("default"), "10@PICKUPMARK"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if sw.masqs != 1 {
		t.Fatalf("expected exactly one transaction, got %d", sw.masqs)
	}

	// Whichever leg traversal skipped stays ringing and untouched.
	var other *channel.Channel
	if sw.masqueraded[0] == a {
		other = b
	} else {
		other = a
	}
	other.Lock()
	state, retired := other.State(), other.Retired()
	other.Unlock()
	if state != channel.StateRinging || retired {
		t.Fatalf("second marked leg was touched: state=%s retired=%v", state, retired)
	}
}

// End-to-end against the real switch core: requester R picks up ringing
// target T, T is retired, R is up and bound to T's call.
func TestPickup_EndToEndMasquerade(t *testing.T) {
	reg := channel.NewRegistry()
	core := channel.NewCore(reg, nil)

	target := channel.New(channel.Params{Name: "SIP/100-1", Exten: "100", DialContext: "default", State: channel.StateRinging})
	requester := channel.New(channel.Params{Name: "SIP/picker-1", Exten: "300", DialContext: "default", State: channel.StateRing, InDialplan: true})
	_ = reg.Add(target)
	_ = reg.Add(requester)

	svc := NewService(reg, core)
	res, err := svc.Pickup(context.Background(), requester, "100")
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if res.TargetID != target.ID() || res.TargetExten != "100" {
		t.Fatalf("result does not name the picked-up leg: %+v", res)
	}

	requester.Lock()
	state, exten, dialCtx := requester.State(), requester.Exten(), requester.DialContext()
	requester.Unlock()
	if state != channel.StateUp {
		t.Fatalf("requester not answered: %s", state)
	}
	if exten != "100" || dialCtx != "default" {
		t.Fatalf("requester did not assume target call: exten=%q context=%q", exten, dialCtx)
	}

	target.Lock()
	if !target.Retired() {
		t.Fatalf("target not retired")
	}
	target.Unlock()
	if _, ok := reg.Get(target.ID()); ok {
		t.Fatalf("retired target still registered")
	}

	// The answer control frame reached the requester's queue.
	select {
	case ctl := <-requester.Controls():
		if ctl != channel.ControlAnswer {
			t.Fatalf("expected answer frame, got %s", ctl)
		}
	default:
		t.Fatalf("expected answer frame on requester")
	}
}
