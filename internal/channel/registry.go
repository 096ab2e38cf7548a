package channel

import (
	"errors"
	"sync"
)

var (
	// ErrGone marks an operation against a retired (hung up or
	// masqueraded-away) leg.
	ErrGone = errors.New("channel: leg is gone")
	// ErrDuplicate marks a second Add of the same leg.
	ErrDuplicate = errors.New("channel: leg already registered")
)

// Predicate decides whether a leg is the one a scan is looking for.
// It is always invoked with the leg's lock held, so it may use the
// lock-held accessors freely. It must not block and must not touch any
// other channel.
type Predicate func(*Channel) bool

// Registry is the process-wide set of live call legs.
//
// The registry mutex guards membership only. Per-leg state is guarded by
// each leg's own lock; Scan acquires that lock before evaluating a
// predicate so that a matched leg cannot be mutated (or hung up) between
// the match decision and whatever the caller does with it.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Channel
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Channel)}
}

func (r *Registry) Add(ch *Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[ch.ID()]; ok {
		return ErrDuplicate
	}
	r.byID[ch.ID()] = ch
	return nil
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *Registry) Get(id string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byID[id]
	return ch, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshots copies the observable state of every registered leg.
// Intended for listings; takes each leg's lock one at a time.
func (r *Registry) Snapshots() []Snapshot {
	members := r.members()
	out := make([]Snapshot, 0, len(members))
	for _, ch := range members {
		out = append(out, ch.Snapshot())
	}
	return out
}

// members copies the current membership so traversal never holds the
// registry mutex while taking a leg lock.
func (r *Registry) members() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.byID))
	for _, ch := range r.byID {
		out = append(out, ch)
	}
	return out
}

// Scan walks the live legs in no particular order, locking each leg
// before evaluating pred and unlocking it on a non-match. The first match
// is returned still locked; ownership of the lock passes to the caller,
// who must call Release exactly once on every path.
//
// Legs added after the membership copy may or may not be visited; legs
// removed concurrently are skipped via their retired flag. A nil return
// means no match and is a normal outcome.
func (r *Registry) Scan(pred Predicate) *LockedChannel {
	for _, ch := range r.members() {
		ch.Lock()
		if ch.Retired() {
			ch.Unlock()
			continue
		}
		if pred(ch) {
			return &LockedChannel{ch: ch}
		}
		ch.Unlock()
	}
	return nil
}

// LockedChannel is a scan result whose leg lock is held. Release is
// idempotent so every exit path can call it without double-unlock bugs.
type LockedChannel struct {
	ch       *Channel
	released bool
}

// Channel returns the matched leg. The lock is held until Release.
func (l *LockedChannel) Channel() *Channel { return l.ch }

// Release unlocks the leg. Safe to call more than once; only the first
// call unlocks.
func (l *LockedChannel) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	l.ch.Unlock()
}
