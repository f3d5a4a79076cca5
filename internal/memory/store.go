package memory

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrReleased is returned when writing to or subscribing on a released
	// reference.
	ErrReleased = errors.New("reference released")
	// ErrUnknownReference is returned for handles this store never issued.
	ErrUnknownReference = errors.New("unknown reference")
)

type entry struct {
	ref   Ref
	value any
	subs  []*subscription
}

type subscription struct {
	id         SubscriptionID
	ref        RefID
	subscriber string
	cb         Callback
}

// Store owns every memory reference of a runtime.
type Store struct {
	entries map[RefID]*entry
	order   []RefID // Allocation order; Search results follow it
	byOwner map[string][]RefID
	subs    map[SubscriptionID]*subscription
	nextRef RefID
	nextSub SubscriptionID
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[RefID]*entry),
		byOwner: make(map[string][]RefID),
		subs:    make(map[SubscriptionID]*subscription),
	}
}

// Allocate creates a reference owned by owner.
func (s *Store) Allocate(owner string, kind Kind, initial any, visibility Visibility) (Ref, error) {
	if owner == "" {
		return Ref{}, fmt.Errorf("allocate %s: owner is required", kind)
	}
	if kind == "" {
		return Ref{}, fmt.Errorf("allocate for %s: kind is required", owner)
	}
	if err := visibility.Validate(); err != nil {
		return Ref{}, fmt.Errorf("allocate %s for %s: %w", kind, owner, err)
	}

	s.nextRef++
	ref := Ref{ID: s.nextRef, Owner: owner, Kind: kind, Visibility: visibility}
	s.entries[ref.ID] = &entry{ref: ref, value: initial}
	s.order = append(s.order, ref.ID)
	s.byOwner[owner] = append(s.byOwner[owner], ref.ID)

	slog.Debug("memory allocated", "ref", ref.ID, "owner", owner, "kind", kind, "visibility", visibility)
	return ref, nil
}

// Get returns the current value of ref. After release it reports not found.
func (s *Store) Get(ref Ref) (any, bool) {
	e, ok := s.entries[ref.ID]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Search returns every live reference matching c, in allocation order.
func (s *Store) Search(c Criteria) []Ref {
	var out []Ref
	for _, id := range s.order {
		e := s.entries[id]
		if c.matches(e.ref) {
			out = append(out, e.ref)
		}
	}
	return out
}

// Visible returns the references matching c that requester may see.
// lineage lists the owners of the blocks beneath requester on the stack,
// nearest first; inherited references of those owners are visible.
func (s *Store) Visible(requester string, lineage []string, c Criteria) []Ref {
	ancestors := make(map[string]bool, len(lineage))
	for _, owner := range lineage {
		ancestors[owner] = true
	}
	var out []Ref
	for _, ref := range s.Search(c) {
		switch ref.Visibility {
		case Public:
			out = append(out, ref)
		case Private:
			if ref.Owner == requester {
				out = append(out, ref)
			}
		case Inherited:
			if ref.Owner == requester || ancestors[ref.Owner] {
				out = append(out, ref)
			}
		}
	}
	return out
}

// Set replaces the value of ref and notifies its subscribers synchronously
// in registration order. A panicking subscriber is logged and skipped.
func (s *Store) Set(ref Ref, value any) error {
	e, err := s.live(ref)
	if err != nil {
		return fmt.Errorf("set %s: %w", ref, err)
	}
	previous := e.value
	e.value = value

	subs := make([]*subscription, len(e.subs))
	copy(subs, e.subs)
	for _, sub := range subs {
		if _, active := s.subs[sub.id]; !active {
			continue
		}
		s.notify(sub, value, previous)
	}
	return nil
}

func (s *Store) notify(sub *subscription, value, previous any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("memory subscriber panicked",
				"ref", sub.ref,
				"subscriber", sub.subscriber,
				"panic", r,
			)
		}
	}()
	sub.cb(value, previous)
}

// Subscribe registers cb for changes to ref on behalf of subscriber. The
// subscription ends when ref is released or when subscriber's memory is
// released with ReleaseAll.
func (s *Store) Subscribe(ref Ref, subscriber string, cb Callback) (SubscriptionID, error) {
	if cb == nil {
		return 0, fmt.Errorf("subscribe %s: callback is required", ref)
	}
	e, err := s.live(ref)
	if err != nil {
		return 0, fmt.Errorf("subscribe %s: %w", ref, err)
	}
	s.nextSub++
	sub := &subscription{id: s.nextSub, ref: ref.ID, subscriber: subscriber, cb: cb}
	e.subs = append(e.subs, sub)
	s.subs[sub.id] = sub
	return sub.id, nil
}

// Unsubscribe removes a subscription. Returns false if it was already gone.
func (s *Store) Unsubscribe(id SubscriptionID) bool {
	sub, ok := s.subs[id]
	if !ok {
		return false
	}
	delete(s.subs, id)
	if e, ok := s.entries[sub.ref]; ok {
		e.subs = removeSub(e.subs, id)
	}
	return true
}

// Release removes ref and its subscriptions. Idempotent; returns whether
// this call released it.
func (s *Store) Release(ref Ref) bool {
	e, ok := s.entries[ref.ID]
	if !ok {
		return false
	}
	for _, sub := range e.subs {
		delete(s.subs, sub.id)
	}
	delete(s.entries, ref.ID)
	s.order = removeID(s.order, ref.ID)
	if ids := removeID(s.byOwner[e.ref.Owner], ref.ID); len(ids) > 0 {
		s.byOwner[e.ref.Owner] = ids
	} else {
		delete(s.byOwner, e.ref.Owner)
	}
	return true
}

// ReleaseAll releases every reference owned by owner and drops every
// subscription owner holds on other references. Returns the number of
// references released.
func (s *Store) ReleaseAll(owner string) int {
	owned := s.byOwner[owner]
	delete(s.byOwner, owner)

	released := 0
	if len(owned) > 0 {
		gone := make(map[RefID]bool, len(owned))
		for _, id := range owned {
			e := s.entries[id]
			for _, sub := range e.subs {
				delete(s.subs, sub.id)
			}
			delete(s.entries, id)
			gone[id] = true
			released++
		}
		kept := s.order[:0]
		for _, id := range s.order {
			if !gone[id] {
				kept = append(kept, id)
			}
		}
		s.order = kept
	}

	for id, sub := range s.subs {
		if sub.subscriber != owner {
			continue
		}
		delete(s.subs, id)
		if e, ok := s.entries[sub.ref]; ok {
			e.subs = removeSub(e.subs, id)
		}
	}

	if released > 0 {
		slog.Debug("memory released", "owner", owner, "count", released)
	}
	return released
}

// Len returns the number of live references.
func (s *Store) Len() int {
	return len(s.entries)
}

// Owners returns how many distinct owners hold live references.
func (s *Store) Owners() int {
	return len(s.byOwner)
}

func (s *Store) live(ref Ref) (*entry, error) {
	if e, ok := s.entries[ref.ID]; ok {
		return e, nil
	}
	if ref.ID != 0 && ref.ID <= s.nextRef {
		return nil, ErrReleased
	}
	return nil, ErrUnknownReference
}

func removeID(ids []RefID, id RefID) []RefID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func removeSub(subs []*subscription, id SubscriptionID) []*subscription {
	for i, sub := range subs {
		if sub.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
