// Package state implements the device-state store: a three-level
// project/class/command dictionary fed by decoded event commands, with
// blocking wait-for-change semantics. See §4.D of the spec.
package state

import (
	"sync"
	"time"
)

// Store holds one slot per fully-qualified command name ("project.class.command")
// and a waiter registry signalled on every mutation. Both live under the
// same mutex, per the spec's "no lost signal" invariant.
type Store struct {
	mu      sync.Mutex
	slots   map[string]any
	waiters map[string]map[chan struct{}]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		slots:   make(map[string]any),
		waiters: make(map[string]map[chan struct{}]struct{}),
	}
}

// FullName joins the three schema levels into the dotted name Get/WaitFor
// take. class is "" for a flat feature, producing "project..command".
func FullName(project, class, command string) string {
	return project + "." + class + "." + command
}

// Put overwrites the single slot for project.class.command.
func (s *Store) Put(project, class, command string, args map[string]any) {
	name := FullName(project, class, command)
	s.mu.Lock()
	s.slots[name] = deepCopyArgs(args)
	s.signalLocked(name)
	s.mu.Unlock()
}

// PutList appends args to the slot's list, preserving insertion order.
func (s *Store) PutList(project, class, command string, args map[string]any) {
	name := FullName(project, class, command)
	s.mu.Lock()
	list, _ := s.slots[name].([]map[string]any)
	s.slots[name] = append(list, deepCopyArgs(args))
	s.signalLocked(name)
	s.mu.Unlock()
}

// PutMap inserts or overwrites args by key in the slot's map.
func (s *Store) PutMap(project, class, command string, args map[string]any, key string) {
	name := FullName(project, class, command)
	s.mu.Lock()
	m, _ := s.slots[name].(map[string]map[string]any)
	if m == nil {
		m = make(map[string]map[string]any)
	}
	m[key] = deepCopyArgs(args)
	s.slots[name] = m
	s.signalLocked(name)
	s.mu.Unlock()
}

// Get returns a deep copy of the named slot. ok is false if nothing has
// ever been put there.
func (s *Store) Get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.slots[name]
	if !ok {
		return nil, false
	}
	return deepCopySlot(v), true
}

// Snapshot returns a deep copy of every slot in the store.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.slots))
	for name, v := range s.slots {
		out[name] = deepCopySlot(v)
	}
	return out
}

// WaitFor blocks until name is signalled by a Put/PutList/PutMap call, or
// timeout elapses (timeout <= 0 means wait forever). It registers the
// waiter under the lock, releases the lock to block, and reacquires it to
// unregister, so a signal arriving between registration and the blocking
// select is never missed.
func (s *Store) WaitFor(name string, timeout time.Duration) bool {
	ch := make(chan struct{})

	s.mu.Lock()
	set, ok := s.waiters[name]
	if !ok {
		set = make(map[chan struct{}]struct{})
		s.waiters[name] = set
	}
	set[ch] = struct{}{}
	s.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		timer = time.After(timeout)
	}

	var signalled bool
	select {
	case <-ch:
		signalled = true
	case <-timer:
		signalled = false
	}

	s.mu.Lock()
	if set, ok := s.waiters[name]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(s.waiters, name)
		}
	}
	s.mu.Unlock()

	return signalled
}

// signalLocked closes every waiter channel registered for name. Callers
// must hold s.mu.
func (s *Store) signalLocked(name string) {
	for ch := range s.waiters[name] {
		close(ch)
	}
	delete(s.waiters, name)
}

func deepCopyArgs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyArgs(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return x
	}
}

// deepCopySlot copies a whole slot value, which is shaped by which of
// Put/PutList/PutMap last wrote it.
func deepCopySlot(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyArgs(x)
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, m := range x {
			out[i] = deepCopyArgs(m)
		}
		return out
	case map[string]map[string]any:
		out := make(map[string]map[string]any, len(x))
		for k, m := range x {
			out[k] = deepCopyArgs(m)
		}
		return out
	default:
		return x
	}
}
