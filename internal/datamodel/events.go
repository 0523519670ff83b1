package datamodel

import (
	"slices"
	"sync"
)

// NodeEventKind identifies a change on a Node.
type NodeEventKind int

const (
	ChildAdded NodeEventKind = iota + 1
	ChildRemoved
	PathAdded
	PathRemoved
)

func (k NodeEventKind) String() string {
	switch k {
	case ChildAdded:
		return "child_added"
	case ChildRemoved:
		return "child_removed"
	case PathAdded:
		return "path_added"
	case PathRemoved:
		return "path_removed"
	default:
		return "unknown"
	}
}

// NodeEvent is delivered to Node subscribers after the node's locks are released.
type NodeEvent struct {
	Kind  NodeEventKind
	Node  *Node
	Key   string // ChildAdded, ChildRemoved
	Child Child  // ChildAdded, ChildRemoved
	Path  *Path  // PathAdded, PathRemoved
}

// PathEventKind identifies a validity transition of a Path.
type PathEventKind int

const (
	PathInvalidated PathEventKind = iota + 1
	PathValidated
)

func (k PathEventKind) String() string {
	switch k {
	case PathInvalidated:
		return "invalidated"
	case PathValidated:
		return "validated"
	default:
		return "unknown"
	}
}

// PathEvent is delivered to Path subscribers on a validity transition.
type PathEvent struct {
	Kind PathEventKind
	Path *Path
}

// subscribers is a small callback list. Callbacks run synchronously on the
// goroutine that emits, outside any lock held by the emitter.
type subscribers[E any] struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(E)
}

func (s *subscribers[E]) add(fn func(E)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[uint64]func(E))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *subscribers[E]) emit(e E) {
	s.mu.Lock()
	if len(s.fns) == 0 {
		s.mu.Unlock()
		return
	}
	ids := make([]uint64, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	fns := make([]func(E), 0, len(ids))
	// Deliver in subscription order.
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.fns[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

func (s *subscribers[E]) clear() {
	s.mu.Lock()
	s.fns = nil
	s.mu.Unlock()
}
