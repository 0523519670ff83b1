package datamodel

import (
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// SegmentKind tells how a path identifier was resolved.
type SegmentKind int

const (
	Static SegmentKind = iota + 1
	Dynamic
)

func (k SegmentKind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// Segment is one resolved identifier of a Path.
type Segment struct {
	Identifier  string
	Path        string // literal path up to and including Identifier
	Kind        SegmentKind
	Type        reflect.Type
	Description Description

	index []int // static field index
}

// Member is a child identifier of the value a path addresses.
type Member struct {
	Identifier string `json:"identifier"`
	Dynamic    bool   `json:"dynamic,omitempty"`
}

type watch struct {
	node *Node
	gen  uint64
}

var pathIDs atomic.Uint32

// Path is a parsed, cached address into a data model tree. It is either fully
// resolvable against the current tree (valid) or invalid; there is no partial
// state. Invalid is a normal condition, for instance while a module starts up.
//
// A Path registers itself with its root's Registry and watches every node its
// resolution touches. Callers must Close it when done.
type Path struct {
	id        uint32
	root      *Node
	literal   string
	idents    []string
	malformed bool

	mu       sync.Mutex
	segments []Segment
	pinned   []reflect.Type // segment types of the first full resolution
	valid    bool
	watched  []watch
	closed   bool
	pending  []PathEvent
	draining bool

	subs subscribers[PathEvent]
}

// NewPath parses path and resolves it against root. The only error is ErrNilRoot;
// unresolvable and malformed paths are returned invalid. An unbound root is
// bound without a module.
func NewPath(root Model, path string) (*Path, error) {
	if root == nil || !present(reflect.ValueOf(root)) {
		return nil, ErrNilRoot
	}
	idents, ok := SplitPath(path)
	p := &Path{
		id:        pathIDs.Add(1),
		root:      adopt(root, "", Description{}),
		literal:   path,
		idents:    idents,
		malformed: !ok,
	}
	p.root.registry.Register(p)

	p.mu.Lock()
	p.resolveLocked()
	p.pending = nil
	p.mu.Unlock()
	return p, nil
}

// String returns the literal path, the only persisted form of a Path.
func (p *Path) String() string { return p.literal }

// Root returns the node the path was created against.
func (p *Path) Root() *Node { return p.root }

// IsValid reports whether every segment currently resolves.
func (p *Path) IsValid() bool {
	p.mu.Lock()
	changed := p.syncLocked()
	valid := p.valid
	p.mu.Unlock()
	if changed {
		p.deliver()
	}
	return valid
}

// Type returns the declared type of the last segment, or of the root for the
// empty path. It is known without any current value and is nil while invalid.
func (p *Path) Type() reflect.Type {
	segs, ok := p.current()
	if !ok {
		return nil
	}
	if len(segs) == 0 {
		return p.root.selfValue().Type()
	}
	return segs[len(segs)-1].Type
}

// Segments returns a copy of the resolved segments, nil while invalid.
func (p *Path) Segments() []Segment {
	segs, ok := p.current()
	if !ok {
		return nil
	}
	return slices.Clone(segs)
}

// Value reads the current value along the cached chain. Any absent value on the
// way, such as a nil pointer or a child removed since resolution, yields
// (nil, false).
func (p *Path) Value() (any, bool) {
	segs, ok := p.current()
	if !ok {
		return nil, false
	}
	cur, guard, ok := p.locate(segs)
	if !ok {
		return nil, false
	}
	return finish(guard, cur)
}

// Members lists the child identifiers of the addressed value: static properties
// first, then dynamic children in insertion order. Hidden identifiers are left
// out.
func (p *Path) Members() []Member {
	segs, ok := p.current()
	if !ok {
		return nil
	}
	typ := p.root.selfValue().Type()
	if len(segs) > 0 {
		typ = segs[len(segs)-1].Type
	}
	cur, _, located := p.locate(segs)

	var node *Node
	if located {
		if m, ok := modelOf(cur); ok {
			node = m.DataModel()
		}
		if typ.Kind() == reflect.Interface && present(cur) {
			typ = cur.Type()
		}
	}

	var out []Member
	for _, prop := range schemaProperties(typ) {
		if node != nil && node.IsHidden(prop.Name) {
			continue
		}
		out = append(out, Member{Identifier: prop.Name})
	}
	if node != nil {
		node.mu.RLock()
		for _, key := range node.order {
			if _, hidden := node.hidden[key]; !hidden {
				out = append(out, Member{Identifier: key, Dynamic: true})
			}
		}
		node.mu.RUnlock()
	}
	return out
}

// Subscribe registers fn for PathInvalidated and PathValidated events. Each
// validity transition is delivered exactly once, in order.
func (p *Path) Subscribe(fn func(PathEvent)) (cancel func()) {
	return p.subs.add(fn)
}

// Close unregisters the path from its root and every watched node and drops all
// subscribers. A closed path is invalid. Close is idempotent.
func (p *Path) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	watched := p.watched
	p.watched = nil
	p.valid = false
	p.segments = nil
	p.pending = nil
	p.mu.Unlock()

	for _, w := range watched {
		w.node.registry.unwatch(p)
	}
	p.root.registry.Unregister(p)
	p.subs.clear()
}

// refresh re-resolves the chain after a watched node changed shape.
func (p *Path) refresh() {
	p.mu.Lock()
	changed := false
	if !p.closed {
		changed = p.resolveLocked()
	}
	p.mu.Unlock()
	if changed {
		p.deliver()
	}
}

// current returns the cached segments after a staleness check.
func (p *Path) current() ([]Segment, bool) {
	p.mu.Lock()
	changed := p.syncLocked()
	segs, valid := p.segments, p.valid
	p.mu.Unlock()
	if changed {
		p.deliver()
	}
	return segs, valid
}

// syncLocked re-resolves when any watched node moved past the generation seen at
// the last resolution.
func (p *Path) syncLocked() bool {
	if p.closed {
		return false
	}
	for _, w := range p.watched {
		if w.node.Generation() != w.gen {
			return p.resolveLocked()
		}
	}
	return false
}

// resolveLocked walks the tree, updates the cached state and queues an event
// when validity flipped.
func (p *Path) resolveLocked() bool {
	segs, touched, ok := p.walk()
	if ok {
		if p.pinned == nil {
			p.pinned = make([]reflect.Type, len(segs))
			for i, s := range segs {
				p.pinned[i] = s.Type
			}
		} else if !matchesPinned(segs, p.pinned) {
			ok = false
		}
	}
	p.rewatchLocked(touched)

	prev := p.valid
	p.valid = ok
	if ok {
		p.segments = segs
	} else {
		p.segments = nil
	}
	if prev == ok {
		return false
	}
	kind := PathInvalidated
	if ok {
		kind = PathValidated
	}
	p.pending = append(p.pending, PathEvent{Kind: kind, Path: p})
	return true
}

func matchesPinned(segs []Segment, pinned []reflect.Type) bool {
	if len(segs) != len(pinned) {
		return false
	}
	for i, s := range segs {
		if s.Type != pinned[i] {
			return false
		}
	}
	return true
}

func (p *Path) rewatchLocked(touched []watch) {
	keep := make(map[*Node]struct{}, len(touched))
	for _, w := range touched {
		keep[w.node] = struct{}{}
	}
	old := make(map[*Node]struct{}, len(p.watched))
	for _, w := range p.watched {
		old[w.node] = struct{}{}
		if _, ok := keep[w.node]; !ok {
			w.node.registry.unwatch(p)
		}
	}
	for _, w := range touched {
		if _, ok := old[w.node]; !ok {
			w.node.registry.watch(p)
		}
	}
	p.watched = touched
}

// deliver hands queued events to subscribers outside p.mu. Only one goroutine
// drains at a time so events arrive in the order they were queued; events queued
// by a subscriber callback are picked up by the running drain.
func (p *Path) deliver() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	for len(p.pending) > 0 {
		e := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()
		p.subs.emit(e)
		p.mu.Lock()
	}
	p.draining = false
	p.mu.Unlock()
}

// walk resolves every identifier against the current tree. Each identifier is
// looked up as a static property of the current type first, then as a dynamic
// child of the current node. touched lists every node visited with the
// generation read before it was inspected.
func (p *Path) walk() (segs []Segment, touched []watch, ok bool) {
	if p.malformed {
		return nil, nil, false
	}

	node := p.root
	touched = append(touched, watch{node: node, gen: node.Generation()})
	node.mu.RLock()
	destroyed, cur := node.destroyed, node.self
	node.mu.RUnlock()
	if destroyed {
		return nil, touched, false
	}
	curType := cur.Type()
	guard := node

	segs = make([]Segment, 0, len(p.idents))
	for i, ident := range p.idents {
		var child Child
		if node != nil {
			var hidden bool
			child, hidden, destroyed = node.lookup(ident)
			if hidden || destroyed {
				return nil, touched, false
			}
		}

		seg := Segment{Identifier: ident, Path: p.literal[:segmentEnd(p.idents, i)]}
		schemaType := curType
		if curType.Kind() == reflect.Interface && present(cur) {
			schemaType = cur.Type()
		}
		if prop, found := SchemaOf(schemaType).Property(ident); found {
			seg.Kind = Static
			seg.Type = addressed(prop.Type)
			seg.Description = prop.Description
			seg.index = prop.index
			if present(cur) {
				cur = snapshotField(guard, cur, prop.index)
			} else {
				cur = reflect.Value{}
			}
			curType = prop.Type
		} else if child != nil {
			seg.Kind = Dynamic
			seg.Type = child.Type()
			seg.Description = child.Description()
			cur = reflect.ValueOf(child.Value())
			curType = child.Type()
		} else {
			return nil, touched, false
		}
		segs = append(segs, seg)

		node = nil
		if m, isModel := modelOf(cur); isModel {
			node = adopt(m, guard.Module(), seg.Description)
			touched = append(touched, watch{node: node, gen: node.Generation()})
			if node.Destroyed() {
				return nil, touched, false
			}
			guard = node
		}
	}
	return segs, touched, true
}

// segmentEnd returns the length of the literal prefix ending with idents[i].
func segmentEnd(idents []string, i int) int {
	n := 0
	for j := 0; j <= i; j++ {
		n += len(idents[j])
	}
	return n + i
}

// locate follows the cached chain to the current value without re-resolving.
// guard is the nearest enclosing node, whose lock covers static reads of cur.
func (p *Path) locate(segs []Segment) (cur reflect.Value, guard *Node, ok bool) {
	guard = p.root
	cur = guard.selfValue()

	for _, seg := range segs {
		if !present(cur) {
			return reflect.Value{}, nil, false
		}
		switch seg.Kind {
		case Static:
			cur = snapshotField(guard, cur, seg.index)
		case Dynamic:
			m, isModel := modelOf(cur)
			if !isModel {
				return reflect.Value{}, nil, false
			}
			child, hidden, destroyed := m.DataModel().lookup(seg.Identifier)
			if child == nil || hidden || destroyed || child.Type() != seg.Type {
				return reflect.Value{}, nil, false
			}
			cur = reflect.ValueOf(child.Value())
		}
		if m, isModel := modelOf(cur); isModel {
			guard = m.DataModel()
		}
	}
	if !present(cur) {
		return reflect.Value{}, nil, false
	}
	return cur, guard, true
}

// finish turns the located value into the result of Value. Plain structs still
// pointing into a live model are copied under the guard's lock.
func finish(guard *Node, cur reflect.Value) (any, bool) {
	if cur.Kind() == reflect.Struct && cur.CanAddr() {
		guard.mu.RLock()
		defer guard.mu.RUnlock()
	}
	if !cur.CanInterface() {
		return nil, false
	}
	return cur.Interface(), true
}

// addressed reports data models held by value under their pointer type, since
// that is how their values are returned.
func addressed(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Struct && isModelType(reflect.PointerTo(t)) {
		return reflect.PointerTo(t)
	}
	return t
}

func schemaProperties(t reflect.Type) []Property {
	if s := SchemaOf(t); s != nil {
		return s.Properties
	}
	return nil
}
