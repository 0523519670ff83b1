package datamodel

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Child is a dynamically added child of a Node. The concrete type is always a
// *DynamicChild[T].
type Child interface {
	Key() string
	// Type is the declared type, fixed when the child was added.
	Type() reflect.Type
	Description() Description
	Value() any

	model() (Model, bool)
}

// DynamicChild is a named, typed value attached to a Node at runtime.
type DynamicChild[T any] struct {
	key   string
	typ   reflect.Type
	desc  Description
	owner *Node

	mu    sync.RWMutex
	value T
}

func (c *DynamicChild[T]) Key() string              { return c.key }
func (c *DynamicChild[T]) Type() reflect.Type       { return c.typ }
func (c *DynamicChild[T]) Description() Description { return c.desc }
func (c *DynamicChild[T]) Value() any               { return c.Get() }

// Get returns the current value.
func (c *DynamicChild[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the current value. Assigning a different data model binds it to
// the owner's module and re-resolves paths that go through this child.
func (c *DynamicChild[T]) Set(v T) {
	c.mu.Lock()
	prev, hadPrev := c.modelLocked()
	c.value = v
	next, hasNext := c.modelLocked()
	c.mu.Unlock()

	if hadPrev == hasNext && (!hasNext || prev.DataModel() == next.DataModel()) {
		return
	}
	if hasNext {
		Bind(next, c.owner.Module(), c.desc)
	}
	c.owner.generation.Add(1)
	c.owner.refreshWatchers()
}

func (c *DynamicChild[T]) model() (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelLocked()
}

func (c *DynamicChild[T]) modelLocked() (Model, bool) {
	return modelOf(reflect.ValueOf(&c.value).Elem())
}

func (c *DynamicChild[T]) String() string {
	return fmt.Sprintf("%s (%s)", c.key, c.typ)
}

// AddDynamicChild adds a child of declared type T under key. It fails with
// ErrInvalidKey, ErrDuplicateKey, ErrNilValue or ErrDestroyed and leaves the
// node unchanged in that case. A data model value is bound to the node's module.
func AddDynamicChild[T any](n *Node, key string, initial T, desc Description) (*DynamicChild[T], error) {
	if key == "" || strings.Contains(key, Separator) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	typ := reflect.TypeFor[T]()
	if typ.Kind() == reflect.Struct && isModelType(reflect.PointerTo(typ)) {
		return nil, fmt.Errorf("%w: %s", ErrModelByValue, typ)
	}
	v := reflect.ValueOf(&initial).Elem()
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil, fmt.Errorf("%w: %q", ErrNilValue, key)
		}
	}

	c := &DynamicChild[T]{
		key:   key,
		typ:   typ,
		desc:  desc.withDefaultName(key),
		owner: n,
		value: initial,
	}
	m, isModel := c.modelLocked()
	if isModel && m.DataModel() == n {
		return nil, fmt.Errorf("%w: %q", ErrCycle, key)
	}

	n.mu.Lock()
	switch {
	case !n.bound:
		n.mu.Unlock()
		return nil, ErrUnbound
	case n.destroyed:
		n.mu.Unlock()
		return nil, ErrDestroyed
	}
	if _, ok := n.children[key]; ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	if _, ok := n.schema.Property(key); ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %q is a static property", ErrDuplicateKey, key)
	}
	if isModel {
		Bind(m, n.module, c.desc)
	}
	if n.children == nil {
		n.children = make(map[string]Child)
	}
	n.children[key] = c
	n.order = append(n.order, key)
	n.generation.Add(1)
	n.mu.Unlock()

	n.refreshWatchers()
	n.subs.emit(NodeEvent{Kind: ChildAdded, Node: n, Key: key, Child: c})
	return c, nil
}

// TryGetDynamicChild returns the child under key when its declared type is T.
func TryGetDynamicChild[T any](n *Node, key string) (*DynamicChild[T], bool) {
	child, ok := n.DynamicChild(key)
	if !ok {
		return nil, false
	}
	c, ok := child.(*DynamicChild[T])
	return c, ok
}

// DynamicChildValue returns the current value of the child under key when its
// declared type is T.
func DynamicChildValue[T any](n *Node, key string) (T, bool) {
	c, ok := TryGetDynamicChild[T](n, key)
	if !ok {
		var zero T
		return zero, false
	}
	return c.Get(), true
}

// DynamicChild returns the child under key.
func (n *Node) DynamicChild(key string) (Child, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.children[key]
	return c, ok
}

// DynamicChildren returns a snapshot of the children in insertion order.
func (n *Node) DynamicChildren() []Child {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Child, 0, len(n.order))
	for _, key := range n.order {
		out = append(out, n.children[key])
	}
	return out
}

// DynamicKeys returns the child keys in insertion order.
func (n *Node) DynamicKeys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

// RemoveDynamicChild removes the child under key. A removed data model is
// detached from the tree but not destroyed.
func (n *Node) RemoveDynamicChild(key string) bool {
	n.mu.Lock()
	c, ok := n.children[key]
	if !ok {
		n.mu.Unlock()
		return false
	}
	n.dropLocked(key)
	n.generation.Add(1)
	n.mu.Unlock()

	n.refreshWatchers()
	n.subs.emit(NodeEvent{Kind: ChildRemoved, Node: n, Key: key, Child: c})
	return true
}

// RemoveDynamicChildRef removes every key holding ref, where ref is either a
// Child or a data model stored as a child value. It returns the number of keys
// removed; each removal is notified separately.
func (n *Node) RemoveDynamicChildRef(ref any) int {
	if ref == nil {
		return 0
	}
	var target *Node
	if m, ok := ref.(Model); ok && present(reflect.ValueOf(m)) {
		target = m.DataModel()
	}

	n.mu.Lock()
	var removed []NodeEvent
	for _, key := range n.order {
		c := n.children[key]
		match := any(c) == ref
		if !match && target != nil {
			if m, ok := c.model(); ok && m.DataModel() == target {
				match = true
			}
		}
		if match {
			removed = append(removed, NodeEvent{Kind: ChildRemoved, Node: n, Key: key, Child: c})
		}
	}
	for _, e := range removed {
		n.dropLocked(e.Key)
	}
	if len(removed) > 0 {
		n.generation.Add(1)
	}
	n.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	n.refreshWatchers()
	for _, e := range removed {
		n.subs.emit(e)
	}
	return len(removed)
}

// ClearDynamicChildren removes all children, notifying each removal.
func (n *Node) ClearDynamicChildren() {
	for _, key := range n.DynamicKeys() {
		n.RemoveDynamicChild(key)
	}
}

func (n *Node) dropLocked(key string) {
	delete(n.children, key)
	for i, k := range n.order {
		if k == key {
			n.order = append(n.order[:i:i], n.order[i+1:]...)
			break
		}
	}
}
