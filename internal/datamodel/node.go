// Package datamodel implements the dynamic data model: typed trees that modules
// expose at runtime, addressed by dot-separated paths.
//
// A data model is any struct embedding Node. Its exported fields are static
// properties, discovered once per type; the Node adds dynamically keyed children
// on top. A Path is a parsed, cached address into such a tree that tracks
// whether it still resolves as modules add and remove children.
package datamodel

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// Model is implemented by every struct that embeds Node, and by *Node itself.
type Model interface {
	DataModel() *Node
}

// Node is a SchemaNode: the dynamic half of a data model. Embed it by value in a
// struct and Bind the struct before use.
//
// A single owner (the module) mutates a Node; any number of readers resolve paths
// through it concurrently. Static field writes must go through Update.
type Node struct {
	mu        sync.RWMutex
	bound     bool
	self      reflect.Value // the embedding struct pointer, or the node itself
	schema    *Schema
	desc      Description
	module    string
	children  map[string]Child
	order     []string
	hidden    map[string]struct{}
	destroyed bool

	generation atomic.Uint64
	registry   Registry
	subs       subscribers[NodeEvent]
}

// DataModel implements Model.
func (n *Node) DataModel() *Node { return n }

// NewNode returns a bound node with no static properties.
func NewNode(module string, desc Description) *Node {
	n := &Node{}
	n.mu.Lock()
	n.bindLocked(reflect.ValueOf(n), module, desc)
	n.mu.Unlock()
	return n
}

// Bind attaches m's Node to m so reflection sees the embedding type, and records
// the owning module and description. Binding an already bound model updates its
// module and description.
func Bind(m Model, module string, desc Description) *Node {
	n := m.DataModel()
	n.mu.Lock()
	n.bindLocked(reflect.ValueOf(m), module, desc)
	n.mu.Unlock()
	return n
}

// adopt binds m with the given module and description unless it is bound already.
func adopt(m Model, module string, desc Description) *Node {
	n := m.DataModel()
	n.mu.Lock()
	if !n.bound {
		n.bindLocked(reflect.ValueOf(m), module, desc)
	}
	n.mu.Unlock()
	return n
}

func (n *Node) bindLocked(self reflect.Value, module string, desc Description) {
	n.self = self
	n.schema = SchemaOf(self.Type())
	n.module = module
	name := "DataModel"
	if st := structType(self.Type()); st != nil && st != nodeType {
		name = st.Name()
	}
	n.desc = desc.withDefaultName(name)
	n.registry.owner = n
	n.bound = true
}

// Model returns the embedding struct, or the node itself for NewNode nodes.
func (n *Node) Model() Model {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.bound {
		if m, ok := n.self.Interface().(Model); ok {
			return m
		}
	}
	return n
}

func (n *Node) selfValue() reflect.Value {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.self
}

// Description returns the node's description attribute.
func (n *Node) Description() Description {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.desc
}

// Module returns the ID of the module owning this node.
func (n *Node) Module() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.module
}

// Schema returns the static schema of the embedding type.
func (n *Node) Schema() *Schema {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.schema
}

// Generation is bumped on every change that can affect path resolution.
func (n *Node) Generation() uint64 {
	return n.generation.Load()
}

// Destroyed reports whether the node's module has been unloaded.
func (n *Node) Destroyed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.destroyed
}

// Registry returns the active path registry of this node.
func (n *Node) Registry() *Registry {
	return &n.registry
}

// IsPathInUse reports whether a path rooted at this node is registered with the
// literal path, or below it when includeDescendants is set. Modules use it to
// skip computing values nobody reads.
func (n *Node) IsPathInUse(path string, includeDescendants bool) bool {
	return n.registry.IsPropertyInUse(path, includeDescendants)
}

// Subscribe registers fn for child and path notifications.
func (n *Node) Subscribe(fn func(NodeEvent)) (cancel func()) {
	return n.subs.add(fn)
}

// Update runs fn with the node's write lock held. Writes to static fields of the
// embedding struct belong in fn. fn must not call other methods of this node.
// Paths are re-resolved only when fn changed what resolution depends on: a
// nested data model, a nil pointer or the dynamic type of an interface field.
func (n *Node) Update(fn func()) {
	n.mu.Lock()
	before := n.staticShapeLocked()
	fn()
	changed := !slices.Equal(before, n.staticShapeLocked())
	if changed {
		n.generation.Add(1)
	}
	n.mu.Unlock()
	if changed {
		n.refreshWatchers()
	}
}

// HideProperty suppresses an identifier from enumeration and path resolution.
func (n *Node) HideProperty(name string) {
	n.mu.Lock()
	if n.hidden == nil {
		n.hidden = make(map[string]struct{})
	}
	n.hidden[name] = struct{}{}
	n.generation.Add(1)
	n.mu.Unlock()
	n.refreshWatchers()
}

// UnhideProperty reverses HideProperty.
func (n *Node) UnhideProperty(name string) {
	n.mu.Lock()
	delete(n.hidden, name)
	n.generation.Add(1)
	n.mu.Unlock()
	n.refreshWatchers()
}

// IsHidden reports whether name was hidden on this node.
func (n *Node) IsHidden(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.hidden[name]
	return ok
}

// HiddenProperties returns the hidden identifiers in sorted order.
func (n *Node) HiddenProperties() []string {
	n.mu.RLock()
	out := make([]string, 0, len(n.hidden))
	for name := range n.hidden {
		out = append(out, name)
	}
	n.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Destroy tears the node down when its module unloads. Dynamic children are
// removed one by one, nested data models are destroyed with it, and every path
// depending on the node becomes invalid. Registered paths stay registered until
// their consumers close them.
func (n *Node) Destroy() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	n.destroyed = true
	keys := n.order
	children := n.children
	n.order = nil
	n.children = nil
	nested := n.staticModelsLocked()
	n.generation.Add(1)
	n.mu.Unlock()

	for _, key := range keys {
		if m, ok := children[key].model(); ok {
			nested = append(nested, m.DataModel())
		}
	}
	for _, child := range nested {
		if child != n {
			child.Destroy()
		}
	}

	n.refreshWatchers()
	for _, key := range keys {
		n.subs.emit(NodeEvent{Kind: ChildRemoved, Node: n, Key: key, Child: children[key]})
	}
}

// staticModelsLocked collects the non-nil data models held in static fields.
func (n *Node) staticModelsLocked() []*Node {
	if n.schema == nil || !n.self.IsValid() {
		return nil
	}
	var out []*Node
	for _, prop := range n.schema.Properties {
		if m, ok := modelOf(fieldByIndex(n.self, prop.index)); ok {
			out = append(out, m.DataModel())
		}
	}
	return out
}

// shapeEntry is one static value path resolution depends on.
type shapeEntry struct {
	node *Node
	typ  reflect.Type
}

const maxShapeDepth = 8

// staticShapeLocked lists, in schema order, the data models, pointers and
// interface values reachable through static fields without crossing into
// another node.
func (n *Node) staticShapeLocked() []shapeEntry {
	if n.schema == nil || !n.self.IsValid() {
		return nil
	}
	var out []shapeEntry
	collectShape(n.self, n.schema, 0, &out)
	return out
}

func collectShape(v reflect.Value, s *Schema, depth int, out *[]shapeEntry) {
	if s == nil || depth > maxShapeDepth {
		return
	}
	for _, prop := range s.Properties {
		f := fieldByIndex(v, prop.index)
		if m, ok := modelOf(f); ok {
			*out = append(*out, shapeEntry{node: m.DataModel()})
			continue
		}
		switch prop.Type.Kind() {
		case reflect.Pointer, reflect.Interface:
			if !present(f) {
				*out = append(*out, shapeEntry{})
				continue
			}
			if f.Kind() == reflect.Interface {
				f = f.Elem()
			}
			*out = append(*out, shapeEntry{typ: f.Type()})
		}
		if f.IsValid() {
			collectShape(f, SchemaOf(f.Type()), depth+1, out)
		}
	}
}

// refreshWatchers re-resolves every path whose chain passes through this node.
// Callers must not hold n.mu.
func (n *Node) refreshWatchers() {
	for _, p := range n.registry.watching() {
		p.refresh()
	}
}

// lookup returns the dynamic child for ident together with the node's state,
// under one read lock.
func (n *Node) lookup(ident string) (child Child, hidden, destroyed bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.destroyed {
		return nil, false, true
	}
	if _, ok := n.hidden[ident]; ok {
		return nil, true, false
	}
	return n.children[ident], false, false
}

func (n *Node) String() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fmt.Sprintf("%s(%s)", n.desc.Name, n.module)
}

// modelOf returns v as a Model when it holds a non-nil data model.
func modelOf(v reflect.Value) (Model, bool) {
	if !present(v) {
		return nil, false
	}
	if v.Kind() == reflect.Struct {
		if !v.CanAddr() || !isModelType(reflect.PointerTo(v.Type())) {
			return nil, false
		}
		v = v.Addr()
	}
	if !v.CanInterface() {
		return nil, false
	}
	m, ok := v.Interface().(Model)
	return m, ok
}

// present reports whether v holds a value, treating nil pointers, interfaces,
// maps, slices, funcs and chans as absent.
func present(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !v.IsNil()
	}
	return true
}

// fieldByIndex follows index through v, dereferencing pointers. It returns the
// zero Value when a pointer on the way is nil.
func fieldByIndex(v reflect.Value, index []int) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	f, err := v.FieldByIndexErr(index)
	if err != nil {
		return reflect.Value{}
	}
	return f
}

// snapshotField reads a static field under guard's read lock. Nested data models
// are returned by pointer to keep their identity and addressable plain structs
// are returned in place, to be read field by field under the same lock.
// Anything else is copied.
func snapshotField(guard *Node, v reflect.Value, index []int) reflect.Value {
	if guard != nil {
		guard.mu.RLock()
		defer guard.mu.RUnlock()
	}
	f := fieldByIndex(v, index)
	if !f.IsValid() {
		return f
	}
	if f.Kind() == reflect.Struct && f.CanAddr() {
		if isModelType(reflect.PointerTo(f.Type())) {
			return f.Addr()
		}
		return f
	}
	if !f.CanInterface() {
		return reflect.Value{}
	}
	return reflect.ValueOf(f.Interface())
}
