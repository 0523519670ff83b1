package datamodel

import (
	"cmp"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Registry is the active path registry of one Node. It is created and destroyed
// with its node.
//
// Registered paths are those whose root is the node; they answer "is anybody
// reading this literal path". Watchers are the paths whose resolution passes
// through the node; they are re-resolved whenever the node changes shape.
type Registry struct {
	owner *Node

	mu    sync.Mutex
	paths map[uint32]*Path

	// Literal index: path string → bitmap of registered path ids. An entry
	// exists iff its bitmap is non-empty.
	literals map[string]*roaring.Bitmap
	// Subtree index: ancestor prefix → bitmap of registered ids strictly below
	// it. Same non-empty invariant.
	subtree map[string]*roaring.Bitmap

	watchers map[uint32]*Path
}

// Register adds p to the tracking set. It is a no-op when p is registered.
func (r *Registry) Register(p *Path) {
	r.mu.Lock()
	if _, ok := r.paths[p.id]; ok {
		r.mu.Unlock()
		return
	}
	if r.paths == nil {
		r.paths = make(map[uint32]*Path)
		r.literals = make(map[string]*roaring.Bitmap)
		r.subtree = make(map[string]*roaring.Bitmap)
	}
	r.paths[p.id] = p
	addID(r.literals, p.literal, p.id)
	for _, prefix := range ancestors(p.literal) {
		addID(r.subtree, prefix, p.id)
	}
	r.mu.Unlock()

	r.notify(PathAdded, p)
}

// Unregister removes p from the tracking set. It is safe to call repeatedly.
func (r *Registry) Unregister(p *Path) {
	r.mu.Lock()
	if _, ok := r.paths[p.id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.paths, p.id)
	removeID(r.literals, p.literal, p.id)
	for _, prefix := range ancestors(p.literal) {
		removeID(r.subtree, prefix, p.id)
	}
	r.mu.Unlock()

	r.notify(PathRemoved, p)
}

func (r *Registry) notify(kind NodeEventKind, p *Path) {
	if r.owner != nil {
		r.owner.subs.emit(NodeEvent{Kind: kind, Node: r.owner, Path: p})
	}
}

// IsPropertyInUse reports whether a registered path has exactly this literal
// path. With includeChildren it also matches any registered path below it; for
// the root path "" that is any registered path at all. Comparison is
// case-sensitive.
func (r *Registry) IsPropertyInUse(path string, includeChildren bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bm, ok := r.literals[path]; ok && !bm.IsEmpty() {
		return true
	}
	if !includeChildren {
		return false
	}
	bm, ok := r.subtree[path]
	return ok && !bm.IsEmpty()
}

// Len returns the number of registered paths.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

// Paths returns the registered paths ordered by creation.
func (r *Registry) Paths() []*Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedPaths(r.paths)
}

// Literals returns the distinct literal paths in use, sorted.
func (r *Registry) Literals() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.literals))
	for literal := range r.literals {
		out = append(out, literal)
	}
	r.mu.Unlock()
	slices.Sort(out)
	return out
}

// Count returns how many registered paths share the literal path.
func (r *Registry) Count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bm, ok := r.literals[path]; ok {
		return int(bm.GetCardinality())
	}
	return 0
}

func (r *Registry) watch(p *Path) {
	r.mu.Lock()
	if r.watchers == nil {
		r.watchers = make(map[uint32]*Path)
	}
	r.watchers[p.id] = p
	r.mu.Unlock()
}

func (r *Registry) unwatch(p *Path) {
	r.mu.Lock()
	delete(r.watchers, p.id)
	r.mu.Unlock()
}

func (r *Registry) watching() []*Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.watchers) == 0 {
		return nil
	}
	return sortedPaths(r.watchers)
}

func addID(index map[string]*roaring.Bitmap, key string, id uint32) {
	bm, ok := index[key]
	if !ok {
		bm = roaring.New()
		index[key] = bm
	}
	bm.Add(id)
}

func removeID(index map[string]*roaring.Bitmap, key string, id uint32) {
	if bm, ok := index[key]; ok {
		bm.Remove(id)
		if bm.IsEmpty() {
			delete(index, key)
		}
	}
}

// ancestors returns every prefix literal lies strictly below: the root path
// and each prefix ending before a separator.
func ancestors(literal string) []string {
	if literal == "" {
		return nil
	}
	out := []string{""}
	for i := 0; i < len(literal); i++ {
		if literal[i] == Separator[0] {
			out = append(out, literal[:i])
		}
	}
	return out
}

func sortedPaths(m map[uint32]*Path) []*Path {
	out := make([]*Path, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Path) int { return cmp.Compare(a.id, b.id) })
	return out
}
