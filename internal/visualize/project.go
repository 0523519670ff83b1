// Package visualize projects a data model tree into a read-only,
// depth-bounded view for path pickers and property browsers.
package visualize

import (
	"reflect"

	"github.com/agentic-research/dmpath/internal/datamodel"
)

// DefaultMaxDepth bounds the projection when Options.MaxDepth is zero.
const DefaultMaxDepth = 4

// Kind classifies how a view entry is presented.
type Kind string

const (
	KindProperty   Kind = "property"   // a leaf value
	KindList       Kind = "list"       // a slice, array or map
	KindProperties Kind = "properties" // a struct or data model with members
)

// View is one entry of a projected tree.
type View struct {
	Path        string  `json:"path"`
	Identifier  string  `json:"identifier,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Prefix      string  `json:"prefix,omitempty"`
	Affix       string  `json:"affix,omitempty"`
	Type        string  `json:"type"`
	Kind        Kind    `json:"kind"`
	Dynamic     bool    `json:"dynamic,omitempty"`
	Depth       int     `json:"depth"`
	Value       any     `json:"value,omitempty"`
	Children    []*View `json:"children,omitempty"`

	typ reflect.Type
}

// Options controls a projection.
type Options struct {
	MaxDepth int
	// Types keeps only leaves whose type matches one of these, and the
	// containers leading to them. Empty means everything.
	Types []reflect.Type
	// LooseMatch also accepts assignable types and any numeric type for a
	// numeric filter.
	LooseMatch bool
	// IncludeValues reads the current value of every leaf and list.
	IncludeValues bool
}

// Project walks root and returns its view. Every entry is resolved through a
// transient path, so only identifiers that currently resolve are listed.
func Project(root datamodel.Model, opts Options) *View {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	node := root.DataModel()
	desc := node.Description()
	v := &View{
		Name:        desc.Name,
		Description: desc.Description,
		Kind:        KindProperties,
		typ:         reflect.TypeOf(root),
	}
	v.Type = v.typ.String()
	pr := projector{root: root, opts: opts}
	pr.populate(v, 1)
	return v
}

type projector struct {
	root datamodel.Model
	opts Options
}

func (pr *projector) populate(parent *View, depth int) {
	p, err := datamodel.NewPath(pr.root, parent.Path)
	if err != nil {
		return
	}
	members := p.Members()
	p.Close()

	for _, m := range members {
		child := pr.child(datamodel.JoinPath(parent.Path, m.Identifier), m, depth)
		if child == nil {
			continue
		}
		parent.Children = append(parent.Children, child)
	}
}

func (pr *projector) child(path string, m datamodel.Member, depth int) *View {
	if depth > pr.opts.MaxDepth {
		return nil
	}
	p, err := datamodel.NewPath(pr.root, path)
	if err != nil {
		return nil
	}
	defer p.Close()
	if !p.IsValid() {
		return nil
	}
	segs := p.Segments()
	seg := segs[len(segs)-1]
	typ := p.Type()

	v := &View{
		Path:        path,
		Identifier:  m.Identifier,
		Name:        seg.Description.Name,
		Description: seg.Description.Description,
		Prefix:      seg.Description.Prefix,
		Affix:       seg.Description.Affix,
		Type:        typ.String(),
		Kind:        kindOf(typ),
		Dynamic:     m.Dynamic,
		Depth:       depth,
		typ:         typ,
	}

	if v.Kind == KindProperties {
		next := depth + 1
		if seg.Description.ResetsDepth {
			next = 1
		}
		pr.populate(v, next)
	} else if pr.opts.IncludeValues {
		v.Value, _ = p.Value()
	}

	if len(pr.opts.Types) == 0 {
		return v
	}
	if v.Kind == KindProperties {
		if len(v.Children) == 0 {
			return nil
		}
		return v
	}
	if !matches(typ, pr.opts.Types, pr.opts.LooseMatch) {
		return nil
	}
	return v
}

// kindOf classifies t. Structs without visible members, such as time.Time, are
// leaves.
func kindOf(t reflect.Type) Kind {
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return KindList
	case reflect.Pointer:
		if t.Elem().Kind() != reflect.Struct {
			return KindProperty
		}
		fallthrough
	case reflect.Struct:
		if isModel(t) {
			return KindProperties
		}
		if s := datamodel.SchemaOf(t); s != nil && len(s.Properties) > 0 {
			return KindProperties
		}
	}
	return KindProperty
}

var modelType = reflect.TypeFor[datamodel.Model]()

func isModel(t reflect.Type) bool {
	return t.Implements(modelType) || (t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(modelType))
}

func matches(t reflect.Type, types []reflect.Type, loose bool) bool {
	for _, want := range types {
		if want == nil {
			continue
		}
		if t == want {
			return true
		}
		if !loose {
			continue
		}
		if t.AssignableTo(want) || (isNumeric(t) && isNumeric(want)) {
			return true
		}
	}
	return false
}

func isNumeric(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Find returns the entry with the given path, or nil.
func (v *View) Find(path string) *View {
	if v.Path == path {
		return v
	}
	for _, c := range v.Children {
		if path == c.Path || datamodel.IsDescendant(path, c.Path) {
			return c.Find(path)
		}
	}
	return nil
}

// Walk calls fn for v and every descendant, depth first, until fn returns false.
func (v *View) Walk(fn func(*View) bool) bool {
	if !fn(v) {
		return false
	}
	for _, c := range v.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// ReflectType returns the type the entry was projected from.
func (v *View) ReflectType() reflect.Type { return v.typ }
