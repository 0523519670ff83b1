// Package feed implements modules whose data model mirrors a JSON document.
//
// Each declared child is selected from the document with a JSONPath and
// exposed as a dynamic child of the module root. Children appear when their
// selector yields a value of the declared type and disappear when it no longer
// does, so Paths into a feed follow the document's shape.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/rs/zerolog"

	"github.com/agentic-research/dmpath/api"
	"github.com/agentic-research/dmpath/internal/datamodel"
	"github.com/agentic-research/dmpath/internal/metrics"
)

// Data is the root data model of a feed module.
type Data struct {
	datamodel.Node

	Source  string    `description:"JSON document backing this feed"`
	Updated time.Time `datamodel:"name=Last update"`
	Errors  int       `description:"Failed reads since the feed was enabled"`
}

// Group is the data model of a node child.
type Group struct {
	datamodel.Node
}

type child struct {
	key      string
	typ      string
	expr     jp.Expr
	desc     datamodel.Description
	children []child
}

// Module is a feed module. Enable, Update and Disable are serialized by the
// module manager.
type Module struct {
	def      api.Feed
	fs       billy.Filesystem
	children []child
	logger   zerolog.Logger
	metrics  *metrics.Collector

	data *Data
}

// New compiles the selectors of def. Sources are read from fs.
func New(def api.Feed, fs billy.Filesystem, logger zerolog.Logger, m *metrics.Collector) (*Module, error) {
	if m == nil {
		m = metrics.Nop()
	}
	children, err := compile(def.Children)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", def.ID, err)
	}
	return &Module{
		def:      def,
		fs:       fs,
		children: children,
		logger:   logger.With().Str("component", "feed").Str("feed", def.ID).Logger(),
		metrics:  m,
	}, nil
}

// NewSet builds one module per feed in set.
func NewSet(set *api.FeedSet, fs billy.Filesystem, logger zerolog.Logger, m *metrics.Collector) ([]*Module, error) {
	mods := make([]*Module, 0, len(set.Feeds))
	for _, def := range set.Feeds {
		mod, err := New(def, fs, logger, m)
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

func compile(defs []api.Child) ([]child, error) {
	out := make([]child, 0, len(defs))
	for _, d := range defs {
		c := child{
			key: d.Key,
			typ: d.ValueType(),
			desc: datamodel.Description{
				Name:        d.Name,
				Description: d.Description,
				Prefix:      d.Prefix,
				Affix:       d.Affix,
			},
		}
		if d.Selector == "" {
			c.expr = jp.C(d.Key)
		} else {
			x, err := jp.ParseString(d.Selector)
			if err != nil {
				return nil, fmt.Errorf("invalid jsonpath '%s': %w", d.Selector, err)
			}
			c.expr = x
		}
		if c.typ == api.TypeNode {
			nested, err := compile(d.Children)
			if err != nil {
				return nil, err
			}
			c.children = nested
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *Module) ID() string { return m.def.ID }

func (m *Module) Description() datamodel.Description {
	name := m.def.Name
	if name == "" {
		name = datamodel.Humanize(m.def.ID)
	}
	return datamodel.Description{Name: name, Description: m.def.Description}
}

// Enable creates an empty model. Children appear with the first Update.
func (m *Module) Enable(context.Context) (datamodel.Model, error) {
	m.data = &Data{Source: m.def.Source}
	return m.data, nil
}

func (m *Module) Disable(context.Context) error {
	m.data = nil
	return nil
}

// Data returns the current model, or nil while disabled.
func (m *Module) Data() *Data { return m.data }

// Update reads and applies the source document.
func (m *Module) Update(ctx context.Context, _ time.Duration) error {
	d := m.data
	if d == nil {
		return nil
	}
	doc, err := m.read()
	if err != nil {
		d.Update(func() { d.Errors++ })
		m.metrics.FeedErrors.WithLabelValues(m.def.ID).Inc()
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	applyErr := m.apply(&d.Node, "", doc, m.children)
	d.Update(func() {
		d.Updated = time.Now()
		if applyErr != nil {
			d.Errors++
		}
	})
	if applyErr != nil {
		m.metrics.FeedErrors.WithLabelValues(m.def.ID).Inc()
	}
	return applyErr
}

func (m *Module) read() (any, error) {
	src, err := util.ReadFile(m.fs, m.def.Source)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.def.Source, err)
	}
	doc, err := oj.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.def.Source, err)
	}
	return doc, nil
}

// apply reconciles the dynamic children of n with the values selected from
// value. prefix is the path of n below the module root. Children that cannot
// be stored are skipped and reported together.
func (m *Module) apply(n *datamodel.Node, prefix string, value any, children []child) error {
	root := &m.data.Node
	var errs []error
	for _, c := range children {
		path := datamodel.JoinPath(prefix, c.key)
		_, exists := n.DynamicChild(c.key)
		if m.def.Lazy && exists && !root.IsPathInUse(path, true) {
			continue
		}

		raw := c.expr.First(value)
		if c.typ == api.TypeNode {
			if err := m.applyGroup(n, path, c, raw); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		v, ok := convert(c.typ, raw)
		if !ok {
			if n.RemoveDynamicChild(c.key) {
				m.logger.Debug().Str("child", path).Msg("child removed")
			}
			continue
		}
		if err := set(n, c.key, v, c.desc); err != nil {
			m.logger.Warn().Err(err).Str("child", path).Msg("cannot set child")
			errs = append(errs, fmt.Errorf("child %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Module) applyGroup(n *datamodel.Node, path string, c child, raw any) error {
	obj, ok := raw.(map[string]any)
	if !ok {
		n.RemoveDynamicChild(c.key)
		return nil
	}
	g, ok := datamodel.DynamicChildValue[*Group](n, c.key)
	if !ok {
		n.RemoveDynamicChild(c.key)
		g = &Group{}
		if _, err := datamodel.AddDynamicChild(n, c.key, g, c.desc); err != nil {
			m.logger.Warn().Err(err).Str("child", path).Msg("cannot add node")
			return fmt.Errorf("child %s: %w", path, err)
		}
	}
	return m.apply(&g.Node, path, obj, c.children)
}

// set stores v under key, replacing a child of a different type.
func set(n *datamodel.Node, key string, v any, desc datamodel.Description) error {
	switch v := v.(type) {
	case bool:
		return setTyped(n, key, v, desc)
	case int:
		return setTyped(n, key, v, desc)
	case float64:
		return setTyped(n, key, v, desc)
	case string:
		return setTyped(n, key, v, desc)
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
}

func setTyped[T comparable](n *datamodel.Node, key string, v T, desc datamodel.Description) error {
	if c, ok := datamodel.TryGetDynamicChild[T](n, key); ok {
		if c.Get() != v {
			c.Set(v)
		}
		return nil
	}
	n.RemoveDynamicChild(key)
	_, err := datamodel.AddDynamicChild(n, key, v, desc)
	return err
}

// convert coerces a parsed JSON value to the declared child type.
func convert(typ string, raw any) (any, bool) {
	switch typ {
	case api.TypeBool:
		b, ok := raw.(bool)
		return b, ok
	case api.TypeInt:
		switch v := raw.(type) {
		case int64:
			return int(v), true
		case float64:
			if v == float64(int(v)) {
				return int(v), true
			}
		}
		return nil, false
	case api.TypeFloat:
		switch v := raw.(type) {
		case int64:
			return float64(v), true
		case float64:
			return v, true
		}
		return nil, false
	case api.TypeString:
		s, ok := raw.(string)
		return s, ok
	case api.TypeAuto:
		switch v := raw.(type) {
		case bool, float64, string:
			return v, true
		case int64:
			return int(v), true
		}
		return nil, false
	}
	return nil, false
}
