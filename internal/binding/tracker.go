package binding

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentic-research/dmpath/internal/datamodel"
	"github.com/agentic-research/dmpath/internal/metrics"
	"github.com/agentic-research/dmpath/internal/module"
)

// State is a point-in-time view of a tracked reference.
type State struct {
	Reference
	Valid bool   `json:"valid"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Event reports a validity transition of a tracked reference.
type Event struct {
	Reference Reference
	Valid     bool
}

type tracked struct {
	ref    Reference
	path   *datamodel.Path // nil while the module is disabled
	cancel func()
	valid  bool
}

// Tracker keeps one live Path per reference against the current model of the
// referenced module. Paths are closed when a module is disabled and created
// again when it is enabled.
type Tracker struct {
	manager *module.Manager
	logger  zerolog.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	refs   map[uuid.UUID]*tracked
	closed bool

	unsubscribe func()

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// NewTracker starts following manager lifecycle events.
func NewTracker(manager *module.Manager, logger zerolog.Logger, m *metrics.Collector) *Tracker {
	if m == nil {
		m = metrics.Nop()
	}
	t := &Tracker{
		manager: manager,
		logger:  logger.With().Str("component", "binding").Logger(),
		metrics: m,
		refs:    make(map[uuid.UUID]*tracked),
	}
	t.unsubscribe = manager.Subscribe(t.onModule)
	return t
}

// Load tracks every reference in the store.
func (t *Tracker) Load(ctx context.Context, s *Store) error {
	refs, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		t.Add(ref)
	}
	t.logger.Debug().Int("count", len(refs)).Msg("bindings loaded")
	return nil
}

// Add starts tracking ref. Adding a known ID replaces the previous entry.
func (t *Tracker) Add(ref Reference) {
	var events []Event
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if old, ok := t.refs[ref.ID]; ok {
		t.detachLocked(old)
	}
	tr := &tracked{ref: ref}
	t.refs[ref.ID] = tr
	if model, ok := t.manager.DataModel(ref.Module); ok {
		if ev, changed := t.attachLocked(tr, model); changed {
			events = append(events, ev)
		}
	}
	t.mu.Unlock()
	t.emit(events)
}

// Remove stops tracking the reference with the given ID.
func (t *Tracker) Remove(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.refs[id]
	if !ok {
		return false
	}
	t.detachLocked(tr)
	delete(t.refs, id)
	return true
}

// Value resolves the reference's current value.
func (t *Tracker) Value(id uuid.UUID) (any, bool) {
	p := t.path(id)
	if p == nil {
		return nil, false
	}
	return p.Value()
}

// Valid reports whether the reference currently resolves.
func (t *Tracker) Valid(id uuid.UUID) bool {
	p := t.path(id)
	return p != nil && p.IsValid()
}

// Type returns the reference's resolved type, or nil.
func (t *Tracker) Type(id uuid.UUID) reflect.Type {
	p := t.path(id)
	if p == nil {
		return nil
	}
	return p.Type()
}

// Snapshot returns the state of every tracked reference, oldest first.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	items := make([]*tracked, 0, len(t.refs))
	for _, tr := range t.refs {
		items = append(items, tr)
	}
	t.mu.Unlock()

	slices.SortFunc(items, func(a, b *tracked) int {
		if c := a.ref.Created.Compare(b.ref.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ref.ID.String(), b.ref.ID.String())
	})

	out := make([]State, 0, len(items))
	for _, tr := range items {
		st := State{Reference: tr.ref}
		if p := t.path(tr.ref.ID); p != nil {
			st.Valid = p.IsValid()
			if typ := p.Type(); typ != nil {
				st.Type = typ.String()
			}
			// Data models are live; only plain values are copied out.
			if v, ok := p.Value(); ok {
				if _, isModel := v.(datamodel.Model); !isModel {
					st.Value = v
				}
			}
		}
		out = append(out, st)
	}
	return out
}

// Subscribe registers fn for validity transitions.
func (t *Tracker) Subscribe(fn func(Event)) (cancel func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if t.subs == nil {
		t.subs = make(map[int]func(Event))
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}
}

// Close stops following the manager and closes every live path.
func (t *Tracker) Close() {
	t.unsubscribe()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, tr := range t.refs {
		t.detachLocked(tr)
	}
	t.refs = nil
}

func (t *Tracker) path(id uuid.UUID) *datamodel.Path {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.refs[id]; ok {
		return tr.path
	}
	return nil
}

func (t *Tracker) onModule(e module.Event) {
	var events []Event
	t.mu.Lock()
	for _, tr := range t.refs {
		if tr.ref.Module != e.Module {
			continue
		}
		switch e.Kind {
		case module.Enabled:
			t.detachLocked(tr)
			if ev, changed := t.attachLocked(tr, e.Model); changed {
				events = append(events, ev)
			}
		case module.Disabled:
			t.detachLocked(tr)
			if tr.valid {
				tr.valid = false
				events = append(events, t.transition(tr))
			}
		}
	}
	t.mu.Unlock()
	t.emit(events)
}

// attachLocked creates the live path for tr. It reports an event when the
// validity differs from what subscribers last saw.
func (t *Tracker) attachLocked(tr *tracked, model datamodel.Model) (Event, bool) {
	p, err := datamodel.NewPath(model, tr.ref.Path)
	if err != nil {
		t.logger.Warn().Err(err).Str("binding", tr.ref.ID.String()).Msg("cannot attach binding")
		return Event{}, false
	}
	// IsValid may deliver events; read it before subscribing since t.mu is held.
	valid := p.IsValid()
	tr.path = p
	tr.cancel = p.Subscribe(func(pe datamodel.PathEvent) { t.onPath(tr.ref.ID, p, pe) })
	if valid != tr.valid {
		tr.valid = valid
		return t.transition(tr), true
	}
	return Event{}, false
}

func (t *Tracker) detachLocked(tr *tracked) {
	if tr.path == nil {
		return
	}
	tr.cancel()
	tr.path.Close()
	tr.path, tr.cancel = nil, nil
}

func (t *Tracker) onPath(id uuid.UUID, p *datamodel.Path, pe datamodel.PathEvent) {
	t.mu.Lock()
	tr, ok := t.refs[id]
	if !ok || tr.path != p {
		t.mu.Unlock()
		return
	}
	valid := pe.Kind == datamodel.PathValidated
	if valid == tr.valid {
		t.mu.Unlock()
		return
	}
	tr.valid = valid
	ev := t.transition(tr)
	t.mu.Unlock()
	t.emit([]Event{ev})
}

func (t *Tracker) transition(tr *tracked) Event {
	kind := datamodel.PathInvalidated
	if tr.valid {
		kind = datamodel.PathValidated
	}
	t.metrics.PathTransitions.WithLabelValues(kind.String()).Inc()
	t.logger.Debug().
		Str("binding", tr.ref.ID.String()).
		Str("module", tr.ref.Module).
		Str("path", tr.ref.Path).
		Str("state", kind.String()).
		Msg("binding transition")
	return Event{Reference: tr.ref, Valid: tr.valid}
}

func (t *Tracker) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	t.subMu.Lock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, t.subs[id])
	}
	t.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (s State) String() string {
	return fmt.Sprintf("%s %s.%s valid=%t", s.ID, s.Module, s.Path, s.Valid)
}
