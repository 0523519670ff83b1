package module

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/dmpath/internal/datamodel"
	"github.com/agentic-research/dmpath/internal/metrics"
)

type entry struct {
	mod Module

	// run serializes Update against Enable and Disable of this module.
	run sync.Mutex

	// guarded by Manager.mu
	model datamodel.Model
}

// Manager owns the registered modules and their data models. It is safe for
// concurrent use.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	logger  zerolog.Logger
	metrics *metrics.Collector

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// NewManager creates an empty manager. A nil collector disables metrics export.
func NewManager(logger zerolog.Logger, m *metrics.Collector) *Manager {
	if m == nil {
		m = metrics.Nop()
	}
	return &Manager{
		entries: make(map[string]*entry),
		logger:  logger.With().Str("component", "module").Logger(),
		metrics: m,
	}
}

// Register adds a module in the disabled state.
func (m *Manager) Register(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := mod.ID()
	if _, ok := m.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, id)
	}
	m.entries[id] = &entry{mod: mod}
	m.order = append(m.order, id)
	m.logger.Debug().Str("module", id).Msg("module registered")
	return nil
}

// Unregister disables the module if needed and forgets it.
func (m *Manager) Unregister(ctx context.Context, id string) error {
	if err := m.Disable(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	return nil
}

// Enable builds and binds the module's data model. Enabling an enabled module
// is a no-op.
func (m *Manager) Enable(ctx context.Context, id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.run.Lock()
	defer e.run.Unlock()

	if m.modelOf(e) != nil {
		return nil
	}
	model, err := e.mod.Enable(ctx)
	if err != nil {
		return fmt.Errorf("enable %s: %w", id, err)
	}
	if model == nil || model.DataModel() == nil {
		return fmt.Errorf("enable %s: %w", id, ErrNoModel)
	}
	datamodel.Bind(model, id, e.mod.Description())

	m.mu.Lock()
	e.model = model
	m.mu.Unlock()

	m.metrics.ModulesEnabled.Inc()
	m.logger.Info().Str("module", id).Msg("module enabled")
	m.emit(Event{Kind: Enabled, Module: id, Model: model})
	return nil
}

// Disable stops the module and destroys its data model. Disabling a disabled
// module is a no-op. The model is destroyed even when the module's own Disable
// fails; that error is returned.
func (m *Manager) Disable(ctx context.Context, id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.run.Lock()
	defer e.run.Unlock()

	m.mu.Lock()
	model := e.model
	e.model = nil
	m.mu.Unlock()
	if model == nil {
		return nil
	}

	disableErr := e.mod.Disable(ctx)
	model.DataModel().Destroy()

	m.metrics.ModulesEnabled.Dec()
	m.metrics.PathsActive.DeleteLabelValues(id)
	m.logger.Info().Str("module", id).Msg("module disabled")
	m.emit(Event{Kind: Disabled, Module: id, Model: model})

	if disableErr != nil {
		return fmt.Errorf("disable %s: %w", id, disableErr)
	}
	return nil
}

// Swap replaces the definition of a module with the same ID. When the old
// module was enabled the new one is enabled in its place.
func (m *Manager) Swap(ctx context.Context, mod Module) error {
	id := mod.ID()
	e, err := m.entry(id)
	if errors.Is(err, ErrUnknownModule) {
		return m.Register(mod)
	}
	if err != nil {
		return err
	}
	wasEnabled := m.modelOf(e) != nil
	if err := m.Disable(ctx, id); err != nil {
		m.logger.Warn().Err(err).Str("module", id).Msg("disable during swap failed")
	}

	m.mu.Lock()
	m.entries[id] = &entry{mod: mod}
	m.mu.Unlock()
	m.logger.Info().Str("module", id).Bool("enabled", wasEnabled).Msg("module swapped")

	if wasEnabled {
		return m.Enable(ctx, id)
	}
	return nil
}

// DataModel returns the current model of an enabled module.
func (m *Manager) DataModel(id string) (datamodel.Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok || e.model == nil {
		return nil, false
	}
	return e.model, true
}

// Module returns the registered module with the given ID.
func (m *Manager) Module(id string) (Module, bool) {
	e, err := m.entry(id)
	if err != nil {
		return nil, false
	}
	return e.mod, true
}

// Modules lists registered modules in registration order.
func (m *Manager) Modules() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		info := Info{ID: id, Description: e.mod.Description(), Enabled: e.model != nil}
		if e.model != nil {
			info.Paths = e.model.DataModel().Registry().Len()
		}
		out = append(out, info)
	}
	return out
}

// UpdateAll runs one update tick of every enabled module concurrently. Update
// errors are logged and counted; they never disable a module. The returned
// error joins all update errors of this tick.
func (m *Manager) UpdateAll(ctx context.Context, dt time.Duration) error {
	m.mu.RLock()
	var running []*entry
	for _, id := range m.order {
		if e := m.entries[id]; e.model != nil {
			running = append(running, e)
		}
	}
	m.mu.RUnlock()

	var (
		errMu sync.Mutex
		errs  []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range running {
		g.Go(func() error {
			if err := m.update(gctx, e, dt); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (m *Manager) update(ctx context.Context, e *entry, dt time.Duration) error {
	e.run.Lock()
	defer e.run.Unlock()
	model := m.modelOf(e)
	if model == nil {
		return nil
	}
	id := e.mod.ID()

	start := time.Now()
	err := e.mod.Update(ctx, dt)
	m.metrics.ModuleUpdateDuration.WithLabelValues(id).Observe(time.Since(start).Seconds())
	m.metrics.ModuleUpdates.WithLabelValues(id).Inc()
	m.metrics.PathsActive.WithLabelValues(id).Set(float64(model.DataModel().Registry().Len()))
	if err != nil {
		m.metrics.ModuleUpdateErrors.WithLabelValues(id).Inc()
		m.logger.Error().Err(err).Str("module", id).Msg("module update failed")
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

// Run ticks UpdateAll every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	m.logger.Info().Dur("interval", interval).Msg("update loop started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("update loop stopped")
			return nil
		case now := <-ticker.C:
			_ = m.UpdateAll(ctx, now.Sub(last))
			last = now
		}
	}
}

// DisableAll disables every enabled module, in reverse registration order.
func (m *Manager) DisableAll(ctx context.Context) error {
	m.mu.RLock()
	ids := slices.Clone(m.order)
	m.mu.RUnlock()
	slices.Reverse(ids)

	var errs []error
	for _, id := range ids {
		if err := m.Disable(ctx, id); err != nil && !errors.Is(err, ErrUnknownModule) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers fn for lifecycle events. Callbacks run synchronously on
// the goroutine that enabled or disabled the module.
func (m *Manager) Subscribe(fn func(Event)) (cancel func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.subs == nil {
		m.subs = make(map[int]func(Event))
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) emit(e Event) {
	m.subMu.Lock()
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

func (m *Manager) entry(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	return e, nil
}

func (m *Manager) modelOf(e *entry) datamodel.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.model
}
