package binding

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/dmpath/internal/datamodel"
	"github.com/agentic-research/dmpath/internal/module"
)

type pitData struct {
	datamodel.Node
	Stops int
}

type pitModule struct {
	data *pitData
}

func (m *pitModule) ID() string                          { return "pit" }
func (m *pitModule) Description() datamodel.Description { return datamodel.Description{} }

func (m *pitModule) Enable(context.Context) (datamodel.Model, error) {
	m.data = &pitData{Stops: 1}
	return m.data, nil
}

func (m *pitModule) Update(context.Context, time.Duration) error { return nil }
func (m *pitModule) Disable(context.Context) error               { return nil }

func setup(t *testing.T) (*module.Manager, *pitModule, *Tracker) {
	t.Helper()
	mgr := module.NewManager(zerolog.Nop(), nil)
	mod := &pitModule{}
	require.NoError(t, mgr.Register(mod))
	tr := NewTracker(mgr, zerolog.Nop(), nil)
	t.Cleanup(tr.Close)
	return mgr, mod, tr
}

func TestTracker_FollowsModuleLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr, mod, tr := setup(t)

	var events []Event
	cancel := tr.Subscribe(func(e Event) { events = append(events, e) })
	defer cancel()

	stops, err := NewReference("pit", "Stops", "")
	require.NoError(t, err)
	tr.Add(stops)
	assert.False(t, tr.Valid(stops.ID), "module not enabled yet")
	assert.Empty(t, events)

	require.NoError(t, mgr.Enable(ctx, "pit"))
	assert.True(t, tr.Valid(stops.ID))
	assert.Equal(t, reflect.TypeFor[int](), tr.Type(stops.ID))
	v, ok := tr.Value(stops.ID)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	mod.data.Update(func() { mod.data.Stops = 2 })
	v, _ = tr.Value(stops.ID)
	assert.Equal(t, 2, v)

	require.NoError(t, mgr.Disable(ctx, "pit"))
	assert.False(t, tr.Valid(stops.ID))

	require.NoError(t, mgr.Enable(ctx, "pit"))
	v, ok = tr.Value(stops.ID)
	require.True(t, ok)
	assert.Equal(t, 1, v, "re-enabled module has a fresh model")

	require.Len(t, events, 3)
	assert.True(t, events[0].Valid)
	assert.False(t, events[1].Valid)
	assert.True(t, events[2].Valid)
	assert.Equal(t, stops.ID, events[2].Reference.ID)
}

func TestTracker_DynamicChild(t *testing.T) {
	ctx := context.Background()
	mgr, mod, tr := setup(t)
	require.NoError(t, mgr.Enable(ctx, "pit"))

	ref, err := NewReference("pit", "Crew", "crew")
	require.NoError(t, err)
	tr.Add(ref)
	assert.False(t, tr.Valid(ref.ID))

	var events []Event
	cancel := tr.Subscribe(func(e Event) { events = append(events, e) })
	defer cancel()

	_, err = datamodel.AddDynamicChild(&mod.data.Node, "Crew", 4, datamodel.Description{})
	require.NoError(t, err)
	assert.True(t, tr.Valid(ref.ID))

	require.True(t, mod.data.RemoveDynamicChild("Crew"))
	assert.False(t, tr.Valid(ref.ID))

	require.Len(t, events, 2)
	assert.True(t, events[0].Valid)
	assert.False(t, events[1].Valid)
}

func TestTracker_SnapshotAndRemove(t *testing.T) {
	ctx := context.Background()
	mgr, _, tr := setup(t)
	require.NoError(t, mgr.Enable(ctx, "pit"))

	good := Reference{ID: [16]byte{1}, Module: "pit", Path: "Stops", Created: time.Unix(1, 0)}
	bad := Reference{ID: [16]byte{2}, Module: "pit", Path: "Missing", Created: time.Unix(2, 0)}
	other := Reference{ID: [16]byte{3}, Module: "nowhere", Path: "Speed", Created: time.Unix(3, 0)}
	tr.Add(other)
	tr.Add(bad)
	tr.Add(good)

	snap := tr.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, good.ID, snap[0].ID)
	assert.True(t, snap[0].Valid)
	assert.Equal(t, "int", snap[0].Type)
	assert.Equal(t, 1, snap[0].Value)
	assert.False(t, snap[1].Valid)
	assert.False(t, snap[2].Valid)

	assert.True(t, tr.Remove(bad.ID))
	assert.False(t, tr.Remove(bad.ID))
	assert.Len(t, tr.Snapshot(), 2)
}

func TestTracker_LoadFromStore(t *testing.T) {
	ctx := context.Background()
	mgr, _, tr := setup(t)
	s := openStore(t)

	ref, err := NewReference("pit", "Stops", "")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, ref))

	require.NoError(t, tr.Load(ctx, s))
	require.NoError(t, mgr.Enable(ctx, "pit"))
	assert.True(t, tr.Valid(ref.ID))
}
