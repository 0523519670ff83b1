package sim

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/dmpath/internal/datamodel"
	"github.com/agentic-research/dmpath/internal/visualize"
)

func enable(t *testing.T) *Simulator {
	t.Helper()
	s := New("Spa", zerolog.Nop())
	model, err := s.Enable(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		model.DataModel().Destroy()
		require.NoError(t, s.Disable(context.Background()))
	})
	return s
}

func resolve(t *testing.T, root datamodel.Model, path string) (any, bool) {
	t.Helper()
	p, err := datamodel.NewPath(root, path)
	require.NoError(t, err)
	defer p.Close()
	return p.Value()
}

func TestSimulator_Enable(t *testing.T) {
	s := enable(t)
	d := s.Data()

	assert.Equal(t, ID, d.Module())
	assert.Equal(t, 150.0, d.Speed)
	assert.Equal(t, 4, d.Gear)
	assert.Equal(t, tankCapacity, d.Car.Fuel)

	v, ok := resolve(t, d, "Session.Track")
	require.True(t, ok)
	assert.Equal(t, "Spa", v)

	for _, w := range Wheels {
		_, ok := resolve(t, d, "Tyres."+w)
		assert.True(t, ok, w)
	}
	_, ok = resolve(t, d, "Nitro")
	assert.True(t, ok, "boost is available in the first window")
}

func TestSimulator_Deterministic(t *testing.T) {
	a, b := enable(t), enable(t)
	ctx := context.Background()

	for range 40 {
		require.NoError(t, a.Update(ctx, 250*time.Millisecond))
	}
	require.NoError(t, b.Update(ctx, 10*time.Second))

	assert.InDelta(t, a.Data().Speed, b.Data().Speed, 1e-9)
	assert.InDelta(t, Speed(10*time.Second), a.Data().Speed, 1e-9)
	assert.InDelta(t, tankCapacity-10*burnRate, a.Data().Car.Fuel, 1e-9)
	assert.Equal(t, 10*time.Second, a.Data().Session.LapTime)
}

func TestSimulator_NitroWindows(t *testing.T) {
	ctx := context.Background()
	s := enable(t)
	d := s.Data()

	nitro, err := datamodel.NewPath(d, "Nitro")
	require.NoError(t, err)
	defer nitro.Close()

	var kinds []datamodel.PathEventKind
	cancel := nitro.Subscribe(func(e datamodel.PathEvent) { kinds = append(kinds, e.Kind) })
	defer cancel()

	require.True(t, nitro.IsValid())
	require.NoError(t, s.Update(ctx, boostPeriod))
	assert.False(t, nitro.IsValid())
	require.NoError(t, s.Update(ctx, boostPeriod))
	assert.True(t, nitro.IsValid())

	assert.Equal(t, []datamodel.PathEventKind{datamodel.PathInvalidated, datamodel.PathValidated}, kinds)
}

func TestSimulator_Laps(t *testing.T) {
	ctx := context.Background()
	s := enable(t)
	require.NoError(t, s.Update(ctx, lapLength+5*time.Second))

	lap, ok := resolve(t, s.Data(), "Session.Lap")
	require.True(t, ok)
	assert.Equal(t, 2, lap)

	require.NoError(t, s.Update(ctx, 2*time.Hour))
	assert.Zero(t, s.Data().Car.Fuel)
}

func TestSimulator_Projection(t *testing.T) {
	s := enable(t)
	root := visualize.Project(s.Data(), visualize.Options{MaxDepth: 1})

	speed := root.Find("Speed")
	require.NotNil(t, speed)
	assert.Equal(t, "km/h", speed.Affix)

	// Car resets the depth count, so its children are projected at depth 1.
	require.NotNil(t, root.Find("Car.Fuel"))
	assert.Nil(t, root.Find("Session.Lap"))
}
