package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_InUseTracksLastRegistration(t *testing.T) {
	d := newTestData(t)
	_, err := AddDynamicChild(d.DataModel(), "Nitro", true, Description{})
	require.NoError(t, err)

	assert.False(t, d.IsPathInUse("Nitro", false))

	a, err := NewPath(d, "Nitro")
	require.NoError(t, err)
	b, err := NewPath(d, "Nitro")
	require.NoError(t, err)
	assert.True(t, d.IsPathInUse("Nitro", false))
	assert.Equal(t, 2, d.Registry().Count("Nitro"))

	a.Close()
	assert.True(t, d.IsPathInUse("Nitro", false))
	b.Close()
	assert.False(t, d.IsPathInUse("Nitro", false))
	assert.Empty(t, d.Registry().Literals())
}

func TestRegistry_IncludeChildren(t *testing.T) {
	d := newTestData(t)
	p := mustPath(t, d, "Car.Fuel")

	assert.True(t, d.IsPathInUse("Car.Fuel", false))
	assert.False(t, d.IsPathInUse("Car", false))
	assert.True(t, d.IsPathInUse("Car", true))
	assert.False(t, d.IsPathInUse("Ca", true))
	assert.True(t, d.IsPathInUse("", true))
	assert.False(t, d.IsPathInUse("", false))

	// Case-sensitive.
	assert.False(t, d.IsPathInUse("car.fuel", false))
	assert.False(t, d.IsPathInUse("car", true))

	p.Close()
	assert.False(t, d.IsPathInUse("", true))
}

func TestRegistry_InvalidPathsAreStillRegistered(t *testing.T) {
	d := newTestData(t)
	mustPath(t, d, "Nitro")
	mustPath(t, d, "Car..Fuel")

	assert.True(t, d.IsPathInUse("Nitro", false))
	assert.Equal(t, []string{"Car..Fuel", "Nitro"}, d.Registry().Literals())
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	d := newTestData(t)
	events := recordNodeEvents(d.DataModel())
	p := mustPath(t, d, "Speed")

	d.Registry().Register(p)
	d.Registry().Unregister(p)
	d.Registry().Unregister(p)

	assert.Equal(t, 0, d.Registry().Len())
	require.Len(t, *events, 2)
	assert.Equal(t, PathAdded, (*events)[0].Kind)
	assert.Same(t, p, (*events)[0].Path)
	assert.Equal(t, PathRemoved, (*events)[1].Kind)
}

func TestRegistry_PathsInCreationOrder(t *testing.T) {
	d := newTestData(t)
	a := mustPath(t, d, "Speed")
	b := mustPath(t, d, "Gear")
	c := mustPath(t, d, "Speed")

	assert.Equal(t, []*Path{a, b, c}, d.Registry().Paths())
}

func TestRegistry_SubtreeIndexMatchesPrefixScan(t *testing.T) {
	d := newTestData(t)
	literals := []string{"Car.Fuel", "Tyres.Front.Left", "Car..Fuel", ".Speed", "Gear.", "Speed"}
	paths := make([]*Path, 0, len(literals))
	for _, literal := range literals {
		paths = append(paths, mustPath(t, d, literal))
	}

	queries := []string{"", "Car", "Car.", "Tyres", "Tyres.Front", "Tyres.Front.Left", "Gear", "Speed", "Tyre", "Front"}
	check := func(live []string) {
		t.Helper()
		for _, q := range queries {
			want := false
			for _, literal := range live {
				if IsDescendant(literal, q) || literal == q {
					want = true
				}
			}
			assert.Equal(t, want, d.IsPathInUse(q, true), "query %q over %v", q, live)
		}
	}

	check(literals)
	for i, p := range paths {
		p.Close()
		check(literals[i+1:])
	}
	assert.Empty(t, d.Registry().subtree)
}
