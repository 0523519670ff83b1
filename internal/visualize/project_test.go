package visualize

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/dmpath/internal/datamodel"
)

type engine struct {
	datamodel.Node
	Temperature float64 `datamodel:"affix=°C"`
	Faults      []string
}

type telemetry struct {
	datamodel.Node
	Speed   float64 `datamodel:"name=Current speed,affix=km/h"`
	Gear    int
	Driver  string
	Started time.Time
	Engine  *engine `datamodel:"resetsdepth"`
}

func newTelemetry(t *testing.T) *telemetry {
	t.Helper()
	d := &telemetry{Speed: 88, Gear: 4, Driver: "Ayrton", Engine: &engine{Temperature: 92}}
	datamodel.Bind(d, "racing", datamodel.Description{Name: "Racing"})
	_, err := datamodel.AddDynamicChild(d.DataModel(), "Nitro", true, datamodel.Description{})
	require.NoError(t, err)
	return d
}

func TestProject_Structure(t *testing.T) {
	d := newTelemetry(t)

	v := Project(d, Options{IncludeValues: true})

	assert.Equal(t, "Racing", v.Name)
	assert.Equal(t, KindProperties, v.Kind)

	var paths []string
	for _, c := range v.Children {
		paths = append(paths, c.Path)
	}
	assert.Equal(t, []string{"Speed", "Gear", "Driver", "Started", "Engine", "Nitro"}, paths)

	speed := v.Find("Speed")
	require.NotNil(t, speed)
	assert.Equal(t, "Current speed", speed.Name)
	assert.Equal(t, "km/h", speed.Affix)
	assert.Equal(t, "float64", speed.Type)
	assert.Equal(t, KindProperty, speed.Kind)
	assert.Equal(t, 88.0, speed.Value)
	assert.Equal(t, 1, speed.Depth)

	started := v.Find("Started")
	require.NotNil(t, started)
	assert.Equal(t, KindProperty, started.Kind)

	nitro := v.Find("Nitro")
	require.NotNil(t, nitro)
	assert.True(t, nitro.Dynamic)
	assert.Equal(t, true, nitro.Value)

	faults := v.Find("Engine.Faults")
	require.NotNil(t, faults)
	assert.Equal(t, KindList, faults.Kind)

	temp := v.Find("Engine.Temperature")
	require.NotNil(t, temp)
	assert.Equal(t, 1, temp.Depth)
	assert.Equal(t, 92.0, temp.Value)

	// Transient paths are released.
	assert.Equal(t, 0, d.Registry().Len())
}

func TestProject_MaxDepth(t *testing.T) {
	d := newTelemetry(t)
	sub := datamodel.NewNode("", datamodel.Description{})
	_, err := datamodel.AddDynamicChild(d.DataModel(), "Deep", sub, datamodel.Description{})
	require.NoError(t, err)
	_, err = datamodel.AddDynamicChild(sub, "Leaf", 1, datamodel.Description{})
	require.NoError(t, err)

	v := Project(d, Options{MaxDepth: 1})
	deep := v.Find("Deep")
	require.NotNil(t, deep)
	assert.Empty(t, deep.Children)

	v = Project(d, Options{MaxDepth: 2})
	assert.NotNil(t, v.Find("Deep.Leaf"))
}

func TestProject_HiddenAndRemoved(t *testing.T) {
	d := newTelemetry(t)
	d.HideProperty("Driver")
	d.RemoveDynamicChild("Nitro")

	v := Project(d, Options{})
	assert.Nil(t, v.Find("Driver"))
	assert.Nil(t, v.Find("Nitro"))
	assert.NotNil(t, v.Find("Gear"))
}

func TestProject_TypeFilter(t *testing.T) {
	d := newTelemetry(t)

	strict := Project(d, Options{Types: []reflect.Type{reflect.TypeFor[float64]()}})
	var leaves []string
	strict.Walk(func(v *View) bool {
		if v.Kind != KindProperties {
			leaves = append(leaves, v.Path)
		}
		return true
	})
	assert.Equal(t, []string{"Speed", "Engine.Temperature"}, leaves)

	loose := Project(d, Options{Types: []reflect.Type{reflect.TypeFor[float64]()}, LooseMatch: true})
	assert.NotNil(t, loose.Find("Gear"))
	assert.Nil(t, loose.Find("Driver"))
	assert.Nil(t, loose.Find("Nitro"))

	none := Project(d, Options{Types: []reflect.Type{reflect.TypeFor[complex128]()}})
	assert.Empty(t, none.Children)
}
