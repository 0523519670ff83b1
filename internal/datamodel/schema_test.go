package datamodel

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionData struct {
	Lap   int
	Track string
}

type carData struct {
	Node
	Fuel float64 `datamodel:"affix=L"`
}

type testData struct {
	Node
	Speed   float64 `datamodel:"affix=km/h" description:"Vehicle speed"`
	Gear    int
	Car     *carData
	Session sessionData
	Extra   any
	Secret  string `datamodel:"-"`
	hidden  int
}

func newTestData(t *testing.T) *testData {
	t.Helper()
	d := &testData{Speed: 120, Gear: 3, Session: sessionData{Lap: 2, Track: "Spa"}}
	Bind(d, "test", Description{})
	return d
}

func TestHumanize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Speed", "Speed"},
		{"CurrentSpeed", "Current speed"},
		{"CurrentSpeedKPH", "Current speed KPH"},
		{"RPM", "RPM"},
		{"tyre_temp", "Tyre temp"},
		{"FrontLeft", "Front left"},
		{"HTTPServer", "HTTP server"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Humanize(tt.in))
		})
	}
}

func TestSchemaOf_ExportedFieldsOnly(t *testing.T) {
	s := SchemaOf(reflect.TypeFor[*testData]())
	require.NotNil(t, s)

	var names []string
	for _, p := range s.Properties {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"Speed", "Gear", "Car", "Session", "Extra"}, names); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}

	speed, ok := s.Property("Speed")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[float64](), speed.Type)
	assert.Equal(t, Description{Name: "Speed", Description: "Vehicle speed", Affix: "km/h"}, speed.Description)

	_, ok = s.Property("Secret")
	assert.False(t, ok)
}

func TestSchemaOf_Cached(t *testing.T) {
	a := SchemaOf(reflect.TypeFor[testData]())
	b := SchemaOf(reflect.TypeFor[*testData]())
	assert.Same(t, a, b)
	assert.Nil(t, SchemaOf(reflect.TypeFor[int]()))
}

func TestDescribeField_Tags(t *testing.T) {
	type tagged struct {
		A int `datamodel:"name=Alpha,prefix=#,resetsdepth"`
		B int
	}
	s := SchemaOf(reflect.TypeFor[tagged]())
	a, _ := s.Property("A")
	assert.Equal(t, Description{Name: "Alpha", Prefix: "#", ResetsDepth: true}, a.Description)
	b, _ := s.Property("B")
	assert.Equal(t, "B", b.Description.Name)
}

func TestBind_DefaultsNameToType(t *testing.T) {
	d := newTestData(t)
	assert.Equal(t, "testData", d.Description().Name)
	assert.Equal(t, "test", d.Module())
	assert.Same(t, Model(d), d.Model())

	n := NewNode("mod", Description{Name: "Plain"})
	assert.Equal(t, "Plain", n.Description().Name)
	assert.Same(t, Model(n), n.Model())
}

func TestPathHelpers(t *testing.T) {
	idents, ok := SplitPath("Car.Fuel")
	assert.True(t, ok)
	assert.Equal(t, []string{"Car", "Fuel"}, idents)

	_, ok = SplitPath("Car..Fuel")
	assert.False(t, ok)
	_, ok = SplitPath("Car.")
	assert.False(t, ok)

	idents, ok = SplitPath("")
	assert.True(t, ok)
	assert.Empty(t, idents)

	assert.Equal(t, "Car.Fuel", JoinPath("Car", "", "Fuel"))
	parent, last := ParentPath("Car.Tyres.FrontLeft")
	assert.Equal(t, "Car.Tyres", parent)
	assert.Equal(t, "FrontLeft", last)

	assert.True(t, IsDescendant("Car.Fuel", "Car"))
	assert.False(t, IsDescendant("Cargo", "Car"))
	assert.False(t, IsDescendant("Car", "Car"))
	assert.True(t, IsDescendant("Car", ""))
}
