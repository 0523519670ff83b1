package cmd

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with a missing config file so defaults and
// DMPATH_* variables apply.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTreeCommand(t *testing.T) {
	t.Setenv("DMPATH_LOG_LEVEL", "error")

	out, err := run(t, "tree", "sim", "--depth", "1", "--json=false", "--values=true")
	require.NoError(t, err)
	assert.Contains(t, out, "Speed")
	assert.Contains(t, out, "km/h")

	out, err = run(t, "tree", "sim", "Car", "--depth", "2", "--json=false", "--values=true")
	require.NoError(t, err)
	assert.Contains(t, out, "Fuel")

	_, err = run(t, "tree", "sim", "Car.Wings", "--depth", "2", "--json=false", "--values=true")
	require.Error(t, err)

	_, err = run(t, "tree", "nope", "--depth", "1", "--json=false", "--values=true")
	require.Error(t, err)
}

func TestTreeCommand_JSON(t *testing.T) {
	t.Setenv("DMPATH_LOG_LEVEL", "error")

	out, err := run(t, "tree", "sim", "--depth", "1", "--json=true", "--values=false")
	require.NoError(t, err)
	assert.Contains(t, out, `"path": "Speed"`)
	assert.Contains(t, out, `"path": "Car.Fuel"`, "Car resets the depth budget")
	assert.NotContains(t, out, `"path": "Session.Lap"`)
	assert.NotContains(t, out, `"value"`)
}

func TestResolveCommand(t *testing.T) {
	t.Setenv("DMPATH_LOG_LEVEL", "error")

	out, err := run(t, "resolve", "sim", "Session.Track")
	require.NoError(t, err)
	assert.Contains(t, out, "type:  string")
	assert.Contains(t, out, "value: "+simTrack)

	out, err = run(t, "resolve", "sim", "Car")
	require.NoError(t, err)
	assert.Contains(t, out, "*sim.CarData")
	assert.NotContains(t, out, "value:")

	_, err = run(t, "resolve", "sim", "Car.Wings")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not resolve")

	_, err = run(t, "resolve", "sim", "Car..Fuel")
	require.Error(t, err)
}

func TestBindCommands(t *testing.T) {
	t.Setenv("DMPATH_LOG_LEVEL", "error")
	t.Setenv("DMPATH_STORE_DSN", filepath.Join(t.TempDir(), "bindings.db"))

	out, err := run(t, "bind", "add", "sim", "Car.Fuel", "--label", "fuel gauge")
	require.NoError(t, err)
	id, err := uuid.Parse(strings.TrimSpace(out))
	require.NoError(t, err)

	out, err = run(t, "bind", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "Car.Fuel")
	assert.Contains(t, out, "fuel gauge")

	_, err = run(t, "bind", "rm", id.String())
	require.NoError(t, err)

	out, err = run(t, "bind", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, id.String())

	_, err = run(t, "bind", "rm", id.String())
	require.Error(t, err)

	_, err = run(t, "bind", "rm", "not-a-uuid")
	require.Error(t, err)

	_, err = run(t, "bind", "add", "sim", "Car..Fuel", "--label", "")
	require.Error(t, err)
}
