package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/dmpath/internal/datamodel"
	"github.com/agentic-research/dmpath/internal/module"
	"github.com/agentic-research/dmpath/internal/sim"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	mgr := module.NewManager(zerolog.Nop(), nil)
	require.NoError(t, mgr.Register(sim.New("Imola", zerolog.Nop())))
	require.NoError(t, mgr.Enable(ctx, sim.ID))
	t.Cleanup(func() { _ = mgr.DisableAll(ctx) })
	return New(mgr, nil, 3)
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestResolvePath(t *testing.T) {
	s := newServer(t)
	res, err := s.ResolvePath(context.Background(), call(map[string]any{"module": "sim", "path": "Session.Track"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var got resolved
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.True(t, got.Valid)
	assert.Equal(t, "string", got.Type)
	assert.Equal(t, "Imola", got.Value)
}

func TestResolvePath_Errors(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	res, err := s.ResolvePath(ctx, call(map[string]any{"module": "nope", "path": "Speed"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.ResolvePath(ctx, call(map[string]any{"module": "sim"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.ResolvePath(ctx, call(map[string]any{"module": "sim", "path": "Car.Wings"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var got resolved
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.False(t, got.Valid)
}

func TestListMembers(t *testing.T) {
	s := newServer(t)
	res, err := s.ListMembers(context.Background(), call(map[string]any{"module": "sim"}))
	require.NoError(t, err)

	out := text(t, res)
	assert.Contains(t, out, `"identifier": "Speed"`)
	assert.NotContains(t, out, `"Identifier"`)

	var members []datamodel.Member
	require.NoError(t, json.Unmarshal([]byte(out), &members))
	ids := make(map[string]bool)
	for _, m := range members {
		ids[m.Identifier] = m.Dynamic
	}
	assert.Contains(t, ids, "Speed")
	assert.False(t, ids["Speed"])
	assert.True(t, ids["Tyres"])
}

func TestListModulesAndTree(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	res, err := s.ListModules(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"id": "sim"`)

	res, err = s.ModuleTree(ctx, call(map[string]any{"module": "sim", "depth": 1}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"path": "Speed"`)

	assert.NotNil(t, s.MCPServer("test"))
}
