// Package agent exposes module data models to LLM agents as MCP tools.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/dmpath/internal/binding"
	"github.com/agentic-research/dmpath/internal/datamodel"
	"github.com/agentic-research/dmpath/internal/module"
	"github.com/agentic-research/dmpath/internal/visualize"
)

// Server answers tool calls against a module manager.
type Server struct {
	manager  *module.Manager
	tracker  *binding.Tracker
	maxDepth int
}

// New creates the tool server. tracker may be nil.
func New(manager *module.Manager, tracker *binding.Tracker, maxDepth int) *Server {
	return &Server{manager: manager, tracker: tracker, maxDepth: maxDepth}
}

// MCPServer registers every tool on a new MCP server.
func (s *Server) MCPServer(version string, opts ...server.ServerOption) *server.MCPServer {
	opts = append([]server.ServerOption{server.WithToolCapabilities(false)}, opts...)
	srv := server.NewMCPServer("dmpath", version, opts...)

	srv.AddTool(mcp.NewTool("list_modules",
		mcp.WithDescription("List modules with their enabled state and number of active paths"),
	), s.ListModules)

	srv.AddTool(mcp.NewTool("module_tree",
		mcp.WithDescription("Project the data model tree of an enabled module"),
		mcp.WithString("module", mcp.Required(), mcp.Description("Module ID")),
		mcp.WithNumber("depth", mcp.Description("Maximum depth, default from configuration")),
	), s.ModuleTree)

	srv.AddTool(mcp.NewTool("resolve_path",
		mcp.WithDescription("Resolve a dot-separated path and return its type and current value"),
		mcp.WithString("module", mcp.Required(), mcp.Description("Module ID")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Dot-separated path such as Car.Fuel")),
	), s.ResolvePath)

	srv.AddTool(mcp.NewTool("list_members",
		mcp.WithDescription("List the identifiers that can follow a path"),
		mcp.WithString("module", mcp.Required(), mcp.Description("Module ID")),
		mcp.WithString("path", mcp.Description("Parent path; empty for the module root")),
	), s.ListMembers)

	if s.tracker != nil {
		srv.AddTool(mcp.NewTool("list_bindings",
			mcp.WithDescription("List stored bindings with their live state"),
		), s.ListBindings)
	}
	return srv
}

func (s *Server) ListModules(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.manager.Modules())
}

func (s *Server) ModuleTree(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model, errRes := s.model(req)
	if errRes != nil {
		return errRes, nil
	}
	depth := req.GetInt("depth", s.maxDepth)
	return jsonResult(visualize.Project(model, visualize.Options{MaxDepth: depth, IncludeValues: true}))
}

type resolved struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Type  string `json:"type,omitempty"`
	Name  string `json:"name,omitempty"`
	Affix string `json:"affix,omitempty"`
	Value any    `json:"value,omitempty"`
}

func (s *Server) ResolvePath(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model, errRes := s.model(req)
	if errRes != nil {
		return errRes, nil
	}
	literal, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := datamodel.NewPath(model, literal)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer p.Close()

	out := resolved{Path: literal, Valid: p.IsValid()}
	if t := p.Type(); t != nil {
		out.Type = t.String()
	}
	if segs := p.Segments(); len(segs) > 0 {
		out.Name = segs[len(segs)-1].Description.Name
		out.Affix = segs[len(segs)-1].Description.Affix
	}
	if v, ok := p.Value(); ok {
		if _, isModel := v.(datamodel.Model); !isModel {
			out.Value = v
		}
	}
	return jsonResult(out)
}

func (s *Server) ListMembers(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model, errRes := s.model(req)
	if errRes != nil {
		return errRes, nil
	}
	p, err := datamodel.NewPath(model, req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer p.Close()
	return jsonResult(p.Members())
}

func (s *Server) ListBindings(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.tracker.Snapshot())
}

func (s *Server) model(req mcp.CallToolRequest) (datamodel.Model, *mcp.CallToolResult) {
	id, err := req.RequireString("module")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	if _, ok := s.manager.Module(id); !ok {
		return nil, mcp.NewToolResultError(fmt.Sprintf("unknown module %q", id))
	}
	model, ok := s.manager.DataModel(id)
	if !ok {
		return nil, mcp.NewToolResultError(fmt.Sprintf("module %q is disabled", id))
	}
	return model, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
