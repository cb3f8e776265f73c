// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes catalog queries as tools for LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/syllabus/internal/apperr"
	"github.com/starford/syllabus/internal/catalog"
	"github.com/starford/syllabus/internal/catalogservice"
	"github.com/starford/syllabus/internal/models"
)

// Server wraps the MCP server with the catalog tools.
type Server struct {
	mcp *server.MCPServer
	svc *catalogservice.Service
}

// New creates a new MCP server with all catalog tools registered.
func New(svc *catalogservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Syllabus",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_programmes",
		mcp.WithDescription("Search degree programmes by name or id. Exact matches rank first, then substring, then fuzzy matches. "+
			"An empty query lists every programme alphabetically."),
		mcp.WithString("query", mcp.Description("Search text; leave empty to list all")),
		mcp.WithNumber("page", mcp.Description("1-based page number")),
		mcp.WithNumber("size", mcp.Description("Results per page")),
	), s.searchProgrammes)

	s.mcp.AddTool(mcp.NewTool("get_programme",
		mcp.WithDescription("Get a programme's faculty, award, stage count and the number of core and option modules per stage."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Programme id (e.g. CS101)")),
	), s.getProgramme)

	s.mcp.AddTool(mcp.NewTool("list_programme_modules",
		mcp.WithDescription("List the modules of a programme ordered by stage, core before option, then title."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Programme id")),
		mcp.WithString("stage", mcp.Description("Only modules in this stage")),
		mcp.WithString("classification", mcp.Description("Only core or only option modules"), mcp.Enum("core", "option")),
		mcp.WithString("query", mcp.Description("Only modules whose title, id, coordinator or school contains this text")),
	), s.listProgrammeModules)

	s.mcp.AddTool(mcp.NewTool("search_modules",
		mcp.WithDescription("Search every module by title or id, independent of programme."),
		mcp.WithString("query", mcp.Description("Search text; leave empty to list all")),
		mcp.WithNumber("page", mcp.Description("1-based page number")),
		mcp.WithNumber("size", mcp.Description("Results per page")),
	), s.searchModules)

	s.mcp.AddTool(mcp.NewTool("get_module",
		mcp.WithDescription("Get a module's description, eligibility constraints, the modules it is a "+
			"prerequisite for, most similar modules (overall, same school and other schools) "+
			"and the programmes that contain it with its stage and classification in each."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Module id (e.g. COMP10010)")),
		mcp.WithString("programme", mcp.Description("Programme the module is viewed from; fills the subtitle and other_programmes")),
	), s.getModule)

	s.mcp.AddResource(
		mcp.NewResource("syllabus://artifact-format", "Artifact Format",
			mcp.WithResourceDescription("The lookup tables the catalog is built from and their columns."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readArtifactFormat,
	)

	s.mcp.AddResource(
		mcp.NewResource("syllabus://stats", "Catalog Stats",
			mcp.WithResourceDescription("Counts, fingerprint and load report of the current catalog."),
			mcp.WithMIMEType("application/json"),
		),
		s.readStats,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult reports query failures as tool errors so the client can
// relay them; only transport problems are returned as Go errors.
func errorResult(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, apperr.ErrNotReady) {
		return mcp.NewToolResultError("catalog not loaded yet"), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func (s *Server) searchProgrammes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.SearchProgrammes(ctx, req.GetString("query", ""), req.GetInt("page", 1), req.GetInt("size", 0))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(res)
}

func (s *Server) getProgramme(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.GetProgramme(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(p)
}

func (s *Server) listProgrammeModules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f := catalog.ListFilter{
		Stage: req.GetString("stage", ""),
		Query: req.GetString("query", ""),
	}
	if raw := req.GetString("classification", ""); raw != "" {
		if f.Classification, err = models.ParseClassification(raw); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	mods, err := s.svc.ListModules(ctx, id, f)
	if err != nil {
		return errorResult(err)
	}
	if len(mods) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("programme %s has no modules matching the filter", id)), nil
	}
	return jsonResult(mods)
}

func (s *Server) searchModules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.SearchModules(ctx, req.GetString("query", ""), req.GetInt("page", 1), req.GetInt("size", 0))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(res)
}

func (s *Server) getModule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.svc.GetModule(ctx, id, req.GetString("programme", ""))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(m)
}

func (s *Server) readArtifactFormat(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "syllabus://artifact-format",
			MIMEType: "text/markdown",
			Text:     ArtifactFormat,
		},
	}, nil
}

func (s *Server) readStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	st, err := s.svc.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "syllabus://stats",
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
