// Package mcpserver adapts C10's query surface to MCP tools so an
// external agent process can call get_blocks_by_keyword, semantic_search
// and the rest over stdio transport, without this module knowing
// anything about prompts or LLM providers.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/semindex/internal/embedding"
	"github.com/standardbeagle/semindex/internal/query"
	"github.com/standardbeagle/semindex/internal/types"
)

// Server wraps the query surface and embedder behind MCP tool handlers.
type Server struct {
	mcp      *mcp.Server
	surface  *query.Surface
	embedder *embedding.Embedder
}

// New builds a Server with every operation registered as an MCP tool.
// embedder may be nil if semantic_search is not needed; a call to it then
// returns an error explaining why.
func New(surface *query.Surface, embedder *embedding.Embedder) *Server {
	s := &Server{
		surface:  surface,
		embedder: embedder,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "semindex-mcp-server",
			Version: "0.1.0",
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves tool calls over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func schema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func str(desc string) *jsonschema.Schema    { return &jsonschema.Schema{Type: "string", Description: desc} }
func integer(desc string) *jsonschema.Schema { return &jsonschema.Schema{Type: "integer", Description: desc} }
func number(desc string) *jsonschema.Schema { return &jsonschema.Schema{Type: "number", Description: desc} }

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_file_by_path",
		Description: "Return a file's stored content and metadata given its project-relative path.",
		InputSchema: schema(map[string]*jsonschema.Schema{
			"project_id": integer("Project ID"),
			"path":       str("Project-relative file path"),
		}, "project_id", "path"),
	}, s.handleGetFileByPath)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_file_block_summary",
		Description: "List every code block in a file: type, name, line range and parent block.",
		InputSchema: schema(map[string]*jsonschema.Schema{
			"project_id": integer("Project ID"),
			"path":       str("Project-relative file path"),
		}, "project_id", "path"),
	}, s.handleGetFileBlockSummary)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_blocks_by_name",
		Description: "Find code blocks by exact name, falling back to a name-prefix match.",
		InputSchema: schema(map[string]*jsonschema.Schema{
			"project_id": integer("Optional project ID to scope the search"),
			"name":       str("Block name or name prefix"),
			"limit":      integer("Maximum results (default 100)"),
		}, "name"),
	}, s.handleGetBlocksByName)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_blocks_by_keyword",
		Description: "Search block names and content for a keyword, name matches ranked first, with a fuzzy fallback when nothing matches literally.",
		InputSchema: schema(map[string]*jsonschema.Schema{
			"project_id": integer("Optional project ID to scope the search"),
			"keyword":    str("Keyword to search for"),
			"limit":      integer("Maximum results (default 100)"),
		}, "keyword"),
	}, s.handleGetBlocksByKeyword)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_block_details",
		Description: "Return one code block plus its owning file and project.",
		InputSchema: schema(map[string]*jsonschema.Schema{
			"block_id": integer("Block ID"),
		}, "block_id"),
	}, s.handleGetBlockDetails)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_file_imports",
		Description: "List every import relationship sourced from a file, resolved or external.",
		InputSchema: schema(map[string]*jsonschema.Schema{
			"project_id": integer("Project ID"),
			"path":       str("Project-relative file path"),
		}, "project_id", "path"),
	}, s.handleGetFileImports)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_dependency_chain",
		Description: "Walk import edges outward from a file up to depth hops, cycles broken by never revisiting a file.",
		InputSchema: schema(map[string]*jsonschema.Schema{
			"project_id": integer("Project ID"),
			"path":       str("Project-relative file path"),
			"depth":      integer("Maximum hops (default 3)"),
		}, "project_id", "path"),
	}, s.handleGetDependencyChain)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "semantic_search",
		Description: "Embed query_text and return the most similar stored chunks, enriched with their file/block context.",
		InputSchema: schema(map[string]*jsonschema.Schema{
			"query_text": str("Natural-language or code query"),
			"project_id": integer("Optional project ID to scope the search"),
			"limit":      integer("Maximum results (default 100)"),
			"threshold":  number("Minimum similarity (0, no cutoff, when omitted)"),
		}, "query_text"),
	}, s.handleSemanticSearch)
}

func createJSONResponse(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(content)}}}, nil
}

func createErrorResponse(op string, err error) (*mcp.CallToolResult, error) {
	return createJSONResponse(map[string]any{
		"success":   false,
		"operation": op,
		"error":     err.Error(),
	})
}

type fileParams struct {
	ProjectID int64  `json:"project_id"`
	Path      string `json:"path"`
}

func (s *Server) handleGetFileByPath(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p fileParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("get_file_by_path", err)
	}
	file, err := s.surface.GetFileByPath(ctx, types.ProjectID(p.ProjectID), p.Path)
	if err != nil {
		return createErrorResponse("get_file_by_path", err)
	}
	if file == nil {
		return createErrorResponse("get_file_by_path", fmt.Errorf("no file at %q in project %d", p.Path, p.ProjectID))
	}
	return createJSONResponse(file)
}

func (s *Server) handleGetFileBlockSummary(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p fileParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("get_file_block_summary", err)
	}
	blocks, err := s.surface.GetFileBlockSummary(ctx, types.ProjectID(p.ProjectID), p.Path)
	if err != nil {
		return createErrorResponse("get_file_block_summary", err)
	}
	return createJSONResponse(blocks)
}

type nameParams struct {
	ProjectID *int64 `json:"project_id"`
	Name      string `json:"name"`
	Limit     int    `json:"limit"`
}

func (p nameParams) projectID() *types.ProjectID {
	if p.ProjectID == nil {
		return nil
	}
	id := types.ProjectID(*p.ProjectID)
	return &id
}

func (s *Server) handleGetBlocksByName(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p nameParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("get_blocks_by_name", err)
	}
	blocks, err := s.surface.GetBlocksByName(ctx, p.projectID(), p.Name, p.Limit)
	if err != nil {
		return createErrorResponse("get_blocks_by_name", err)
	}
	return createJSONResponse(blocks)
}

type keywordParams struct {
	ProjectID *int64 `json:"project_id"`
	Keyword   string `json:"keyword"`
	Limit     int    `json:"limit"`
}

func (p keywordParams) projectID() *types.ProjectID {
	if p.ProjectID == nil {
		return nil
	}
	id := types.ProjectID(*p.ProjectID)
	return &id
}

func (s *Server) handleGetBlocksByKeyword(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p keywordParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("get_blocks_by_keyword", err)
	}
	blocks, err := s.surface.GetBlocksByKeyword(ctx, p.projectID(), p.Keyword, p.Limit)
	if err != nil {
		return createErrorResponse("get_blocks_by_keyword", err)
	}
	return createJSONResponse(blocks)
}

func (s *Server) handleGetBlockDetails(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		BlockID int64 `json:"block_id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("get_block_details", err)
	}
	block, file, project, err := s.surface.GetBlockDetails(ctx, types.BlockID(p.BlockID))
	if err != nil {
		return createErrorResponse("get_block_details", err)
	}
	if block == nil {
		return createErrorResponse("get_block_details", fmt.Errorf("no block with id %d", p.BlockID))
	}
	return createJSONResponse(map[string]any{"block": block, "file": file, "project": project})
}

func (s *Server) handleGetFileImports(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p fileParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("get_file_imports", err)
	}
	imports, err := s.surface.GetFileImports(ctx, types.ProjectID(p.ProjectID), p.Path)
	if err != nil {
		return createErrorResponse("get_file_imports", err)
	}
	return createJSONResponse(imports)
}

func (s *Server) handleGetDependencyChain(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		ProjectID int64  `json:"project_id"`
		Path      string `json:"path"`
		Depth     int    `json:"depth"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("get_dependency_chain", err)
	}
	depth := p.Depth
	if depth <= 0 {
		depth = 3
	}
	chain, err := s.surface.GetDependencyChain(ctx, types.ProjectID(p.ProjectID), p.Path, depth)
	if err != nil {
		return createErrorResponse("get_dependency_chain", err)
	}
	return createJSONResponse(chain)
}

func (s *Server) handleSemanticSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		QueryText string  `json:"query_text"`
		ProjectID *int64  `json:"project_id"`
		Limit     int     `json:"limit"`
		Threshold float64 `json:"threshold"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("semantic_search", err)
	}
	if s.embedder == nil {
		return createErrorResponse("semantic_search", fmt.Errorf("semantic search unavailable: no embedding model loaded"))
	}

	vec, err := s.embedder.EmbedQuery(p.QueryText)
	if err != nil {
		return createErrorResponse("semantic_search", err)
	}

	var projectID *types.ProjectID
	if p.ProjectID != nil {
		id := types.ProjectID(*p.ProjectID)
		projectID = &id
	}

	hits, err := s.surface.SemanticSearch(ctx, vec, projectID, p.Limit, p.Threshold)
	if err != nil {
		return createErrorResponse("semantic_search", err)
	}
	return createJSONResponse(hits)
}
