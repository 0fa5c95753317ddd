package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semindex/internal/query"
	"github.com/standardbeagle/semindex/internal/store"
	"github.com/standardbeagle/semindex/internal/types"
	"github.com/standardbeagle/semindex/internal/vectorstore"
)

func newTestServer(t *testing.T) (*Server, types.ProjectID) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "rel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vs, err := vectorstore.Open(filepath.Join(dir, "vec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	projectID, err := s.UpsertProject(context.Background(), "proj", "/abs/proj", "")
	require.NoError(t, err)

	surface := &query.Surface{Store: s, VecStore: vs, DefaultLimit: 100}
	return New(surface, nil), projectID
}

func callTool(t *testing.T, args map[string]any) *mcp.CallToolRequest {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: raw}}
}

func decodeText(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestHandleGetFileByPath_ReturnsErrorResponseForMissingFile(t *testing.T) {
	srv, projectID := newTestServer(t)
	req := callTool(t, map[string]any{"project_id": int64(projectID), "path": "missing.go"})

	result, err := srv.handleGetFileByPath(context.Background(), req)
	require.NoError(t, err)

	body := decodeText(t, result)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "get_file_by_path", body["operation"])
}

func TestHandleGetFileByPath_ReturnsStoredFile(t *testing.T) {
	srv, projectID := newTestServer(t)
	_, err := srv.surface.Store.IngestFile(context.Background(), projectID, types.File{
		ProjectID: projectID, FilePath: "main.go", Language: types.LangGo, Content: "package main\n", ContentHash: "h",
	}, nil, nil)
	require.NoError(t, err)

	req := callTool(t, map[string]any{"project_id": int64(projectID), "path": "main.go"})
	result, err := srv.handleGetFileByPath(context.Background(), req)
	require.NoError(t, err)

	var file types.File
	text := result.Content[0].(*mcp.TextContent).Text
	require.NoError(t, json.Unmarshal([]byte(text), &file))
	assert.Equal(t, "main.go", file.FilePath)
}

func TestHandleGetBlocksByName_ParsesOptionalProjectID(t *testing.T) {
	srv, projectID := newTestServer(t)
	_, err := srv.surface.Store.IngestFile(context.Background(), projectID, types.File{
		ProjectID: projectID, FilePath: "a.go", Language: types.LangGo, Content: "x", ContentHash: "h",
	}, []types.CodeBlock{{ID: 1, Type: types.BlockFunction, Name: "handle", StartLine: 1, EndLine: 2}}, nil)
	require.NoError(t, err)

	req := callTool(t, map[string]any{"name": "handle"})
	result, err := srv.handleGetBlocksByName(context.Background(), req)
	require.NoError(t, err)

	var blocks []types.CodeBlock
	text := result.Content[0].(*mcp.TextContent).Text
	require.NoError(t, json.Unmarshal([]byte(text), &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, "handle", blocks[0].Name)
}

func TestHandleSemanticSearch_ErrorsWithoutEmbedder(t *testing.T) {
	srv, _ := newTestServer(t)
	req := callTool(t, map[string]any{"query_text": "parse config"})

	result, err := srv.handleSemanticSearch(context.Background(), req)
	require.NoError(t, err)

	body := decodeText(t, result)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "no embedding model loaded")
}

func TestHandleGetBlockDetails_ReturnsErrorForMissingBlock(t *testing.T) {
	srv, _ := newTestServer(t)
	req := callTool(t, map[string]any{"block_id": int64(999)})

	result, err := srv.handleGetBlockDetails(context.Background(), req)
	require.NoError(t, err)

	body := decodeText(t, result)
	assert.Equal(t, false, body["success"])
}

func TestHandleGetDependencyChain_DefaultsDepthWhenUnset(t *testing.T) {
	srv, projectID := newTestServer(t)
	_, err := srv.surface.Store.IngestFile(context.Background(), projectID, types.File{
		ProjectID: projectID, FilePath: "a.go", Language: types.LangGo, Content: "x", ContentHash: "h",
	}, nil, nil)
	require.NoError(t, err)

	req := callTool(t, map[string]any{"project_id": int64(projectID), "path": "a.go"})
	result, err := srv.handleGetDependencyChain(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
}

func TestNew_CreatesMCPServer(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.NotNil(t, srv.mcp)
}
