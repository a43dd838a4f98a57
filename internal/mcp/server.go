package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mfenderov/cvf-papers/internal/elasticsearch"
	"github.com/mfenderov/cvf-papers/pkg/models"
)

// Config holds MCP server configuration.
type Config struct {
	Name        string
	Version     string
	ESAddresses []string
	ESIndex     string
	ESUsername  string
	ESPassword  string
}

// paperIndex is the part of the Elasticsearch client the tools need.
type paperIndex interface {
	Search(ctx context.Context, req elasticsearch.SearchRequest) ([]models.PaperDocument, error)
	GetDocument(ctx context.Context, id string) (*models.PaperDocument, error)
}

// Server exposes the paper index as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	index     paperIndex
}

// NewServer creates a new MCP server with search tools.
func NewServer(config Config) (*Server, error) {
	esClient, err := elasticsearch.New(elasticsearch.Config{
		Addresses: config.ESAddresses,
		Index:     config.ESIndex,
		Username:  config.ESUsername,
		Password:  config.ESPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return newServer(config.Name, config.Version, esClient), nil
}

func newServer(name, version string, index paperIndex) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		index:     index,
	}

	searchTool := mcp.NewTool("search_papers",
		mcp.WithDescription("Search crawled CVF papers by title, abstract and authors. Returns matching paper records as JSON."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
		mcp.WithString("conference",
			mcp.Description("Restrict results to one conference, e.g. CVPR2023"),
		),
	)
	mcpServer.AddTool(searchTool, s.searchHandler)

	getTool := mcp.NewTool("get_paper",
		mcp.WithDescription("Get a single paper record by ID"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Paper ID as returned by search_papers"),
		),
	)
	mcpServer.AddTool(getTool, s.getPaperHandler)

	return s
}

func (s *Server) searchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	docs, err := s.index.Search(ctx, elasticsearch.SearchRequest{
		Query:      query,
		Conference: req.GetString("conference", ""),
		Limit:      req.GetInt("limit", 10),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	result, err := json.Marshal(docs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

func (s *Server) getPaperHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	doc, err := s.index.GetDocument(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get paper failed: %v", err)), nil
	}

	if doc == nil {
		return mcp.NewToolResultError(fmt.Sprintf("paper not found: %s", id)), nil
	}

	result, err := json.Marshal(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal paper: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
