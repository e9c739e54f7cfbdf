package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docindex/internal/async"
	"github.com/Aman-CERP/docindex/internal/retrieve"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/pkg/version"
)

const (
	defaultLimit = 5
	maxLimit     = 50
)

// Config holds the server's collaborators. Progress is optional.
type Config struct {
	Retriever *retrieve.Retriever
	IndexPath string
	Header    store.Header
	Progress  *async.IndexProgress
	// TopK is the default number of passages returned by search.
	TopK int
}

// Server bridges MCP clients to a retriever.
type Server struct {
	mcp       *mcp.Server
	retriever *retrieve.Retriever
	indexPath string
	progress  *async.IndexProgress
	topK      int
	logger    *slog.Logger

	mu     sync.RWMutex
	header store.Header
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Semantic search over the indexed documents. Returns the passages most similar to the query with their document, byte span and score.",
	},
	{
		Name:        "index_status",
		Description: "Report the loaded index: embedding provider, dimension, metric, documents and record count, plus background indexing progress.",
	},
}

// NewServer creates a server and registers its tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultLimit
	}

	s := &Server{
		retriever: cfg.Retriever,
		indexPath: cfg.IndexPath,
		progress:  cfg.Progress,
		topK:      min(topK, maxLimit),
		header:    cfg.Header,
		logger:    slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "docindex", Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// SetHeader replaces the header reported by index_status, e.g. after a
// background run saved the index.
func (s *Server) SetHeader(h store.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header = h
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name. Arguments follow the JSON schema of the
// tool's input type.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		in := SearchInput{}
		if q, ok := args["query"].(string); ok {
			in.Query = q
		}
		// JSON numbers decode as float64.
		switch l := args["limit"].(type) {
		case float64:
			in.Limit = int(l)
		case int:
			in.Limit = l
		}
		out, err := s.Search(ctx, in)
		if err != nil {
			return nil, err
		}
		return out, nil
	case "index_status":
		return s.IndexStatus(ctx)
	default:
		return nil, MapError(ErrToolNotFound)
	}
}

// Search runs the search tool.
func (s *Server) Search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return SearchOutput{}, NewInvalidParamsError("query must be a non-empty string")
	}
	limit := s.topK
	if in.Limit > 0 {
		limit = min(in.Limit, maxLimit)
	}

	start := time.Now()
	passages, err := s.retriever.Query(ctx, query, limit)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("error", err.Error()))
		return SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: make([]PassageOutput, 0, len(passages))}
	for _, p := range passages {
		out.Results = append(out.Results, toPassageOutput(p))
	}
	if s.progress != nil && s.progress.IsIndexing() {
		snap := s.progress.Snapshot()
		out.Indexing = &snap
	}

	s.logger.Info("mcp_search_complete",
		slog.Int("limit", limit),
		slog.Int("results", len(out.Results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return out, nil
}

// IndexStatus runs the index_status tool.
func (s *Server) IndexStatus(_ context.Context) (*IndexStatusOutput, error) {
	s.mu.RLock()
	hdr := s.header
	s.mu.RUnlock()

	idx := s.retriever.Index()
	id := idx.Identity()
	out := &IndexStatusOutput{
		Index: IndexInfo{
			Path:       s.indexPath,
			Records:    idx.Len(),
			Dimension:  idx.Dimension(),
			Metric:     idx.Metric().String(),
			Documents:  documents(hdr),
			Incomplete: s.indexPath != "" && async.HasIncompleteRun(s.indexPath),
		},
		Embeddings: EmbeddingInfo{
			Provider:   id.Provider,
			Model:      id.Model,
			Dimensions: idx.Dimension(),
		},
	}
	if !hdr.CreatedAt.IsZero() {
		out.Index.CreatedAt = hdr.CreatedAt.UTC().Format(time.RFC3339)
		out.Index.UpdatedAt = hdr.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if s.progress != nil {
		snap := s.progress.Snapshot()
		out.Indexing = &snap
	}
	return out, nil
}

func documents(hdr store.Header) []DocumentInfo {
	out := make([]DocumentInfo, 0, len(hdr.Documents))
	for id, d := range hdr.Documents {
		info := DocumentInfo{ID: id, Source: d.Source, Chunks: d.Chunks}
		if !d.IndexedAt.IsZero() {
			info.IndexedAt = d.IndexedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, err := s.Search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(input.Query, out)}},
	}
	return result, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.IndexStatus(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, out, nil
}

// Serve runs the server over stdio until ctx is done or the client leaves.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_start", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
