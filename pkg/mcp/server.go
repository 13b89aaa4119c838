// Package mcp exposes imagine to MCP clients over stdio: prompts can be
// submitted, quota checked and persisted session history browsed.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/models"
	"github.com/pario-ai/imagine/pkg/storage"
)

// Generator is the generation and usage surface, normally a client of a
// running imagine server.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Usage(ctx context.Context) (models.UsageInfo, error)
}

// History is read access to persisted session history.
type History interface {
	List(ctx context.Context) ([]models.NamespaceInfo, error)
	Namespace(name string) storage.Storage
}

// Server is a minimal MCP server speaking JSON-RPC 2.0 over stdio.
type Server struct {
	gen     Generator
	history History
	version string
}

// New creates a Server. history may be nil, which disables the history
// tools.
func New(gen Generator, history History, version string) *Server {
	return &Server{
		gen:     gen,
		history: history,
		version: version,
	}
}

// Run reads one JSON-RPC request per line from r and writes responses to w.
// It blocks until r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(ctx, w, *errorFor(nil, CodeParseError, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			continue // notification
		}
		s.writeResponse(ctx, w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultFor(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return resultFor(req.ID, ToolsListResult{Tools: s.tools()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorFor(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) tools() []ToolDefinition {
	if s.history != nil {
		return allTools
	}
	out := make([]ToolDefinition, 0, len(allTools))
	for _, t := range allTools {
		if !historyTools[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorFor(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok || (historyTools[params.Name] && s.history == nil) {
		return resultFor(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	logging.From(ctx).Debug("mcp tool call", "tool", params.Name)
	return resultFor(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(ctx context.Context, w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.From(ctx).Error("mcp: marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Error("mcp: write response", "error", err)
	}
}
