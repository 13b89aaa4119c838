package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/imagine/pkg/logstore"
	"github.com/pario-ai/imagine/pkg/provider"
	"github.com/pario-ai/imagine/pkg/session"
)

type generateArgs struct {
	Prompt string `json:"prompt"`
}

type sessionLogsArgs struct {
	SessionID string `json:"session_id"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"imagine_generate":     handleGenerate,
	"imagine_usage":        handleUsage,
	"imagine_sessions":     handleSessions,
	"imagine_session_logs": handleSessionLogs,
}

// historyTools need a History.
var historyTools = map[string]bool{
	"imagine_sessions":     true,
	"imagine_session_logs": true,
}

var allTools = []ToolDefinition{
	{
		Name:        "imagine_generate",
		Description: "Generate an image from a text prompt. Returns the image reference, or the image itself when the provider returns inline data.",
		InputSchema: objectSchema(map[string]string{"prompt": "Text prompt describing the image"}),
	},
	{
		Name:        "imagine_usage",
		Description: "Show the provider's daily quota and how much of it is used.",
		InputSchema: objectSchema(nil),
	},
	{
		Name:        "imagine_sessions",
		Description: "List UI sessions that have persisted generation history.",
		InputSchema: objectSchema(nil),
	},
	{
		Name:        "imagine_session_logs",
		Description: "Show the generation history of one UI session, most recent first.",
		InputSchema: objectSchema(map[string]string{"session_id": "The session ID to inspect"}),
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{textBlock(text)}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{textBlock(text)}, IsError: true}
}

func handleGenerate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args generateArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if strings.TrimSpace(args.Prompt) == "" {
		return errorResult(session.EmptyPromptMessage)
	}

	start := time.Now()
	url, err := s.gen.Generate(ctx, args.Prompt)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return errorResult(fmt.Sprintf("Generation failed (%d): %s", provider.StatusOf(err), provider.MessageOf(err)))
	}

	summary := fmt.Sprintf("Generation Time: %d ms", elapsed)
	if mime, data, ok := splitDataURL(url); ok {
		return ToolCallResult{Content: []ContentBlock{imageBlock(mime, data), textBlock(summary)}}
	}
	return textResult(url + "\n" + summary)
}

func handleUsage(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	u, err := s.gen.Usage(ctx)
	if err != nil {
		return errorResult("Usage unavailable: " + provider.MessageOf(err))
	}
	return textResult(fmt.Sprintf("API Usage: %d/%d (%d remaining)", u.Used, u.DailyQuota, u.Remaining()))
}

func handleSessions(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	infos, err := s.history.List(ctx)
	if err != nil {
		return errorResult("Error listing sessions: " + err.Error())
	}
	return textResult(formatSessions(infos))
}

func handleSessionLogs(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args sessionLogsArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.SessionID == "" {
		return errorResult("session_id is required")
	}
	entries := logstore.New(ctx, s.history.Namespace(args.SessionID)).Logs()
	return textResult(formatLogs(entries))
}

// splitDataURL splits "data:<mime>;base64,<data>".
func splitDataURL(u string) (mime, data string, ok bool) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return "", "", false
	}
	head, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", false
	}
	mime, ok = strings.CutSuffix(head, ";base64")
	if !ok {
		return "", "", false
	}
	return mime, data, true
}
