package mcp

import "encoding/json"

const (
	jsonrpcVersion = "2.0"
	// protocolVersion is the MCP revision this server speaks.
	protocolVersion = "2024-11-05"
	serverName      = "imagine"
)

// Request is one line read from the client. Notifications carry no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one line written back. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError reports a protocol-level failure. Failed generations are not
// protocol errors; they come back as a ToolCallResult with IsError set.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Codes used in RPCError.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

func resultFor(id json.RawMessage, v any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Result: v}
}

func errorFor(id json.RawMessage, code int, msg string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: code, Message: msg}}
}

// InitializeResult announces the server and its tool support.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ServerInfo names the imagine build answering the client.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities lists what the client may call. imagine offers tools only.
type Capabilities struct {
	Tools struct{} `json:"tools"`
}

// ToolDefinition is one entry of tools/list.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON Schema of a tool's arguments. Every imagine tool
// takes an object of string fields.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one string argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

func objectSchema(required map[string]string) InputSchema {
	s := InputSchema{Type: "object", Properties: map[string]Property{}}
	for name, desc := range required {
		s.Properties[name] = Property{Type: "string", Description: desc}
		s.Required = append(s.Required, name)
	}
	return s
}

// ToolsListResult answers tools/list.
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolCallParams selects a tool and carries its raw arguments.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is what a tool produced: the generated image, quota
// counters or session history, rendered as content blocks.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is either text or an inline image. Image blocks carry the
// base64 payload of a data: URL returned by the provider.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

func textBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

func imageBlock(mime, data string) ContentBlock {
	return ContentBlock{Type: "image", Data: data, MimeType: mime}
}
