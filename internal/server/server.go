package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ironsheep/gcp-tools-mcp/internal/config"
	"github.com/ironsheep/gcp-tools-mcp/internal/detection"
	"github.com/ironsheep/gcp-tools-mcp/internal/imaging"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "gcp-tools-mcp"
	serverVersion   = "0.1.0"

	// Lines longer than this are dropped by the scanner. Scene paths and
	// detector overrides fit comfortably.
	maxRequestLine = 1024 * 1024

	codeMethodNotFound = -32601
)

// Server exposes GCP detection and scene validation tools over MCP stdio.
// The detector and photo cache are shared by every tool call.
type Server struct {
	cfg      config.Config
	cache    *imaging.ImageCache
	detector *detection.Detector
}

// MCPRequest is one JSON-RPC line read from the client.
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse is written back for every request that carries an ID.
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError carries the JSON-RPC error code; Data holds the Go error text.
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New builds a server from a validated configuration. The photo cache is
// sized from cfg.CacheCapacity.
func New(cfg config.Config) *Server {
	return &Server{
		cfg:      cfg,
		cache:    imaging.NewImageCacheWithCapacity(cfg.CacheCapacity),
		detector: detection.New(cfg.Detection),
	}
}

// Run serves on stdin and stdout until the client closes its end.
func (s *Server) Run() error {
	return s.Serve(os.Stdin, os.Stdout)
}

// Serve answers newline-delimited requests from r on w. Malformed lines are
// logged and skipped so a single bad request never ends the session.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)

	encoder := json.NewEncoder(w)
	handled := 0

	for scanner.Scan() {
		resp := s.serveLine(scanner.Bytes())
		if resp == nil {
			continue
		}
		handled++
		if err := encoder.Encode(resp); err != nil {
			log.Printf("gcp-mcp: writing response to request %v: %v", resp.ID, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading MCP requests: %w", err)
	}

	log.Printf("gcp-mcp: client closed after %d responses, %d photos cached", handled, s.cache.Len())
	return nil
}

// serveLine decodes and dispatches one line. Blank lines, undecodable JSON
// and notifications produce no response.
func (s *Server) serveLine(line []byte) *MCPResponse {
	if len(line) == 0 {
		return nil
	}

	var req MCPRequest
	if err := json.Unmarshal(line, &req); err != nil {
		log.Printf("gcp-mcp: skipping malformed request line: %v", err)
		return nil
	}
	return s.handleRequest(&req)
}

func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return s.result(req.ID, map[string]interface{}{})
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    codeMethodNotFound,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize advertises the tool capability only; GCP tools have no
// resources or prompts.
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return s.result(req.ID, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    serverName,
			"version": serverVersion,
		},
	})
}

func (s *Server) result(id interface{}, v interface{}) *MCPResponse {
	return &MCPResponse{JSONRPC: "2.0", ID: id, Result: v}
}
