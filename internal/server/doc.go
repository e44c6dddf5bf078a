// Package server implements the MCP (Model Context Protocol) server for ground
// control point tools.
//
// This package provides a JSON-RPC 2.0 server that exposes marker detection
// and batch processing through the MCP protocol.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Single images:
//   - gcp_image_info: Dimensions, format and file size of a photo
//   - gcp_detect: Detect a survey target, optionally with an annotated crop
//
// Scenes:
//   - gcp_process_batch: Detect, match, validate and refine a whole scene file
//   - gcp_reprojection_errors: Report pin errors without changing anything
//
// A scene file describes calibrated cameras, their photos, the surveyed
// markers and optionally projections from earlier runs; see package scene.
// Every batch loads the scene afresh, so tool calls never share state apart
// from the image cache.
//
// # Image Caching
//
// Decoded photos are kept in a bounded LRU cache shared by all tools. Its
// capacity comes from the configuration (GCP_MCP_CACHE_CAPACITY).
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A photo without a target is not an error: gcp_detect reports found=false
// and the stage that rejected the photo.
//
// # Usage
//
//	cfg, err := config.Load(os.Getenv("GCP_MCP_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := server.New(cfg).Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
