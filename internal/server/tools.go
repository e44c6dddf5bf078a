package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Single images
		{
			Name:        "gcp_image_info",
			Description: "Get the dimensions, format and file size of an aerial photo.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "gcp_detect",
			Description: "Detect a black and white ground control target in one photo and return its sub-pixel centre with the intermediate results of every stage. Optionally returns an enlarged, annotated crop of the search window as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"overlay": map[string]interface{}{
						"type":        "boolean",
						"description": "Return an annotated crop showing keypoints (boxes), the centre (red cross) and the search window. Default false",
						"default":     false,
					},
					"overlay_scale": map[string]interface{}{
						"type":        "integer",
						"description": "Integer enlargement of the overlay crop. Default 8",
						"default":     8,
					},
				},
				"required": []string{"path"},
			},
		},

		// Scenes
		{
			Name:        "gcp_process_batch",
			Description: "Run a full detection batch over a scene file: detect targets in every photo, match them to the surveyed markers, unpin projections with a large reprojection error and re-estimate marker positions. Returns the batch summary, the resulting projections and marker estimates.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scene": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the scene JSON file",
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Optional number of photos processed concurrently. Defaults to the server configuration",
					},
					"skip_if_pinned": map[string]interface{}{
						"type":        "boolean",
						"description": "Leave the scene untouched when any marker is already pinned. Default false",
						"default":     false,
					},
				},
				"required": []string{"scene"},
			},
		},
		{
			Name:        "gcp_reprojection_errors",
			Description: "Compute the reprojection error of every pinned projection of a scene file and report which pins the validator would unpin. The scene is not modified.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scene": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the scene JSON file",
					},
					"max_squared_error": map[string]interface{}{
						"type":        "number",
						"description": "Optional threshold in px². Defaults to the server configuration (80000)",
					},
				},
				"required": []string{"scene"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
