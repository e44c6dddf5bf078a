package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/golang/geo/r3"

	"github.com/ironsheep/gcp-tools-mcp/internal/detection"
	"github.com/ironsheep/gcp-tools-mcp/internal/imaging"
	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
	"github.com/ironsheep/gcp-tools-mcp/internal/pipeline"
	"github.com/ironsheep/gcp-tools-mcp/internal/scene"
	"github.com/ironsheep/gcp-tools-mcp/internal/validator"
)

// errNoScenePath is returned by scene tools called without a scene file.
var errNoScenePath = errors.New("scene path is required")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "gcp_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(context.Background(), params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Single images
	case "gcp_image_info":
		return s.handleImageInfo(args)
	case "gcp_detect":
		return s.handleDetect(ctx, args)

	// Scenes
	case "gcp_process_batch":
		return s.handleProcessBatch(ctx, args)
	case "gcp_reprojection_errors":
		return s.handleReprojectionErrors(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Single Image Handlers ===

type imageInfoArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageInfo(args json.RawMessage) (interface{}, error) {
	var a imageInfoArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

type detectArgs struct {
	Path         string `json:"path"`
	Overlay      bool   `json:"overlay"`
	OverlayScale int    `json:"overlay_scale"`
}

// DetectResult is the outcome of gcp_detect.
type DetectResult struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	*detection.Result

	Overlay *imaging.OverlayResult `json:"overlay,omitempty"`
}

// Overlay colours.
const (
	keypointColor = "#FFFF00"
	guessColor    = "#00A0FF"
	centerColor   = "#FF0000"
)

func (s *Server) handleDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.OverlayScale == 0 {
		a.OverlayScale = 8
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	if d := time.Duration(s.cfg.Pipeline.DetectTimeout); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	res, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	out := &DetectResult{
		Path:   a.Path,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Result: res,
	}
	if a.Overlay {
		region, ok := overlayRegion(res, s.cfg.Detection.CropHalfSize)
		if ok {
			if out.Overlay, err = imaging.AnnotatedCrop(img, region, a.OverlayScale, overlayMarks(res)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// overlayRegion returns the area worth showing for res: the search window
// when one was cut, otherwise the keypoints with a margin.
func overlayRegion(res *detection.Result, margin int) (image.Rectangle, bool) {
	if !res.Window.Empty() {
		return res.Window, true
	}
	if len(res.Keypoints) == 0 {
		return image.Rectangle{}, false
	}

	var r image.Rectangle
	for i, kp := range res.Keypoints {
		p := image.Pt(int(kp.X), int(kp.Y))
		box := image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))}
		if i == 0 {
			r = box
		} else {
			r = r.Union(box)
		}
	}
	return r.Inset(-margin), true
}

func overlayMarks(res *detection.Result) []imaging.Mark {
	marks := make([]imaging.Mark, 0, len(res.Keypoints)+2)
	for i, kp := range res.Keypoints {
		marks = append(marks, imaging.Mark{
			X:     kp.X,
			Y:     kp.Y,
			Style: imaging.MarkBox,
			Color: keypointColor,
			Label: strconv.Itoa(i + 1),
		})
	}
	if !res.Window.Empty() {
		marks = append(marks, imaging.Mark{X: float64(res.Guess.X), Y: float64(res.Guess.Y), Color: guessColor})
	}
	if res.Found {
		marks = append(marks, imaging.Mark{X: res.Center.X, Y: res.Center.Y, Color: centerColor})
	}
	return marks
}

// === Scene Handlers ===

func (s *Server) loadScene(path string) (*scene.Scene, error) {
	if path == "" {
		return nil, errNoScenePath
	}
	return scene.Load(path, scene.WithImageCache(s.cache))
}

type processBatchArgs struct {
	Scene        string `json:"scene"`
	Workers      int    `json:"workers"`
	SkipIfPinned bool   `json:"skip_if_pinned"`
}

// BatchResult is the outcome of gcp_process_batch.
type BatchResult struct {
	Summary     *pipeline.Summary              `json:"summary"`
	Projections map[string][]marker.Projection `json:"projections"`
	Estimates   map[string]r3.Vector           `json:"estimates"`
}

func (s *Server) handleProcessBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a processBatchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	sc, err := s.loadScene(a.Scene)
	if err != nil {
		return nil, err
	}

	cfg := s.cfg.Pipeline
	if a.Workers > 0 {
		cfg.Workers = a.Workers
	}
	if a.SkipIfPinned {
		cfg.SkipIfPinned = true
	}

	p, err := pipeline.New(sc, s.detector, cfg)
	if err != nil {
		return nil, err
	}
	summary, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}

	refs, err := sc.Markers(ctx)
	if err != nil {
		return nil, err
	}
	estimates, err := sc.MarkerEstimates(ctx)
	if err != nil {
		return nil, err
	}

	projections := make(map[string][]marker.Projection, len(refs))
	for _, ref := range refs {
		projections[ref.ID] = sc.Projections().Entries(ref.ID)
	}
	return &BatchResult{Summary: summary, Projections: projections, Estimates: estimates}, nil
}

type reprojectionErrorsArgs struct {
	Scene           string  `json:"scene"`
	MaxSquaredError float64 `json:"max_squared_error"`
}

// ReprojectionResult is the outcome of gcp_reprojection_errors.
type ReprojectionResult struct {
	Pins   int               `json:"pins"`
	RMS    float64           `json:"rms"`
	Report *validator.Report `json:"report"`
}

func (s *Server) handleReprojectionErrors(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a reprojectionErrorsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	sc, err := s.loadScene(a.Scene)
	if err != nil {
		return nil, err
	}

	cfg := s.cfg.Pipeline.Validator
	if a.MaxSquaredError > 0 {
		cfg.MaxSquaredError = a.MaxSquaredError
	}

	refs, err := sc.Markers(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	estimates, err := sc.MarkerEstimates(ctx)
	if err != nil {
		return nil, err
	}

	pins := marker.PinnedOf(sc.Projections(), ids)
	report, err := validator.Validate(ctx, pins, estimates, sc.Project, cfg)
	if err != nil {
		return nil, err
	}
	return &ReprojectionResult{Pins: len(pins), RMS: report.RMS(), Report: report}, nil
}
