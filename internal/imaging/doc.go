// Package imaging loads survey photos and renders debug overlays for the MCP
// server.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// Coordinates refer to the image after EXIF orientation has been applied.
//
// # Supported Formats
//
// PNG, JPEG, GIF, TIFF and WebP are decoded. Overlays are always encoded as
// base64 PNG.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Overlay rendering never
// modifies its input and can run concurrently on the same image.
//
// # Performance Considerations
//
// A full-resolution drone photo takes tens of megabytes once decoded. The
// cache is bounded and evicts the least recently used image; size it to the
// number of detection workers rather than to the batch.
package imaging
