package imaging

import (
	"container/list"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// DefaultCacheCapacity is the number of decoded photos kept by NewImageCache.
// Survey photos decode to 60-100 MB each, so the cache stays small.
const DefaultCacheCapacity = 8

// ImageCache provides thread-safe caching of loaded images to avoid redundant disk reads.
//
// The cache stores decoded image.Image objects keyed by their file path. Once an image
// is loaded, subsequent Load() calls for the same path return the cached copy without
// disk I/O.
//
// ImageCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// The cache holds at most Capacity images. When full, the least recently used
// image is evicted. Evict() and Clear() release memory explicitly.
//
// # Orientation
//
// Images are decoded with EXIF auto-orientation, so drone photos shot in
// portrait come out upright. Pixel coordinates always refer to the oriented
// image.
//
// # Example Usage
//
//	cache := imaging.NewImageCache()
//	img, err := cache.Load("/path/to/DJI_0042.JPG")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Use img...
//	cache.Evict("/path/to/DJI_0042.JPG") // Optional: free memory
type ImageCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	images   map[string]*list.Element
}

type cacheEntry struct {
	path string
	img  image.Image
}

// NewImageCache creates an empty cache holding DefaultCacheCapacity images.
func NewImageCache() *ImageCache {
	return NewImageCacheWithCapacity(DefaultCacheCapacity)
}

// NewImageCacheWithCapacity creates an empty cache holding at most capacity
// images. A capacity below one is treated as one.
func NewImageCacheWithCapacity(capacity int) *ImageCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ImageCache{
		capacity: capacity,
		order:    list.New(),
		images:   make(map[string]*list.Element),
	}
}

// Load retrieves an image from the cache or loads it from disk if not cached.
//
// Supported formats are PNG, JPEG, GIF, TIFF and WebP. The image is cached
// using the exact path string provided. Different paths to the same file
// (e.g., relative vs absolute) will result in separate cache entries.
//
// # Errors
//
//   - Returns error if the file does not exist or cannot be read
//   - Returns error if the file is not a valid image in a supported format
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.Lock()
	if el, ok := c.images[path]; ok {
		c.order.MoveToFront(el)
		img := el.Value.(*cacheEntry).img
		c.mu.Unlock()
		return img, nil
	}
	c.mu.Unlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.images[path]; ok {
		// Loaded concurrently; keep the first copy.
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).img, nil
	}
	c.images[path] = c.order.PushFront(&cacheEntry{path: path, img: img})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.images, oldest.Value.(*cacheEntry).path)
	}
	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.order.Init()
	c.images = make(map[string]*list.Element)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
//
// If the path is not in the cache, this method does nothing.
// After eviction, the next Load() call for this path will read from disk.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	if el, ok := c.images[path]; ok {
		c.order.Remove(el)
		delete(c.images, path)
	}
	c.mu.Unlock()
}

// ImageInfo contains metadata about a loaded image file.
type ImageInfo struct {
	// Width is the image width in pixels, after orientation.
	Width int `json:"width"`

	// Height is the image height in pixels, after orientation.
	Height int `json:"height"`

	// Format is the detected image format: "png", "jpeg", "gif", "tiff",
	// "webp" or "unknown". Detection is based on file extension, not file
	// contents.
	Format string `json:"format"`

	// ColorDepth indicates the bit depth per channel: "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads an image and returns metadata about it.
//
// The image is loaded into the cache if not already cached, so a following
// detection on the same path does not decode it again.
//
// # Color Depth Detection
//
// Color depth is determined by the Go image type:
//   - *image.RGBA64, *image.NRGBA64, *image.Gray16 -> "16-bit"
//   - All other types -> "8-bit"
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	colorDepth := "8-bit"
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		colorDepth = "16-bit"
	}

	bounds := img.Bounds()
	return &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        FormatFromPath(path),
		ColorDepth:    colorDepth,
		FileSizeBytes: stat.Size(),
	}, nil
}

// FormatFromPath returns the image format implied by the file extension.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	case ".tif", ".tiff":
		return "tiff"
	case ".webp":
		return "webp"
	}
	return "unknown"
}
