package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
)

// MarkStyle selects how a mark is drawn.
type MarkStyle int

const (
	// MarkCross draws a thin cross, for precise positions.
	MarkCross MarkStyle = iota
	// MarkBox draws a hollow square, for candidate positions.
	MarkBox
)

// Mark is a point of interest drawn on an overlay, in source image pixels.
type Mark struct {
	X     float64
	Y     float64
	Style MarkStyle
	Color string // hex, "#RRGGBB" or "#RRGGBBAA"
	Label string // digits and commas only
}

// Region is a rectangle in source image pixels.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OverlayResult contains an annotated crop of an image.
type OverlayResult struct {
	Region      Region `json:"region"`
	Scale       int    `json:"scale"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// AnnotatedCrop cuts region out of img, enlarges it by an integer scale with
// nearest-neighbour sampling so single pixels stay visible, and draws marks
// on top. The region is clamped to the image bounds.
//
// Marks outside the region are skipped. A mark at pixel (x, y) is drawn at
// the centre of the enlarged pixel.
func AnnotatedCrop(img image.Image, region image.Rectangle, scale int, marks []Mark) (*OverlayResult, error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("overlay region outside image bounds %v", img.Bounds())
	}
	if scale < 1 {
		scale = 1
	}

	cropped := imaging.Crop(img, region)
	if scale > 1 {
		cropped = imaging.Resize(cropped, region.Dx()*scale, region.Dy()*scale, imaging.NearestNeighbor)
	}

	result := image.NewRGBA(cropped.Bounds())
	draw.Draw(result, result.Bounds(), cropped, image.Point{}, draw.Src)

	for _, m := range marks {
		c, err := parseHexColor(m.Color)
		if err != nil {
			c = color.RGBA{255, 0, 0, 255} // Default: red
		}

		px := int(math.Floor((m.X - float64(region.Min.X) + 0.5) * float64(scale)))
		py := int(math.Floor((m.Y - float64(region.Min.Y) + 0.5) * float64(scale)))
		if !(image.Point{X: px, Y: py}).In(result.Bounds()) {
			continue
		}

		size := 2 * scale
		switch m.Style {
		case MarkBox:
			drawBox(result, px, py, size, c)
		default:
			drawCross(result, px, py, size, c)
		}
		if m.Label != "" {
			drawLabel(result, px+size+2, py-size-2, m.Label, color.RGBA{255, 255, 255, 255}, color.RGBA{0, 0, 0, 180})
		}
	}

	encoded, err := EncodePNG(result)
	if err != nil {
		return nil, err
	}

	return &OverlayResult{
		Region: Region{
			X:      region.Min.X,
			Y:      region.Min.Y,
			Width:  region.Dx(),
			Height: region.Dy(),
		},
		Scale:       scale,
		Width:       result.Bounds().Dx(),
		Height:      result.Bounds().Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// EncodePNG encodes img as a base64 PNG.
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func drawCross(img *image.RGBA, x, y, size int, c color.RGBA) {
	for d := -size; d <= size; d++ {
		setIfInside(img, x+d, y, c)
		setIfInside(img, x, y+d, c)
	}
}

func drawBox(img *image.RGBA, x, y, size int, c color.RGBA) {
	for d := -size; d <= size; d++ {
		setIfInside(img, x+d, y-size, c)
		setIfInside(img, x+d, y+size, c)
		setIfInside(img, x-size, y+d, c)
		setIfInside(img, x+size, y+d, c)
	}
}

func setIfInside(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// drawLabel draws a small label with a 3x5 pixel font (digits and comma).
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		',': {"000", "000", "000", "010", "010"},
	}

	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			setIfInside(img, x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					setIfInside(img, cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
