// Package geometry holds the coordinate math behind the crop editor: the
// rectangle types shared by every other package, the mapping between
// source-image and display space, the face-box framing heuristic and the
// cover-fit sub-rectangle used for preview and export.
//
// All coordinates are float64 source-image pixels unless a function says
// otherwise. Nothing in this package allocates or returns errors.
package geometry

import (
	"image"
	"math"
)

// Point is a position in either source or display space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimensions is the size of an image or canvas.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DimensionsOf returns the pixel dimensions of img.
func DimensionsOf(img image.Image) Dimensions {
	b := img.Bounds()
	return Dimensions{Width: float64(b.Dx()), Height: float64(b.Dy())}
}

// Empty reports whether either side is not positive.
func (d Dimensions) Empty() bool {
	return d.Width <= 0 || d.Height <= 0
}

// Aspect returns Width/Height.
func (d Dimensions) Aspect() float64 {
	return Aspect(d.Width, d.Height)
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Aspect returns Width/Height.
func (r Rect) Aspect() float64 { return Aspect(r.Width, r.Height) }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Within reports whether r is non-empty and fully inside an image of size d.
func (r Rect) Within(d Dimensions) bool {
	return !r.Empty() &&
		r.X >= 0 && r.Y >= 0 &&
		r.Right() <= d.Width && r.Bottom() <= d.Height
}

// Image converts r to an integer rectangle anchored at origin, rounding each
// edge to the nearest pixel.
func (r Rect) Image(origin image.Point) image.Rectangle {
	return image.Rect(
		origin.X+int(math.Round(r.X)),
		origin.Y+int(math.Round(r.Y)),
		origin.X+int(math.Round(r.Right())),
		origin.Y+int(math.Round(r.Bottom())),
	)
}

// FaceBox is a face bounding box reported by a detector, in source pixels.
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Score  float64 `json:"score"`
}

// Rect returns the box without its score.
func (f FaceBox) Rect() Rect {
	return Rect{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
}

// Aspect returns w/h, or 0 when h is not positive.
func Aspect(w, h float64) float64 {
	if h <= 0 {
		return 0
	}
	return w / h
}
