package geometry

import "math"

// Scale is the number of source-image pixels per displayed pixel on each axis.
type Scale struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Identity is the scale of an image displayed at its natural size.
var Identity = Scale{X: 1, Y: 1}

// NewScale returns the display scale for an image of size source rendered at
// size display. Degenerate display sizes yield Identity.
func NewScale(source, display Dimensions) Scale {
	if source.Empty() || display.Empty() {
		return Identity
	}
	return Scale{X: source.Width / display.Width, Y: source.Height / display.Height}
}

// ToDisplay projects a source-space rectangle into display space.
func ToDisplay(r Rect, s Scale) Rect {
	return Rect{
		X:      r.X / s.X,
		Y:      r.Y / s.Y,
		Width:  r.Width / s.X,
		Height: r.Height / s.Y,
	}
}

// ToSource maps a display-space point back to source pixels.
func ToSource(p Point, s Scale) Point {
	return Point{X: p.X * s.X, Y: p.Y * s.Y}
}

// ToSourceDelta returns the pointer movement from -> to in source pixels.
func ToSourceDelta(from, to Point, s Scale) Point {
	return ToSource(Point{X: to.X - from.X, Y: to.Y - from.Y}, s)
}

// FitWidth returns the display size of source when it may be at most maxWidth
// wide. Images are never enlarged; a non-positive maxWidth disables the limit.
func FitWidth(source Dimensions, maxWidth float64) Dimensions {
	if maxWidth <= 0 || source.Empty() {
		return source
	}
	f := math.Min(1, maxWidth/source.Width)
	return Dimensions{Width: source.Width * f, Height: source.Height * f}
}
