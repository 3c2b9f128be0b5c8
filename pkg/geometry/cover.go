package geometry

import "math"

// CoverFit returns the largest sub-rectangle of r, centered in r, whose aspect
// ratio equals targetAspect. Drawing it into a target of that ratio fills the
// target completely and crops the overflow instead of letterboxing.
//
// The result is clamped to an image of size img. For a rectangle inside img
// the clamp is a no-op, so the output keeps targetAspect and applying CoverFit
// again with the same ratio returns the same rectangle.
func CoverFit(r Rect, targetAspect float64, img Dimensions) Rect {
	out := r
	if targetAspect <= 0 || r.Empty() {
		return out
	}

	if targetAspect > r.Aspect() {
		// target is relatively wider: trim height
		out.Height = r.Width / targetAspect
		out.Y = r.Y + (r.Height-out.Height)/2
	} else {
		out.Width = r.Height * targetAspect
		out.X = r.X + (r.Width-out.Width)/2
	}

	out.X = math.Max(0, out.X)
	out.Y = math.Max(0, out.Y)
	out.Width = math.Min(out.Width, img.Width-out.X)
	out.Height = math.Min(out.Height, img.Height-out.Y)
	return out
}
