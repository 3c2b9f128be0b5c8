package geometry

import "math"

// Framing describes how far a head-and-shoulders crop extends beyond the
// detected face, as multiples of the face box size.
type Framing struct {
	Shoulder float64 `json:"shoulder"` // each side, x face width
	Headroom float64 `json:"headroom"` // above the face, x face height
	Chest    float64 `json:"chest"`    // below the face, x face height
}

// DefaultFraming produces a passport-style frame from a single face box.
var DefaultFraming = Framing{Shoulder: 0.3, Headroom: 0.75, Chest: 1.5}

// WidthFactor is the crop width as a multiple of the face width.
func (f Framing) WidthFactor() float64 { return 1 + 2*f.Shoulder }

// HeightFactor is the crop height as a multiple of the face height.
func (f Framing) HeightFactor() float64 { return f.Headroom + 1 + f.Chest }

// InitialCrop proposes a crop around face using DefaultFraming.
//
// For a 1000x800 image and a face at {400,200,200,200} the result is
// {340,50,320,650}.
func InitialCrop(face FaceBox, img Dimensions) Rect {
	return InitialCropWithFraming(face, img, DefaultFraming)
}

// InitialCropWithFraming proposes a crop around face, clamped to img. Callers
// must only invoke it with a detected face.
func InitialCropWithFraming(face FaceBox, img Dimensions, f Framing) Rect {
	x := math.Max(0, face.X-f.Shoulder*face.Width)
	y := math.Max(0, face.Y-f.Headroom*face.Height)
	return Rect{
		X:      x,
		Y:      y,
		Width:  math.Min(img.Width-x, face.Width*f.WidthFactor()),
		Height: math.Min(img.Height-y, face.Height*f.HeightFactor()),
	}
}
