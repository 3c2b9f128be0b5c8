// Package detection finds faces in photos. Two backends are provided: a
// local pixel-intensity cascade (pigo) and a vision language model reached
// through a client.VisionClient. Both report boxes in source pixels, best
// first.
package detection

import (
	"context"
	"errors"
	"image"
	"sort"

	"github.com/menta2k/headshot/pkg/geometry"
)

// ErrModelLoad is wrapped by every error caused by a detector that could not
// be loaded or reached, as opposed to one that ran and failed.
var ErrModelLoad = errors.New("face detection model unavailable")

// FaceDetector returns the faces found in img, highest score first. An empty
// result with a nil error means the detector ran and found nothing.
type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]geometry.FaceBox, error)
}

// DetectorFunc adapts a function to the FaceDetector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]geometry.FaceBox, error)

// DetectFaces calls f.
func (f DetectorFunc) DetectFaces(ctx context.Context, img image.Image) ([]geometry.FaceBox, error) {
	return f(ctx, img)
}

// sortByScore orders faces best first, keeping detector order for ties.
func sortByScore(faces []geometry.FaceBox) {
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})
}

// clipToImage intersects a face box with the image and drops boxes left
// without area.
func clipToImage(faces []geometry.FaceBox, d geometry.Dimensions) []geometry.FaceBox {
	out := faces[:0]
	for _, f := range faces {
		x0, y0 := clamp(f.X, 0, d.Width), clamp(f.Y, 0, d.Height)
		x1, y1 := clamp(f.X+f.Width, 0, d.Width), clamp(f.Y+f.Height, 0, d.Height)
		if x1-x0 <= 0 || y1-y0 <= 0 {
			continue
		}
		out = append(out, geometry.FaceBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0, Score: f.Score})
	}
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
