package detection

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/headshot/pkg/geometry"
)

// PigoParams tunes the cascade scan.
type PigoParams struct {
	MinSize      int     `json:"min_size"`
	MaxSize      int     `json:"max_size"` // 0 means the shorter image side
	ShiftFactor  float64 `json:"shift_factor"`
	ScaleFactor  float64 `json:"scale_factor"`
	IoUThreshold float64 `json:"iou_threshold"`
	MinQuality   float32 `json:"min_quality"`
}

// DefaultPigoParams are the scan settings used for portrait photos.
var DefaultPigoParams = PigoParams{
	MinSize:      20,
	ShiftFactor:  0.1,
	ScaleFactor:  1.1,
	IoUThreshold: 0.2,
	MinQuality:   5.0,
}

// PigoDetector runs a pigo face cascade over the grayscale image.
type PigoDetector struct {
	classifier *pigo.Pigo
	params     PigoParams
}

// NewPigoDetector unpacks a facefinder cascade.
func NewPigoDetector(cascade []byte, params PigoParams) (*PigoDetector, error) {
	if len(cascade) == 0 {
		return nil, fmt.Errorf("%w: empty cascade", ErrModelLoad)
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("%w: error unpacking cascade file: %v", ErrModelLoad, err)
	}
	return &PigoDetector{classifier: classifier, params: params}, nil
}

// LoadPigo reads the cascade at path and returns a detector for it.
func LoadPigo(path string, params PigoParams) (*PigoDetector, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return NewPigoDetector(cascade, params)
}

// DetectFaces implements FaceDetector. The scan is CPU bound and does not
// observe ctx once started.
func (d *PigoDetector) DetectFaces(ctx context.Context, img image.Image) ([]geometry.FaceBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	maxSize := d.params.MaxSize
	if maxSize <= 0 {
		maxSize = min(cols, rows)
	}

	cParams := pigo.CascadeParams{
		MinSize:     d.params.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: d.params.ShiftFactor,
		ScaleFactor: d.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(cParams, 0)
	dets = d.classifier.ClusterDetections(dets, d.params.IoUThreshold)

	faces := facesFromDetections(dets, d.params.MinQuality)
	faces = clipToImage(faces, geometry.DimensionsOf(src))
	sortByScore(faces)
	return faces, nil
}

// facesFromDetections converts centre/scale detections to boxes, dropping
// those at or below minQuality.
func facesFromDetections(dets []pigo.Detection, minQuality float32) []geometry.FaceBox {
	faces := make([]geometry.FaceBox, 0, len(dets))
	for _, det := range dets {
		if det.Q <= minQuality {
			continue
		}
		half := float64(det.Scale) / 2
		faces = append(faces, geometry.FaceBox{
			X:      float64(det.Col) - half,
			Y:      float64(det.Row) - half,
			Width:  float64(det.Scale),
			Height: float64(det.Scale),
			Score:  float64(det.Q),
		})
	}
	return faces
}
