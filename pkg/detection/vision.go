package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/headshot/pkg/client"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/processing"
	"github.com/menta2k/headshot/pkg/types"
)

// FacePrompt asks a vision model for the faces in a photo
const FacePrompt = `You are a face locator for passport and profile photos.

Return JSON only:
{
  "faces": [
    {"label": "face", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- Each box must tightly cover one human face from hairline to chin and ear to ear. Do not include hair, neck or shoulders.
- Order faces from most prominent to least prominent.
- Do not guess real identities.
- If no face is visible, return {"faces": [], "description": "no face"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionOptions configures a VisionDetector.
type VisionOptions struct {
	Model         string
	Prompt        string
	MaxDim        int
	Quality       int
	MinConfidence float64
}

// DefaultVisionOptions returns the settings used when none are given.
func DefaultVisionOptions(model string) VisionOptions {
	return VisionOptions{
		Model:         model,
		Prompt:        FacePrompt,
		MaxDim:        1024,
		Quality:       85,
		MinConfidence: 0.3,
	}
}

// VisionDetector locates faces by asking a vision language model.
type VisionDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	opts      VisionOptions
}

// NewVisionDetector creates a new detector with a vision client
func NewVisionDetector(c client.VisionClient, opts VisionOptions) *VisionDetector {
	if opts.Prompt == "" {
		opts.Prompt = FacePrompt
	}
	return &VisionDetector{client: c, processor: processing.NewProcessor(), opts: opts}
}

// DetectFaces implements FaceDetector.
func (d *VisionDetector) DetectFaces(ctx context.Context, img image.Image) ([]geometry.FaceBox, error) {
	imgB64, factor, err := d.processor.PrepareImageForModel(img, "jpg", d.opts.MaxDim, d.opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	raw, err := d.client.Query(ctx, d.opts.Model, d.opts.Prompt, imgB64)
	if err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
		}
		return nil, err
	}

	loc, err := ParseFaceLocation(raw)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	sent := geometry.Dimensions{
		Width:  float64(b.Dx()) / factor,
		Height: float64(b.Dy()) / factor,
	}
	return d.toFaceBoxes(loc, sent, geometry.DimensionsOf(img)), nil
}

// toFaceBoxes converts the model's boxes to source pixels. sent is the size
// of the image the model saw.
func (d *VisionDetector) toFaceBoxes(loc *types.FaceLocation, sent, src geometry.Dimensions) []geometry.FaceBox {
	faces := make([]geometry.FaceBox, 0, len(loc.Faces))
	for _, f := range loc.Faces {
		if strings.EqualFold(strings.TrimSpace(f.Label), "none") {
			continue
		}
		if f.Confidence > 0 && f.Confidence < d.opts.MinConfidence {
			continue
		}
		box := normalizeBox(f.Box, sent.Width, sent.Height)
		faces = append(faces, geometry.FaceBox{
			X:      box.X * src.Width,
			Y:      box.Y * src.Height,
			Width:  box.W * src.Width,
			Height: box.H * src.Height,
			Score:  f.Confidence,
		})
	}
	faces = clipToImage(faces, src)
	sortByScore(faces)
	return faces
}

// normalizeBox ensures box coordinates are within [0,1] bounds. Models
// sometimes answer in pixels of the image they were sent; such boxes are
// divided by imgW and imgH.
func normalizeBox(b types.Box, imgW, imgH float64) types.Box {
	if imgW > 0 && imgH > 0 && (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) {
		b = types.Box{X: b.X / imgW, Y: b.Y / imgH, W: b.W / imgW, H: b.H / imgH}
	}

	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}
