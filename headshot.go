// Package headshot crops portrait photos to a head-and-shoulders frame
// anchored on the first detected face.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/menta2k/headshot"
//		"github.com/menta2k/headshot/pkg/detection"
//	)
//
//	func main() {
//		detector, err := detection.LoadPigo("cascade/facefinder", detection.DefaultPigoParams)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		c := headshot.New(detector, headshot.DefaultConfig())
//		out, result, err := c.ProcessFile(context.Background(), "photo.jpg", "out")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("wrote %s, crop %+v", out, result.Crop)
//	}
//
// The package ties together the building blocks found under pkg/:
//
//  1. Detection (pkg/detection): face boxes from pigo or a vision model
//  2. Geometry (pkg/geometry): initial framing and cover-fit math
//  3. Editor (pkg/editor): the session that owns the image and crop region
//  4. Cropper (pkg/cropper): renders and encodes preview and export images
//
// Interactive adjustment of the crop region is available through
// pkg/editor directly or over HTTP with pkg/server.
package headshot

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/menta2k/headshot/internal/utils"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/editor"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/processing"
)

// Version of the headshot library
const Version = "1.0.0"

// Config holds the automatic crop settings
type Config struct {
	Editor editor.Config
	Render cropper.Config
	Prefix string
	Suffix string
	Logger *slog.Logger
}

// DefaultConfig returns passport framing rendered to a 413x531 PNG.
func DefaultConfig() Config {
	return Config{
		Editor: editor.DefaultConfig(),
		Render: cropper.DefaultConfig(),
		Suffix: "_cropped",
	}
}

// Result describes one automatic crop.
type Result struct {
	Faces []geometry.FaceBox `json:"faces"`
	Crop  geometry.Rect      `json:"crop"`
	Cover geometry.Rect      `json:"cover"`
	Image *cropper.Canvas    `json:"-"`
}

// Cropper runs detection and export without user interaction.
type Cropper struct {
	detector  detection.FaceDetector
	renderer  *cropper.Renderer
	processor *processing.Processor
	config    Config
}

// New creates a Cropper around detector.
func New(detector detection.FaceDetector, config Config) *Cropper {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Cropper{
		detector:  detector,
		renderer:  cropper.NewWithConfig(config.Render),
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// Renderer returns the renderer used for exports.
func (c *Cropper) Renderer() *cropper.Renderer { return c.renderer }

// Process detects the face in img and renders the initial crop at the
// export size. Errors are those of editor.Session.Upload.
func (c *Cropper) Process(ctx context.Context, img image.Image) (*Result, error) {
	sess := c.newSession()
	crop, err := sess.Upload(ctx, img)
	if err != nil {
		return nil, err
	}

	canvas, err := c.renderer.Export(img, crop)
	if err != nil {
		return nil, err
	}

	export := c.renderer.Config().Export
	return &Result{
		Faces: sess.Faces(),
		Crop:  crop,
		Cover: geometry.CoverFit(crop, export.Aspect(), geometry.DimensionsOf(img)),
		Image: canvas,
	}, nil
}

// ProcessFile crops the image at input, a path or URL, and writes the
// result into outputDir. It returns the written path.
func (c *Cropper) ProcessFile(ctx context.Context, input, outputDir string) (string, *Result, error) {
	img, err := c.processor.LoadImageSmart(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load %s: %w", input, err)
	}
	if err := c.processor.ValidateImage(img); err != nil {
		return "", nil, fmt.Errorf("%s: %w", input, err)
	}

	result, err := c.Process(ctx, img)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", input, err)
	}

	if err := utils.EnsureDir(outputDir); err != nil {
		return "", nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	out := c.OutputPath(input, outputDir)

	f, err := os.Create(out)
	if err != nil {
		return "", nil, err
	}
	if err := c.renderer.Encode(f, result.Image); err != nil {
		f.Close()
		os.Remove(out)
		return "", nil, fmt.Errorf("failed to encode %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return "", nil, err
	}

	c.config.Logger.Info("cropped", "input", input, "output", out,
		"faces", len(result.Faces), "crop", result.Crop)
	return out, result, nil
}

// OutputPath returns where ProcessFile writes the crop of input.
func (c *Cropper) OutputPath(input, outputDir string) string {
	return utils.GenerateOutputFilename(input, outputDir, c.config.Prefix, c.config.Suffix,
		c.renderer.Config().Format)
}

func (c *Cropper) newSession() *editor.Session {
	return editor.NewSession(c.detector,
		editor.WithConfig(c.config.Editor),
		editor.WithRenderer(c.renderer),
		editor.WithLogger(c.config.Logger),
	)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
