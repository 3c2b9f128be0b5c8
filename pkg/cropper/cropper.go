// Package cropper renders a crop region of a source photo into fixed-size
// outputs: the square live preview and the final export. Both go through
// geometry.CoverFit so the output is always filled, never letterboxed.
package cropper

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/processing"
)

// ErrEmptyRegion is returned when there is nothing to render.
var ErrEmptyRegion = errors.New("crop region is empty")

// DefaultFilename is the base name offered for downloads.
const DefaultFilename = "cropped_photo"

// Config holds the render settings
type Config struct {
	Preview  Target
	Export   Target
	Shape    Shape
	Format   string
	Quality  int
	Lossless bool
}

// DefaultConfig returns a 300x300 preview and a PNG passport export.
func DefaultConfig() Config {
	return Config{
		Preview: Preview,
		Export:  Passport,
		Shape:   ShapeRect,
		Format:  "png",
		Quality: 95,
	}
}

// Renderer draws crop regions onto surfaces and encodes the results.
type Renderer struct {
	config    Config
	processor *processing.Processor
}

// New creates a Renderer with the default configuration
func New() *Renderer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Renderer with custom configuration. Invalid
// targets fall back to the defaults.
func NewWithConfig(config Config) *Renderer {
	def := DefaultConfig()
	if !config.Preview.Valid() {
		config.Preview = def.Preview
	}
	if !config.Export.Valid() {
		config.Export = def.Export
	}
	if config.Format == "" {
		config.Format = def.Format
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = def.Quality
	}
	return &Renderer{config: config, processor: processing.NewProcessor()}
}

// Config returns the active configuration.
func (r *Renderer) Config() Config { return r.config }

// Render draws the cover-fit part of crop onto s at t's size and returns the
// source rectangle that was drawn.
func (r *Renderer) Render(s Surface, src image.Image, crop geometry.Rect, t Target) (geometry.Rect, error) {
	if src == nil || crop.Empty() {
		return geometry.Rect{}, ErrEmptyRegion
	}
	if !t.Valid() {
		return geometry.Rect{}, fmt.Errorf("invalid target %v", t)
	}

	cover := geometry.CoverFit(crop, t.Aspect(), geometry.DimensionsOf(src))
	if cover.Empty() {
		return geometry.Rect{}, ErrEmptyRegion
	}
	s.DrawRegion(src, cover, image.Rect(0, 0, t.Width, t.Height))
	return cover, nil
}

// Preview renders the live preview of crop.
func (r *Renderer) Preview(src image.Image, crop geometry.Rect) (*Canvas, error) {
	c := NewCanvas(r.config.Preview.Width, r.config.Preview.Height, ShapeRect, color.White)
	if _, err := r.Render(c, src, crop, r.config.Preview); err != nil {
		return nil, err
	}
	return c, nil
}

// Export renders crop at the export size in the configured shape.
func (r *Renderer) Export(src image.Image, crop geometry.Rect) (*Canvas, error) {
	var bg color.Color = color.White
	if r.config.Shape == ShapeCircle {
		bg = nil
	}
	c := NewCanvas(r.config.Export.Width, r.config.Export.Height, r.config.Shape, bg)
	if _, err := r.Render(c, src, crop, r.config.Export); err != nil {
		return nil, err
	}
	return c, nil
}

// Encode writes img in the configured format. Formats without alpha get the
// picture flattened onto white.
func (r *Renderer) Encode(w io.Writer, img image.Image) error {
	format := strings.ToLower(r.config.Format)
	if format == "jpg" || format == "jpeg" {
		b := img.Bounds()
		bg := imaging.New(b.Dx(), b.Dy(), color.White)
		img = imaging.Overlay(bg, img, image.Point{}, 1.0)
	}
	return r.processor.EncodeImage(w, img, format, r.config.Quality, r.config.Lossless)
}

// ExportTo renders the export of crop and encodes it to w.
func (r *Renderer) ExportTo(w io.Writer, src image.Image, crop geometry.Rect) error {
	c, err := r.Export(src, crop)
	if err != nil {
		return err
	}
	if err := r.Encode(w, c); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// Filename returns the download name for an export, e.g. cropped_photo.png.
func (r *Renderer) Filename() string {
	ext := strings.ToLower(r.config.Format)
	if ext == "jpeg" {
		ext = "jpg"
	}
	return DefaultFilename + "." + ext
}

// ContentType returns the MIME type of an encoded export.
func (r *Renderer) ContentType() string {
	switch strings.ToLower(r.config.Format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
