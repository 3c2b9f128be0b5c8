package cropper

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/menta2k/headshot/pkg/geometry"
)

// Surface is anything a source sub-rectangle can be drawn onto. Preview and
// export use the same call, only the destination differs.
type Surface interface {
	DrawRegion(src image.Image, sr geometry.Rect, dr image.Rectangle)
}

// Canvas is an in-memory Surface.
type Canvas struct {
	*image.NRGBA
	shape      Shape
	background color.Color
	scaler     draw.Scaler
}

// NewCanvas allocates a canvas of w by h pixels filled with background.
// A nil background leaves the canvas transparent.
func NewCanvas(w, h int, shape Shape, background color.Color) *Canvas {
	c := &Canvas{
		NRGBA:      image.NewNRGBA(image.Rect(0, 0, w, h)),
		shape:      shape,
		background: background,
		scaler:     draw.CatmullRom,
	}
	c.Clear()
	return c
}

// Clear fills the canvas with its background.
func (c *Canvas) Clear() {
	bg := c.background
	if bg == nil {
		bg = color.Transparent
	}
	draw.Draw(c.NRGBA, c.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
}

// DrawRegion scales the sr part of src into dr. sr is in pixels relative to
// src's origin and is clipped to src. With ShapeCircle only the ellipse
// inscribed in dr is painted.
func (c *Canvas) DrawRegion(src image.Image, sr geometry.Rect, dr image.Rectangle) {
	srcRect := sr.Image(src.Bounds().Min).Intersect(src.Bounds())
	dr = dr.Intersect(c.Bounds())
	if srcRect.Empty() || dr.Empty() {
		return
	}

	if c.shape != ShapeCircle {
		c.scaler.Scale(c.NRGBA, dr, src, srcRect, draw.Src, nil)
		return
	}

	tmp := image.NewNRGBA(image.Rect(0, 0, dr.Dx(), dr.Dy()))
	c.scaler.Scale(tmp, tmp.Bounds(), src, srcRect, draw.Src, nil)
	draw.DrawMask(c.NRGBA, dr, tmp, image.Point{}, ellipse{w: dr.Dx(), h: dr.Dy()}, image.Point{}, draw.Over)
}

// ellipse is an alpha mask that is opaque inside the ellipse inscribed in a
// w by h box anchored at the origin.
type ellipse struct {
	w, h int
}

func (e ellipse) ColorModel() color.Model { return color.AlphaModel }

func (e ellipse) Bounds() image.Rectangle { return image.Rect(0, 0, e.w, e.h) }

func (e ellipse) At(x, y int) color.Color {
	rx, ry := float64(e.w)/2, float64(e.h)/2
	dx := (float64(x) + 0.5 - rx) / rx
	dy := (float64(y) + 0.5 - ry) / ry
	if dx*dx+dy*dy <= 1 {
		return color.Opaque
	}
	return color.Transparent
}
