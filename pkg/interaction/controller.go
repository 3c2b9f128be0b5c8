// Package interaction implements the drag and corner-resize gestures that
// adjust a crop rectangle. A Controller owns the rectangle; callers feed it
// pointer events in display coordinates and it keeps the rectangle inside the
// image and no smaller than the configured minimum.
package interaction

import (
	"fmt"
	"math"

	"github.com/menta2k/headshot/pkg/geometry"
)

// DefaultMinSize is the smallest crop side, in source pixels, a resize may produce.
const DefaultMinSize = 50.0

// Handle identifies the corner grabbed by a resize gesture.
type Handle int

const (
	HandleNone Handle = iota
	TopLeft
	TopRight
	BottomLeft
	BottomRight
)

var handleNames = map[Handle]string{
	HandleNone:  "none",
	TopLeft:     "top-left",
	TopRight:    "top-right",
	BottomLeft:  "bottom-left",
	BottomRight: "bottom-right",
}

func (h Handle) String() string {
	if s, ok := handleNames[h]; ok {
		return s
	}
	return fmt.Sprintf("Handle(%d)", int(h))
}

// ParseHandle maps a handle name such as "top-left" to its Handle. The empty
// string and "none" mean the pointer is on the body of the crop region.
func ParseHandle(s string) (Handle, error) {
	if s == "" {
		return HandleNone, nil
	}
	for h, name := range handleNames {
		if name == s {
			return h, nil
		}
	}
	return HandleNone, fmt.Errorf("unknown resize handle %q", s)
}

func (h Handle) left() bool { return h == TopLeft || h == BottomLeft }
func (h Handle) top() bool  { return h == TopLeft || h == TopRight }

// Mode is the gesture currently in progress.
type Mode int

const (
	Idle Mode = iota
	Dragging
	Resizing
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// State captures a gesture: what it is, the rectangle it started from and the
// display position of the pointer when it started.
type State struct {
	Mode   Mode
	Handle Handle
	Anchor geometry.Rect
	Start  geometry.Point
}

// Listener is notified with the new rectangle after every effective move.
type Listener func(rect geometry.Rect)

// Controller is the crop gesture state machine. It is not safe for
// concurrent use; the owning editor session serialises access.
type Controller struct {
	rect      geometry.Rect
	bounds    geometry.Dimensions
	scale     geometry.Scale
	minSize   float64
	aspect    float64
	state     State
	listeners []Listener
}

// Option configures a Controller.
type Option func(*Controller)

// WithMinSize sets the minimum crop side in source pixels.
func WithMinSize(px float64) Option {
	return func(c *Controller) {
		if px > 0 {
			c.minSize = px
		}
	}
}

// WithScale sets the initial display scale.
func WithScale(s geometry.Scale) Option {
	return func(c *Controller) { c.SetScale(s) }
}

// WithAspectLock keeps resized rectangles at the given width/height ratio.
// Zero disables the lock.
func WithAspectLock(ratio float64) Option {
	return func(c *Controller) {
		if ratio >= 0 {
			c.aspect = ratio
		}
	}
}

// NewController returns an idle controller owning rect inside an image of
// size bounds.
func NewController(rect geometry.Rect, bounds geometry.Dimensions, opts ...Option) *Controller {
	c := &Controller{
		rect:    rect,
		bounds:  bounds,
		scale:   geometry.Identity,
		minSize: DefaultMinSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers l to run after every move that updates the rectangle.
func (c *Controller) OnChange(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Rect returns the current crop rectangle.
func (c *Controller) Rect() geometry.Rect { return c.rect }

// Bounds returns the image dimensions the rectangle is clamped to.
func (c *Controller) Bounds() geometry.Dimensions { return c.bounds }

// State returns the gesture in progress.
func (c *Controller) State() State { return c.state }

// Scale returns the display scale used to convert pointer deltas.
func (c *Controller) Scale() geometry.Scale { return c.scale }

// SetScale updates the display scale, e.g. after the displayed image was
// resized. Non-positive components are ignored.
func (c *Controller) SetScale(s geometry.Scale) {
	if s.X > 0 && s.Y > 0 && !math.IsInf(s.X, 0) && !math.IsInf(s.Y, 0) {
		c.scale = s
	}
}

// Reset replaces the rectangle and image bounds and cancels any gesture.
func (c *Controller) Reset(rect geometry.Rect, bounds geometry.Dimensions) {
	c.rect = rect
	c.bounds = bounds
	c.state = State{}
}

// PointerDown starts a gesture at display position p. HandleNone starts a
// drag, any corner starts a resize of that corner.
func (c *Controller) PointerDown(p geometry.Point, h Handle) {
	mode := Dragging
	if h != HandleNone {
		mode = Resizing
	}
	c.state = State{Mode: mode, Handle: h, Anchor: c.rect, Start: p}
}

// PointerMove applies the pointer position p to the active gesture and
// reports whether a gesture was active. Listeners run after the update.
func (c *Controller) PointerMove(p geometry.Point) bool {
	if c.state.Mode == Idle {
		return false
	}

	d := geometry.ToSourceDelta(c.state.Start, p, c.scale)
	switch c.state.Mode {
	case Dragging:
		c.rect = c.drag(d)
	case Resizing:
		c.rect = c.resize(d)
	}

	for _, l := range c.listeners {
		l(c.rect)
	}
	return true
}

// PointerUp ends any gesture.
func (c *Controller) PointerUp() {
	c.state = State{}
}

func (c *Controller) drag(d geometry.Point) geometry.Rect {
	a := c.state.Anchor
	a.X = clamp(a.X+d.X, 0, c.bounds.Width-a.Width)
	a.Y = clamp(a.Y+d.Y, 0, c.bounds.Height-a.Height)
	return a
}

// minimums returns the per-axis minimum sizes. With an aspect lock the
// minimum of one axis is raised so the locked rectangle can still honour the
// minimum on the other. Neither may exceed the image.
func (c *Controller) minimums() (float64, float64) {
	minW, minH := c.minSize, c.minSize
	if c.aspect > 0 {
		minW = math.Max(minW, c.minSize*c.aspect)
		minH = math.Max(minH, c.minSize/c.aspect)
	}
	return math.Min(minW, c.bounds.Width), math.Min(minH, c.bounds.Height)
}

func (c *Controller) resize(d geometry.Point) geometry.Rect {
	a := c.state.Anchor
	h := c.state.Handle
	minW, minH := c.minimums()

	x, y, w, ht := a.X, a.Y, a.Width, a.Height

	if h.left() {
		// right edge stays put
		x = math.Max(0, math.Min(a.X+d.X, a.Right()-minW))
		w = a.Right() - x
	} else {
		w = math.Max(minW, a.Width+d.X)
	}
	if h.top() {
		y = math.Max(0, math.Min(a.Y+d.Y, a.Bottom()-minH))
		ht = a.Bottom() - y
	} else {
		ht = math.Max(minH, a.Height+d.Y)
	}

	x = math.Max(0, x)
	y = math.Max(0, y)
	w = math.Min(w, c.bounds.Width-x)
	ht = math.Min(ht, c.bounds.Height-y)

	if c.aspect > 0 {
		x, y, w, ht = c.lockAspect(h, x, y, w, ht)
		if w < minW-minSlack || ht < minH-minSlack {
			x, y, w, ht = c.lockedMinimum(h, a, minW, minH)
		}
	}
	return geometry.Rect{X: x, Y: y, Width: w, Height: ht}
}

// minSlack absorbs rounding in the aspect lock.
const minSlack = 1e-9

// lockedMinimum returns the smallest locked rectangle, anchored like the
// resize and moved back inside the image. It is used when an image edge
// left no room to keep both the ratio and the minimum in place.
func (c *Controller) lockedMinimum(h Handle, a geometry.Rect, minW, minH float64) (float64, float64, float64, float64) {
	x, y := a.X, a.Y
	if h.left() {
		x = a.Right() - minW
	}
	if h.top() {
		y = a.Bottom() - minH
	}
	x = clamp(x, 0, c.bounds.Width-minW)
	y = clamp(y, 0, c.bounds.Height-minH)
	return x, y, minW, minH
}

// lockAspect shrinks the longer side until w/h matches the lock ratio,
// keeping the edges opposite the handle fixed.
func (c *Controller) lockAspect(h Handle, x, y, w, ht float64) (float64, float64, float64, float64) {
	if w/ht > c.aspect {
		nw := ht * c.aspect
		if h.left() {
			x += w - nw
		}
		w = nw
	} else {
		nh := w / c.aspect
		if h.top() {
			y += ht - nh
		}
		ht = nh
	}
	return x, y, w, ht
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
