package cropper

import (
	"fmt"
	"strconv"
	"strings"
)

// Target is a fixed output raster size.
type Target struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name,omitempty"`
}

// Common targets
var (
	Preview   = Target{300, 300, "preview"}
	Passport  = Target{413, 531, "passport"} // 35x45mm at 300dpi
	Visa      = Target{600, 600, "visa"}
	Portrait  = Target{600, 800, "portrait"}
	Instagram = Target{1080, 1350, "instagram"}
	Avatar    = Target{512, 512, "avatar"}
)

// CommonTargets returns the named output sizes.
func CommonTargets() []Target {
	return []Target{Preview, Passport, Visa, Portrait, Instagram, Avatar}
}

// Aspect returns Width/Height.
func (t Target) Aspect() float64 {
	if t.Height <= 0 {
		return 0
	}
	return float64(t.Width) / float64(t.Height)
}

// Valid reports whether both sides are positive.
func (t Target) Valid() bool { return t.Width > 0 && t.Height > 0 }

func (t Target) String() string {
	if t.Name != "" {
		return fmt.Sprintf("%s (%dx%d)", t.Name, t.Width, t.Height)
	}
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

// ParseTarget accepts a target name such as "passport" or an explicit size
// such as "413x531".
func ParseTarget(s string) (Target, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range CommonTargets() {
		if t.Name == s {
			return t, nil
		}
	}

	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return Target{}, fmt.Errorf("invalid target %q: want a name or WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target width %q: %w", w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target height %q: %w", h, err)
	}
	t := Target{Width: width, Height: height}
	if !t.Valid() {
		return Target{}, fmt.Errorf("invalid target %q: sides must be positive", s)
	}
	return t, nil
}

// Shape is the outline of the exported picture.
type Shape int

const (
	ShapeRect Shape = iota
	ShapeCircle
)

func (s Shape) String() string {
	if s == ShapeCircle {
		return "circle"
	}
	return "rect"
}

// ParseShape maps "rect" or "circle" to a Shape. The empty string is rect.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rect", "rectangle", "square":
		return ShapeRect, nil
	case "circle", "round":
		return ShapeCircle, nil
	default:
		return ShapeRect, fmt.Errorf("unknown output shape %q", s)
	}
}
