package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/menta2k/headshot/pkg/editor"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/interaction"
)

// gesture is one scripted pointer drag, in source pixels.
type gesture struct {
	Handle interaction.Handle
	Delta  geometry.Point
}

// parseGesture reads "move:DX,DY" or "<corner>:DX,DY", e.g.
// "bottom-right:-20,30".
func parseGesture(s string) (gesture, error) {
	name, delta, ok := strings.Cut(s, ":")
	if !ok {
		return gesture{}, fmt.Errorf("gesture %q: want NAME:DX,DY", s)
	}

	var g gesture
	if name != "move" {
		h, err := interaction.ParseHandle(name)
		if err != nil {
			return gesture{}, fmt.Errorf("gesture %q: %w", s, err)
		}
		g.Handle = h
	}

	xs, ys, ok := strings.Cut(delta, ",")
	if !ok {
		return gesture{}, fmt.Errorf("gesture %q: want NAME:DX,DY", s)
	}
	var err error
	if g.Delta.X, err = strconv.ParseFloat(strings.TrimSpace(xs), 64); err != nil {
		return gesture{}, fmt.Errorf("gesture %q: %w", s, err)
	}
	if g.Delta.Y, err = strconv.ParseFloat(strings.TrimSpace(ys), 64); err != nil {
		return gesture{}, fmt.Errorf("gesture %q: %w", s, err)
	}
	return g, nil
}

// replay applies gestures to sess as pointer down, move, up sequences. The
// display is set to the source size first so deltas are source pixels.
func replay(sess *editor.Session, gestures []gesture) error {
	if len(gestures) == 0 {
		return nil
	}
	img := sess.Image()
	if img == nil {
		return editor.ErrNoCropRegion
	}
	if err := sess.SetDisplaySize(geometry.DimensionsOf(img)); err != nil {
		return err
	}
	for _, g := range gestures {
		if err := sess.PointerDown(geometry.Point{}, g.Handle); err != nil {
			return err
		}
		if _, err := sess.PointerMove(g.Delta); err != nil {
			return err
		}
		sess.PointerUp()
	}
	return nil
}
