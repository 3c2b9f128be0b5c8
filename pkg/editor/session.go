// Package editor ties face detection, the crop gesture controller and the
// renderer into one editing session: upload a photo, get a head-and-shoulders
// crop around the first face, adjust it with pointer gestures, export it.
//
// A Session is safe for concurrent use. Detection runs without the lock held;
// a newer upload or Reset wins and the older result is dropped.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/interaction"
)

// DefaultDisplayWidth is the widest the source image is shown.
const DefaultDisplayWidth = 500

// Config holds the session settings
type Config struct {
	DisplayMaxWidth float64          `json:"display_max_width"`
	MinSize         float64          `json:"min_size"`
	AspectLock      float64          `json:"aspect_lock"`
	Framing         geometry.Framing `json:"framing"`
}

// DefaultConfig returns the standard passport framing on a 500px display.
func DefaultConfig() Config {
	return Config{
		DisplayMaxWidth: DefaultDisplayWidth,
		MinSize:         interaction.DefaultMinSize,
		Framing:         geometry.DefaultFraming,
	}
}

// View is a snapshot of everything a client needs to draw the editor.
type View struct {
	Status  Status              `json:"status"`
	Image   geometry.Dimensions `json:"image"`
	Display geometry.Dimensions `json:"display"`
	Faces   []geometry.FaceBox  `json:"faces,omitempty"`
	Crop    *geometry.Rect      `json:"crop,omitempty"`
	Overlay *geometry.Rect      `json:"overlay,omitempty"`
	Mode    string              `json:"mode"`
}

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithRenderer sets the renderer used for previews and exports.
func WithRenderer(r *cropper.Renderer) Option {
	return func(s *Session) { s.renderer = r }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithModelError records why the detector could not be loaded. The session
// then refuses uploads with ErrModelUnavailable.
func WithModelError(err error) Option {
	return func(s *Session) { s.modelErr = err }
}

// Session is one photo being cropped.
type Session struct {
	mu       sync.Mutex
	detector detection.FaceDetector
	modelErr error
	renderer *cropper.Renderer
	logger   *slog.Logger
	cfg      Config

	generation uint64
	img        image.Image
	dims       geometry.Dimensions
	display    geometry.Dimensions
	faces      []geometry.FaceBox
	ctrl       *interaction.Controller
	hasCrop    bool
	preview    *cropper.Canvas
	status     Status

	listeners []func(View)
}

// NewSession creates a session around detector. A nil detector behaves as a
// model that failed to load.
func NewSession(detector detection.FaceDetector, opts ...Option) *Session {
	s := &Session{
		detector: detector,
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.renderer == nil {
		s.renderer = cropper.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cfg.MinSize <= 0 {
		s.cfg.MinSize = interaction.DefaultMinSize
	}
	if s.cfg.Framing == (geometry.Framing{}) {
		s.cfg.Framing = geometry.DefaultFraming
	}

	s.ctrl = interaction.NewController(geometry.Rect{}, geometry.Dimensions{},
		interaction.WithMinSize(s.cfg.MinSize),
		interaction.WithAspectLock(s.cfg.AspectLock),
	)
	s.ctrl.OnChange(s.cropChanged)

	s.status = Status{Phase: AwaitingUpload, Message: msgAwaiting}
	if s.detector == nil || s.modelErr != nil {
		s.status = Status{Phase: Failed, Message: s.modelMessage(), Error: true}
	}
	return s
}

// OnChange registers fn to receive a View after every state change.
func (s *Session) OnChange(fn func(View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Upload replaces the session image, detects faces and sets the initial crop
// around the first one. It blocks for the duration of detection.
func (s *Session) Upload(ctx context.Context, img image.Image) (geometry.Rect, error) {
	if img == nil || img.Bounds().Empty() {
		return geometry.Rect{}, fmt.Errorf("upload: empty image")
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.clearLocked()
	s.img = img
	s.dims = geometry.DimensionsOf(img)
	s.display = geometry.FitWidth(s.dims, s.cfg.DisplayMaxWidth)
	s.ctrl.SetScale(geometry.NewScale(s.dims, s.display))

	detector := s.detector
	if detector == nil || s.modelErr != nil {
		s.status = Status{Phase: Failed, Message: msgModelNotLoaded, Error: true}
		err := s.modelErr
		view := s.viewLocked()
		s.mu.Unlock()
		s.notify(view)
		if err != nil {
			return geometry.Rect{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return geometry.Rect{}, ErrModelUnavailable
	}

	s.status = Status{Phase: Detecting, Message: msgDetecting}
	dims := s.dims
	view := s.viewLocked()
	s.mu.Unlock()
	s.notify(view)

	s.logger.Debug("detecting faces", "generation", gen, "width", dims.Width, "height", dims.Height)
	faces, err := detector.DetectFaces(ctx, img)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding stale detection", "generation", gen)
		return geometry.Rect{}, ErrSuperseded
	}

	crop, err := s.applyDetectionLocked(faces, err)
	view = s.viewLocked()
	s.mu.Unlock()
	s.notify(view)
	return crop, err
}

// applyDetectionLocked turns a detector result into session state.
func (s *Session) applyDetectionLocked(faces []geometry.FaceBox, err error) (geometry.Rect, error) {
	switch {
	case errors.Is(err, detection.ErrModelLoad):
		s.logger.Error("face detection model unavailable", "error", err)
		s.failLocked(modelLoadMessage(err))
		return geometry.Rect{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	case err != nil:
		s.logger.Warn("face detection failed", "error", err)
		s.failLocked(detectionFailedMessage(err))
		return geometry.Rect{}, &DetectionError{Err: err}
	case len(faces) == 0:
		s.logger.Info("no face detected")
		s.failLocked(msgNoFace)
		return geometry.Rect{}, ErrNoFaceDetected
	}

	s.faces = append([]geometry.FaceBox(nil), faces...)
	crop := geometry.InitialCropWithFraming(faces[0], s.dims, s.cfg.Framing)
	s.ctrl.Reset(crop, s.dims)
	s.hasCrop = true
	s.preview = nil
	s.status = Status{Phase: Ready, Message: msgReady}

	s.logger.Info("initial crop",
		"faces", len(faces),
		"face", faces[0].Rect(),
		"crop", crop,
	)
	return crop, nil
}

// failLocked drops the image and crop and reports msg.
func (s *Session) failLocked(msg string) {
	s.clearLocked()
	s.status = Status{Phase: Failed, Message: msg, Error: true}
}

func (s *Session) clearLocked() {
	s.img = nil
	s.dims = geometry.Dimensions{}
	s.display = geometry.Dimensions{}
	s.faces = nil
	s.hasCrop = false
	s.preview = nil
	s.ctrl.Reset(geometry.Rect{}, geometry.Dimensions{})
}

// Reset clears the session back to awaiting an upload and invalidates any
// detection in flight.
func (s *Session) Reset() {
	s.mu.Lock()
	s.generation++
	s.clearLocked()
	if s.detector == nil || s.modelErr != nil {
		s.status = Status{Phase: Failed, Message: s.modelMessage(), Error: true}
	} else {
		s.status = Status{Phase: AwaitingUpload, Message: msgAwaiting}
	}
	view := s.viewLocked()
	s.mu.Unlock()
	s.notify(view)
}

func (s *Session) modelMessage() string {
	if s.modelErr != nil {
		return modelLoadMessage(s.modelErr)
	}
	return msgModelNotLoaded
}

// SetDisplaySize records the size the image is currently shown at. Pointer
// positions are interpreted in this space.
func (s *Session) SetDisplaySize(d geometry.Dimensions) error {
	if d.Empty() {
		return fmt.Errorf("invalid display size %vx%v", d.Width, d.Height)
	}
	s.mu.Lock()
	if s.img == nil {
		s.mu.Unlock()
		return ErrNoCropRegion
	}
	s.display = d
	s.ctrl.SetScale(geometry.NewScale(s.dims, d))
	view := s.viewLocked()
	s.mu.Unlock()
	s.notify(view)
	return nil
}

// PointerDown starts a drag, or a resize when h names a corner, at display
// position p.
func (s *Session) PointerDown(p geometry.Point, h interaction.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCrop {
		return ErrNoCropRegion
	}
	s.ctrl.PointerDown(p, h)
	return nil
}

// PointerMove feeds display position p to the active gesture and reports
// whether the crop was updated.
func (s *Session) PointerMove(p geometry.Point) (bool, error) {
	s.mu.Lock()
	if !s.hasCrop {
		s.mu.Unlock()
		return false, ErrNoCropRegion
	}
	moved := s.ctrl.PointerMove(p)
	var view View
	if moved {
		view = s.viewLocked()
	}
	s.mu.Unlock()

	if moved {
		s.notify(view)
	}
	return moved, nil
}

// PointerUp ends any gesture. It is valid in every state.
func (s *Session) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.PointerUp()
}

// cropChanged runs under the session lock from the controller.
func (s *Session) cropChanged(geometry.Rect) {
	s.preview = nil
}

// Crop returns the crop region in source pixels.
func (s *Session) Crop() (geometry.Rect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Rect(), s.hasCrop
}

// Overlay returns the crop region projected into display space.
func (s *Session) Overlay() (geometry.Rect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCrop {
		return geometry.Rect{}, false
	}
	return geometry.ToDisplay(s.ctrl.Rect(), s.ctrl.Scale()), true
}

// Faces returns the detected faces, best first.
func (s *Session) Faces() []geometry.FaceBox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]geometry.FaceBox(nil), s.faces...)
}

// Status returns the current user-visible message.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Image returns the uploaded image, or nil.
func (s *Session) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Preview returns the live preview of the crop region. The canvas is cached
// until the region changes and must not be modified.
func (s *Session) Preview() (*cropper.Canvas, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCrop {
		return nil, ErrNoCropRegion
	}
	if s.preview == nil {
		c, err := s.renderer.Preview(s.img, s.ctrl.Rect())
		if err != nil {
			return nil, err
		}
		s.preview = c
	}
	return s.preview, nil
}

// Export renders the crop region at the export size and encodes it to w.
// Nothing is written when there is no crop region.
func (s *Session) Export(ctx context.Context, w io.Writer) error {
	s.mu.Lock()
	img, crop, ok := s.img, s.ctrl.Rect(), s.hasCrop
	s.mu.Unlock()

	if !ok || img == nil || crop.Empty() {
		return ErrEmptyExport
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.renderer.ExportTo(w, img, crop); err != nil {
		if errors.Is(err, cropper.ErrEmptyRegion) {
			return ErrEmptyExport
		}
		return err
	}

	s.logger.Info("exported crop", "crop", crop, "target", s.renderer.Config().Export.String())
	return nil
}

// Renderer returns the renderer used for previews and exports.
func (s *Session) Renderer() *cropper.Renderer { return s.renderer }

func (s *Session) viewLocked() View {
	v := View{
		Status:  s.status,
		Image:   s.dims,
		Display: s.display,
		Faces:   append([]geometry.FaceBox(nil), s.faces...),
		Mode:    s.ctrl.State().Mode.String(),
	}
	if s.hasCrop {
		crop := s.ctrl.Rect()
		overlay := geometry.ToDisplay(crop, s.ctrl.Scale())
		v.Crop = &crop
		v.Overlay = &overlay
	}
	return v
}

func (s *Session) notify(v View) {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
}
