package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/interaction"
)

var scenarioFace = geometry.FaceBox{X: 400, Y: 200, Width: 200, Height: 200, Score: 10}

func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 100, 255})
		}
	}
	return img
}

func fixedDetector(faces ...geometry.FaceBox) detection.FaceDetector {
	return detection.DetectorFunc(func(context.Context, image.Image) ([]geometry.FaceBox, error) {
		return faces, nil
	})
}

func failingDetector(err error) detection.FaceDetector {
	return detection.DetectorFunc(func(context.Context, image.Image) ([]geometry.FaceBox, error) {
		return nil, err
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, d detection.FaceDetector, opts ...Option) *Session {
	t.Helper()
	return NewSession(d, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func uploadScenario(t *testing.T, s *Session) {
	t.Helper()
	_, err := s.Upload(context.Background(), createTestImage(1000, 800))
	require.NoError(t, err)
}

func TestUploadProducesInitialCrop(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))
	assert.Equal(t, AwaitingUpload, s.Status().Phase)

	crop, err := s.Upload(context.Background(), createTestImage(1000, 800))
	require.NoError(t, err)
	assert.Equal(t, geometry.Rect{X: 340, Y: 50, Width: 320, Height: 650}, crop)

	got, ok := s.Crop()
	require.True(t, ok)
	assert.Equal(t, crop, got)

	overlay, ok := s.Overlay()
	require.True(t, ok)
	assert.Equal(t, geometry.Rect{X: 170, Y: 25, Width: 160, Height: 325}, overlay)

	st := s.Status()
	assert.Equal(t, Ready, st.Phase)
	assert.False(t, st.Error)

	v := s.View()
	assert.Equal(t, geometry.Dimensions{Width: 500, Height: 400}, v.Display)
	assert.Equal(t, "idle", v.Mode)
	require.NotNil(t, v.Overlay)
	assert.Equal(t, overlay, *v.Overlay)
}

func TestUploadAnchorsOnFirstFace(t *testing.T) {
	other := geometry.FaceBox{X: 10, Y: 10, Width: 50, Height: 50, Score: 3}
	s := newTestSession(t, fixedDetector(scenarioFace, other))

	crop, err := s.Upload(context.Background(), createTestImage(1000, 800))
	require.NoError(t, err)
	assert.Equal(t, geometry.InitialCrop(scenarioFace, geometry.Dimensions{Width: 1000, Height: 800}), crop)
	assert.Len(t, s.Faces(), 2)
}

func TestUploadFailures(t *testing.T) {
	cause := errors.New("inference crashed")

	tests := []struct {
		name     string
		detector detection.FaceDetector
		check    func(t *testing.T, err error)
	}{
		{
			name:     "no face",
			detector: fixedDetector(),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoFaceDetected)
			},
		},
		{
			name:     "detector error",
			detector: failingDetector(cause),
			check: func(t *testing.T, err error) {
				var de *DetectionError
				require.ErrorAs(t, err, &de)
				assert.ErrorIs(t, err, cause)
				assert.Contains(t, err.Error(), "inference crashed")
			},
		},
		{
			name:     "model load",
			detector: failingDetector(detection.ErrModelLoad),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrModelUnavailable)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.detector)

			_, err := s.Upload(context.Background(), createTestImage(300, 300))
			require.Error(t, err)
			tt.check(t, err)

			_, ok := s.Crop()
			assert.False(t, ok, "crop region must stay unset")
			assert.Nil(t, s.Image(), "canvases reset")

			st := s.Status()
			assert.Equal(t, Failed, st.Phase)
			assert.True(t, st.Error)
			assert.NotEmpty(t, st.Message)

			_, err = s.Preview()
			assert.ErrorIs(t, err, ErrNoCropRegion)
		})
	}
}

func TestUploadWithoutModel(t *testing.T) {
	s := newTestSession(t, nil, WithModelError(errors.New("cascade not found")))
	assert.True(t, s.Status().Error)
	assert.Contains(t, s.Status().Message, "cascade not found")

	_, err := s.Upload(context.Background(), createTestImage(300, 300))
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, ok := s.Crop()
	assert.False(t, ok)
}

func TestUploadRejectsEmptyImage(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))
	_, err := s.Upload(context.Background(), nil)
	assert.Error(t, err)
}

// gatedDetector blocks the first call until release is closed.
type gatedDetector struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	faces   []geometry.FaceBox
}

func (g *gatedDetector) DetectFaces(ctx context.Context, img image.Image) ([]geometry.FaceBox, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()

	if first {
		close(g.started)
		<-g.release
		return []geometry.FaceBox{{X: 0, Y: 0, Width: 60, Height: 60}}, nil
	}
	return g.faces, nil
}

func TestNewerUploadSupersedesDetection(t *testing.T) {
	g := &gatedDetector{
		started: make(chan struct{}),
		release: make(chan struct{}),
		faces:   []geometry.FaceBox{scenarioFace},
	}
	s := newTestSession(t, g)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Upload(context.Background(), createTestImage(400, 400))
		errc <- err
	}()
	<-g.started

	crop, err := s.Upload(context.Background(), createTestImage(1000, 800))
	require.NoError(t, err)
	close(g.release)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first upload did not return")
	}

	got, ok := s.Crop()
	require.True(t, ok)
	assert.Equal(t, crop, got, "stale result must not overwrite the newer crop")
	assert.Equal(t, geometry.Dimensions{Width: 1000, Height: 800}, s.View().Image)
}

func TestResetSupersedesDetection(t *testing.T) {
	g := &gatedDetector{started: make(chan struct{}), release: make(chan struct{})}
	s := newTestSession(t, g)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Upload(context.Background(), createTestImage(400, 400))
		errc <- err
	}()
	<-g.started
	assert.Equal(t, Detecting, s.Status().Phase)

	s.Reset()
	close(g.release)

	assert.ErrorIs(t, <-errc, ErrSuperseded)
	assert.Equal(t, AwaitingUpload, s.Status().Phase)
	_, ok := s.Crop()
	assert.False(t, ok)
}

func TestExportWithoutCrop(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))

	var buf bytes.Buffer
	err := s.Export(context.Background(), &buf)
	assert.ErrorIs(t, err, ErrEmptyExport)
	assert.Zero(t, buf.Len())
}

func TestExportAfterUpload(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))
	uploadScenario(t, s)

	var buf bytes.Buffer
	require.NoError(t, s.Export(context.Background(), &buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(413, 531), img.Bounds().Size())
	assert.Equal(t, "cropped_photo.png", s.Renderer().Filename())
}

func TestExportHonoursCancelledContext(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))
	uploadScenario(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	assert.ErrorIs(t, s.Export(ctx, &buf), context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestGesturesUseDisplaySpace(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))
	uploadScenario(t, s)

	// 1000px image shown 500px wide: one display pixel is two source pixels
	require.NoError(t, s.PointerDown(geometry.Point{X: 200, Y: 100}, interaction.HandleNone))
	moved, err := s.PointerMove(geometry.Point{X: 210, Y: 95})
	require.NoError(t, err)
	require.True(t, moved)
	s.PointerUp()

	crop, _ := s.Crop()
	assert.Equal(t, geometry.Rect{X: 360, Y: 40, Width: 320, Height: 650}, crop)

	overlay, _ := s.Overlay()
	assert.Equal(t, geometry.Rect{X: 180, Y: 20, Width: 160, Height: 325}, overlay)

	moved, err = s.PointerMove(geometry.Point{X: 400, Y: 400})
	require.NoError(t, err)
	assert.False(t, moved, "no gesture after pointer up")
}

func TestSetDisplaySize(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))
	assert.ErrorIs(t, s.SetDisplaySize(geometry.Dimensions{Width: 250, Height: 200}), ErrNoCropRegion)

	uploadScenario(t, s)
	require.NoError(t, s.SetDisplaySize(geometry.Dimensions{Width: 250, Height: 200}))
	assert.Error(t, s.SetDisplaySize(geometry.Dimensions{}))

	require.NoError(t, s.PointerDown(geometry.Point{}, interaction.BottomRight))
	_, err := s.PointerMove(geometry.Point{X: -10, Y: 5})
	require.NoError(t, err)

	crop, _ := s.Crop()
	assert.Equal(t, geometry.Rect{X: 340, Y: 50, Width: 280, Height: 670}, crop)
}

func TestGesturesNeedCrop(t *testing.T) {
	s := newTestSession(t, fixedDetector())

	assert.ErrorIs(t, s.PointerDown(geometry.Point{}, interaction.HandleNone), ErrNoCropRegion)
	_, err := s.PointerMove(geometry.Point{X: 1, Y: 1})
	assert.ErrorIs(t, err, ErrNoCropRegion)
	s.PointerUp()
}

func TestPreviewIsCachedUntilCropChanges(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))
	uploadScenario(t, s)

	p1, err := s.Preview()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 300, 300), p1.Bounds())

	p2, err := s.Preview()
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	require.NoError(t, s.PointerDown(geometry.Point{}, interaction.HandleNone))
	_, err = s.PointerMove(geometry.Point{X: 5, Y: 5})
	require.NoError(t, err)

	p3, err := s.Preview()
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
}

func TestOnChangeReceivesViews(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))

	var mu sync.Mutex
	var phases []Phase
	s.OnChange(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, v.Status.Phase)
	})

	uploadScenario(t, s)
	require.NoError(t, s.PointerDown(geometry.Point{}, interaction.HandleNone))
	_, err := s.PointerMove(geometry.Point{X: 3, Y: 3})
	require.NoError(t, err)
	s.Reset()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{Detecting, Ready, Ready, AwaitingUpload}, phases)
}

func TestListenerCanRegisterListener(t *testing.T) {
	s := newTestSession(t, fixedDetector(scenarioFace))

	var first, second int
	s.OnChange(func(View) {
		first++
		if first == 1 {
			s.OnChange(func(View) { second++ })
		}
	})

	s.Reset()
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second, "listener added during a notification runs from the next one")

	s.Reset()
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second)
}

func TestAspectLockedSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AspectLock = geometry.Aspect(413, 531)
	s := newTestSession(t, fixedDetector(scenarioFace), WithConfig(cfg))
	uploadScenario(t, s)

	require.NoError(t, s.PointerDown(geometry.Point{}, interaction.BottomRight))
	_, err := s.PointerMove(geometry.Point{X: 20, Y: 0})
	require.NoError(t, err)

	crop, _ := s.Crop()
	assert.InDelta(t, cfg.AspectLock, crop.Aspect(), 1e-9)
}
