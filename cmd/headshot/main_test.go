package main

import (
	"context"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot/internal/config"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/editor"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/interaction"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseGesture(t *testing.T) {
	tests := []struct {
		in   string
		want gesture
	}{
		{"move:20,-10", gesture{Handle: interaction.HandleNone, Delta: geometry.Point{X: 20, Y: -10}}},
		{"bottom-right:-40, 60", gesture{Handle: interaction.BottomRight, Delta: geometry.Point{X: -40, Y: 60}}},
		{"top-left:1.5,2", gesture{Handle: interaction.TopLeft, Delta: geometry.Point{X: 1.5, Y: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseGesture(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"move", "move:1", "middle:1,2", "move:a,2", "move:1,b"} {
		_, err := parseGesture(bad)
		assert.Error(t, err, bad)
	}
}

func TestReplayGestures(t *testing.T) {
	detector := detection.DetectorFunc(func(context.Context, image.Image) ([]geometry.FaceBox, error) {
		return []geometry.FaceBox{{X: 400, Y: 200, Width: 200, Height: 200}}, nil
	})
	sess := editor.NewSession(detector, editor.WithLogger(quietLogger()))
	_, err := sess.Upload(context.Background(), image.NewNRGBA(image.Rect(0, 0, 1000, 800)))
	require.NoError(t, err)

	require.NoError(t, replay(sess, []gesture{
		{Delta: geometry.Point{X: 20, Y: -10}},
		{Handle: interaction.BottomRight, Delta: geometry.Point{X: -40, Y: 60}},
	}))

	crop, ok := sess.Crop()
	require.True(t, ok)
	assert.Equal(t, geometry.Rect{X: 360, Y: 40, Width: 280, Height: 710}, crop)
}

func TestReplayWithoutCrop(t *testing.T) {
	sess := editor.NewSession(nil, editor.WithLogger(quietLogger()))
	assert.NoError(t, replay(sess, nil))
	assert.ErrorIs(t, replay(sess, []gesture{{}}), editor.ErrNoCropRegion)

	// image kept, but the model is missing so there is no crop region
	_, err := sess.Upload(context.Background(), image.NewNRGBA(image.Rect(0, 0, 200, 200)))
	require.ErrorIs(t, err, editor.ErrModelUnavailable)
	assert.ErrorIs(t, replay(sess, []gesture{{}}), editor.ErrNoCropRegion)
}

func TestNewDetectorLoadFailure(t *testing.T) {
	c := config.Default()
	c.Detector.CascadePath = "/does/not/exist"
	d, err := newDetector(c)
	assert.ErrorIs(t, err, detection.ErrModelLoad)
	assert.Nil(t, d)

	c.Detector.Backend = "carrier-pigeon"
	_, err = newDetector(c)
	assert.ErrorIs(t, err, detection.ErrModelLoad)
}

func TestNewDetectorVisionBackends(t *testing.T) {
	for _, backend := range []string{"ollama", "llamacpp"} {
		c := config.Default()
		c.Detector.Backend = backend
		d, err := newDetector(c)
		require.NoError(t, err, backend)
		assert.NotNil(t, d)
	}
}

func TestRendererAndEditorConfig(t *testing.T) {
	c := config.Default()
	c.Output.Shape = "circle"
	c.Crop.LockAspect = true

	rc, err := rendererConfig(c)
	require.NoError(t, err)
	assert.Equal(t, cropper.ShapeCircle, rc.Shape)
	assert.Equal(t, 413, rc.Export.Width)
	assert.Equal(t, 300, rc.Preview.Height)

	ec := editorConfig(c)
	assert.InDelta(t, 413.0/531.0, ec.AspectLock, 1e-9)
	assert.Equal(t, geometry.DefaultFraming, ec.Framing)

	c.Output.Shape = "hexagon"
	_, err = rendererConfig(c)
	assert.Error(t, err)
}

func TestSessionFactoryReportsLoadError(t *testing.T) {
	factory, err := sessionFactory(config.Default(), nil, detection.ErrModelLoad, quietLogger())
	require.NoError(t, err)

	sess := factory()
	assert.Equal(t, editor.Failed, sess.Status().Phase)

	_, err = sess.Upload(context.Background(), image.NewNRGBA(image.Rect(0, 0, 200, 200)))
	assert.ErrorIs(t, err, editor.ErrModelUnavailable)
}

func TestServerOptions(t *testing.T) {
	opts := serverOptions(config.Default(), quietLogger())
	assert.Equal(t, ":8080", opts.Addr)
	assert.Equal(t, int64(20<<20), opts.MaxUploadBytes)
	assert.Equal(t, "30m0s", opts.SessionTTL.String())
}

func TestOutputFormat(t *testing.T) {
	assert.Equal(t, "", outputFormat("", ""))
	assert.Equal(t, "webp", outputFormat("", "out/me.webp"))
	assert.Equal(t, "jpg", outputFormat("", "me.JPG"))
	assert.Equal(t, "", outputFormat("", "out/me"))
	assert.Equal(t, "png", outputFormat("png", "me.webp"))
}

func TestCloseLog(t *testing.T) {
	c := &countingCloser{}
	logCloser = c
	closeLog()
	closeLog()
	assert.Equal(t, 1, c.n)
	assert.Nil(t, logCloser)
}

type countingCloser struct{ n int }

func (c *countingCloser) Close() error {
	c.n++
	return nil
}
