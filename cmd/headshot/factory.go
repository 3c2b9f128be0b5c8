package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/menta2k/headshot"
	"github.com/menta2k/headshot/internal/config"
	"github.com/menta2k/headshot/pkg/client"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/editor"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/llamacpp"
	"github.com/menta2k/headshot/pkg/ollama"
	"github.com/menta2k/headshot/pkg/server"
)

// newDetector builds the configured face detector. Load failures wrap
// detection.ErrModelLoad.
func newDetector(c *config.Config) (detection.FaceDetector, error) {
	d := c.Detector

	var visionClient client.VisionClient
	switch strings.ToLower(d.Backend) {
	case "pigo":
		pd, err := detection.LoadPigo(d.CascadePath, pigoParams(d))
		if err != nil {
			return nil, err
		}
		return pd, nil
	case "ollama":
		oc, err := ollama.NewClient(d.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create Ollama client: %v", detection.ErrModelLoad, err)
		}
		visionClient = oc
	case "llamacpp":
		lc, err := llamacpp.NewClient(d.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create llama.cpp client: %v", detection.ErrModelLoad, err)
		}
		visionClient = lc
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", detection.ErrModelLoad, d.Backend)
	}

	opts := detection.DefaultVisionOptions(d.Model)
	if d.MaxDim > 0 {
		opts.MaxDim = d.MaxDim
	}
	if d.MinConfidence > 0 {
		opts.MinConfidence = d.MinConfidence
	}
	return withTimeout(detection.NewVisionDetector(visionClient, opts), c.DetectorTimeout()), nil
}

func pigoParams(d config.DetectorConfig) detection.PigoParams {
	p := detection.DefaultPigoParams
	if d.MinFaceSize > 0 {
		p.MinSize = d.MinFaceSize
	}
	if d.MaxFaceSize > 0 {
		p.MaxSize = d.MaxFaceSize
	}
	if d.ShiftFactor > 0 {
		p.ShiftFactor = d.ShiftFactor
	}
	if d.ScaleFactor > 0 {
		p.ScaleFactor = d.ScaleFactor
	}
	if d.IoUThreshold > 0 {
		p.IoUThreshold = d.IoUThreshold
	}
	if d.MinQuality > 0 {
		p.MinQuality = float32(d.MinQuality)
	}
	return p
}

// withTimeout bounds every detection call by timeout. Zero disables it.
func withTimeout(d detection.FaceDetector, timeout time.Duration) detection.FaceDetector {
	if timeout <= 0 {
		return d
	}
	return detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]geometry.FaceBox, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return d.DetectFaces(ctx, img)
	})
}

func rendererConfig(c *config.Config) (cropper.Config, error) {
	shape, err := cropper.ParseShape(c.Output.Shape)
	if err != nil {
		return cropper.Config{}, err
	}
	return cropper.Config{
		Preview:  cropper.Target{Width: c.Output.PreviewSize, Height: c.Output.PreviewSize, Name: "preview"},
		Export:   cropper.Target{Width: c.Output.Width, Height: c.Output.Height, Name: "export"},
		Shape:    shape,
		Format:   strings.ToLower(c.Output.DefaultFormat),
		Quality:  c.Output.Quality,
		Lossless: c.Output.Lossless,
	}, nil
}

func editorConfig(c *config.Config) editor.Config {
	ec := editor.Config{
		DisplayMaxWidth: c.Display.MaxWidth,
		MinSize:         c.Crop.MinSize,
		Framing: geometry.Framing{
			Shoulder: c.Crop.Shoulder,
			Headroom: c.Crop.Headroom,
			Chest:    c.Crop.Chest,
		},
	}
	if c.Crop.LockAspect {
		ec.AspectLock = geometry.Aspect(float64(c.Output.Width), float64(c.Output.Height))
	}
	return ec
}

// newCropper builds the non-interactive facade from the configuration.
func newCropper(c *config.Config, detector detection.FaceDetector, log *slog.Logger) (*headshot.Cropper, error) {
	rc, err := rendererConfig(c)
	if err != nil {
		return nil, err
	}
	return headshot.New(detector, headshot.Config{
		Editor: editorConfig(c),
		Render: rc,
		Prefix: c.Output.Prefix,
		Suffix: c.Output.Suffix,
		Logger: log,
	}), nil
}

// sessionFactory creates editor sessions that share one detector and
// renderer. When the detector failed to load every session reports it.
func sessionFactory(c *config.Config, detector detection.FaceDetector, loadErr error, log *slog.Logger) (server.SessionFactory, error) {
	rc, err := rendererConfig(c)
	if err != nil {
		return nil, err
	}
	renderer := cropper.NewWithConfig(rc)
	ec := editorConfig(c)

	return func() *editor.Session {
		opts := []editor.Option{
			editor.WithConfig(ec),
			editor.WithRenderer(renderer),
			editor.WithLogger(log),
		}
		if loadErr != nil {
			opts = append(opts, editor.WithModelError(loadErr))
		}
		return editor.NewSession(detector, opts...)
	}, nil
}

func serverOptions(c *config.Config, log *slog.Logger) server.Options {
	return server.Options{
		Addr:           c.Server.Addr,
		MaxUploadBytes: int64(c.Server.MaxUploadMB) << 20,
		UploadsPerSec:  c.Server.UploadsPerSec,
		UploadBurst:    c.Server.UploadBurst,
		SessionTTL:     c.SessionTTL(),
		AllowedOrigins: c.Server.AllowedOrigins,
		Logger:         log,
	}
}
