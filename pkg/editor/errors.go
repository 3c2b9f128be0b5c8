package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable means the face detector could not be loaded or
	// reached. No crop region can be produced until it is.
	ErrModelUnavailable = errors.New("face detection model unavailable")

	// ErrNoFaceDetected means detection ran and found no face.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrEmptyExport means an export was requested with no active crop region.
	ErrEmptyExport = errors.New("no image to export")

	// ErrSuperseded is returned for a detection whose upload was replaced by
	// a newer one or by Reset before it finished. Its result is discarded.
	ErrSuperseded = errors.New("detection superseded by a newer upload")

	// ErrNoCropRegion is returned by gestures and previews before a crop
	// region exists.
	ErrNoCropRegion = errors.New("no active crop region")
)

// DetectionError reports a detector call that failed.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("face detection failed: %v", e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }
