package editor

import "fmt"

// Phase is where a session is in its upload lifecycle.
type Phase int

const (
	AwaitingUpload Phase = iota
	Detecting
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case AwaitingUpload:
		return "awaiting_upload"
	case Detecting:
		return "detecting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{AwaitingUpload, Detecting, Ready, Failed} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Status is the user-visible message for the session.
type Status struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message,omitempty"`
	Error   bool   `json:"error"`
}

const (
	msgAwaiting       = "Upload a photo to start."
	msgDetecting      = "Detecting faces..."
	msgReady          = "Drag the box to move it, drag a corner to resize it."
	msgNoFace         = "No face detected. Try uploading another photo."
	msgModelNotLoaded = "The face detection model is not loaded. Try again later."
)

func modelLoadMessage(err error) string {
	return fmt.Sprintf("Face detection model failed to load: %v.", err)
}

func detectionFailedMessage(err error) string {
	return fmt.Sprintf("Face detection failed: %v.", err)
}
