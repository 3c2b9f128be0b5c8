package types

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Face is a single face reported by a vision model
type Face struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// FaceLocation is the JSON document vision models are asked to return
type FaceLocation struct {
	Faces       []Face `json:"faces"`
	Description string `json:"description"`
}
