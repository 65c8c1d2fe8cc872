package vision

import "context"

// Sighting is one recognized face frame from the camera.
type Sighting struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Unknown is the name reported when a face matches nobody in the
// gallery.
const Unknown = "Unknown"

// Recognizer streams face sightings from the camera. Watch returns a
// channel that closes when the recognizer stops or the context ends.
type Recognizer interface {
	Watch(ctx context.Context) (<-chan Sighting, error)
	Close() error
}
