package vision

import (
	"context"
	"time"
)

// MockRecognizer reports the same name on every frame, at a fixed
// frame rate. Used in tests and when running without a camera.
type MockRecognizer struct {
	Name       string
	Confidence float64
	FrameEvery time.Duration
}

func NewMockRecognizer(name string) *MockRecognizer {
	return &MockRecognizer{Name: name, Confidence: 1, FrameEvery: 10 * time.Millisecond}
}

func (r *MockRecognizer) Watch(ctx context.Context) (<-chan Sighting, error) {
	out := make(chan Sighting)
	go func() {
		defer close(out)
		ticker := time.NewTicker(r.FrameEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			select {
			case out <- Sighting{Name: r.Name, Confidence: r.Confidence}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *MockRecognizer) Close() error { return nil }

// ChannelRecognizer replays sightings pushed by a test.
type ChannelRecognizer struct {
	Frames chan Sighting
}

func NewChannelRecognizer() *ChannelRecognizer {
	return &ChannelRecognizer{Frames: make(chan Sighting, 64)}
}

func (r *ChannelRecognizer) Watch(ctx context.Context) (<-chan Sighting, error) {
	out := make(chan Sighting)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-r.Frames:
				if !ok {
					return
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *ChannelRecognizer) Close() error { return nil }
