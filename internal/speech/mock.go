package speech

import (
	"context"
	"sync"
)

// MockSpeaker records phrases instead of speaking them. Used in tests
// and when running without an audio stack.
type MockSpeaker struct {
	mu      sync.Mutex
	phrases []string
}

func NewMockSpeaker() *MockSpeaker {
	return &MockSpeaker{}
}

func (s *MockSpeaker) Speak(ctx context.Context, phrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phrases = append(s.phrases, phrase)
	return nil
}

func (s *MockSpeaker) Close() error { return nil }

// Phrases returns everything spoken so far.
func (s *MockSpeaker) Phrases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.phrases))
	copy(out, s.phrases)
	return out
}
