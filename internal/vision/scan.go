package vision

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Scanner debounces raw sightings into one confident match per
// visitor. A single frame is too jittery to act on; the scanner
// collects a window of frames and takes the majority name.
type Scanner struct {
	recognizer Recognizer
	frames     int
	timeout    time.Duration
	logger     *slog.Logger
	failed     atomic.Bool
}

// Match is the scanner's verdict for one visitor.
type Match struct {
	Name       string
	Confidence float64
	Frames     int
}

func NewScanner(recognizer Recognizer, frames int, timeout time.Duration, logger *slog.Logger) *Scanner {
	return &Scanner{
		recognizer: recognizer,
		frames:     frames,
		timeout:    timeout,
		logger:     logger.With("component", "vision"),
	}
}

// Healthy reports whether the last attempt to open the camera stream
// succeeded. True before the first scan.
func (s *Scanner) Healthy() bool { return !s.failed.Load() }

// Scan watches the camera until enough frames have accumulated, then
// returns the name seen most often. Ties go to the name seen first.
// If the window never fills before the timeout, the visitor counts as
// Unknown.
func (s *Scanner) Scan(ctx context.Context) (Match, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sightings, err := s.recognizer.Watch(ctx)
	if err != nil {
		s.failed.Store(true)
		return Match{}, err
	}
	s.failed.Store(false)

	var timeoutC <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	counts := make(map[string]int)
	order := []string{}
	sums := make(map[string]float64)
	total := 0

	for total < s.frames {
		select {
		case <-ctx.Done():
			return Match{}, ctx.Err()
		case <-timeoutC:
			s.logger.Info("scan timed out, visitor unknown", "frames", total)
			return Match{Name: Unknown, Frames: total}, nil
		case sighting, ok := <-sightings:
			if !ok {
				s.logger.Warn("recognizer stream ended during scan", "frames", total)
				return Match{Name: Unknown, Frames: total}, nil
			}
			if counts[sighting.Name] == 0 {
				order = append(order, sighting.Name)
			}
			counts[sighting.Name]++
			sums[sighting.Name] += sighting.Confidence
			total++
		}
	}

	best := ""
	for _, name := range order {
		if best == "" || counts[name] > counts[best] {
			best = name
		}
	}
	match := Match{
		Name:       best,
		Confidence: sums[best] / float64(counts[best]),
		Frames:     counts[best],
	}
	s.logger.Info("visitor matched", "name", match.Name, "frames", match.Frames, "window", total)
	return match, nil
}
