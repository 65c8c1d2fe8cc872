package vision

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/maltman23/LoungeLooker/internal/config"
	"github.com/maltman23/LoungeLooker/internal/song"
)

// Selector maps a matched face to the song it gets. Names missing from
// the table, and names mapped to the random marker, draw a random song
// from the whole songbook.
type Selector struct {
	matches map[string]string
	library *song.Library
	logger  *slog.Logger
}

func NewSelector(matches map[string]string, library *song.Library, logger *slog.Logger) (*Selector, error) {
	for name, slug := range matches {
		if slug == config.RandomMatch {
			continue
		}
		if _, ok := library.Get(slug); !ok {
			return nil, fmt.Errorf("match table maps %q to unknown song %q", name, slug)
		}
	}
	return &Selector{
		matches: matches,
		library: library,
		logger:  logger.With("component", "vision"),
	}, nil
}

// Choose returns the song for a matched name and whether it was drawn
// at random.
func (s *Selector) Choose(name string) (*song.Song, bool, error) {
	slug, ok := s.matches[name]
	if ok && slug != config.RandomMatch {
		sng, found := s.library.Get(slug)
		if !found {
			return nil, false, fmt.Errorf("song %q missing from songbook", slug)
		}
		return sng, false, nil
	}

	slugs := s.library.Slugs()
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(slugs))))
	if err != nil {
		return nil, false, fmt.Errorf("draw random song: %w", err)
	}
	sng, _ := s.library.Get(slugs[idx.Int64()])
	s.logger.Info("drew random song", "name", name, "song", sng.Slug)
	return sng, true, nil
}
