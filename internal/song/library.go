package song

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Library holds every song loaded from the songbook directory, keyed
// by slug.
type Library struct {
	songs map[string]*Song
}

// NewLibrary builds a Library from songs already in memory.
func NewLibrary(songs ...*Song) *Library {
	lib := &Library{songs: make(map[string]*Song, len(songs))}
	for _, s := range songs {
		lib.songs[s.Slug] = s
	}
	return lib
}

// LoadFile parses and validates a single songbook file.
func LoadFile(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read song file: %w", err)
	}
	var s Song
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse song file %s: %w", path, err)
	}
	if s.Slug == "" {
		s.Slug = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate song file %s: %w", path, err)
	}
	return &s, nil
}

// LoadDir loads every *.yaml file in dir into a Library.
func LoadDir(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read songbook directory: %w", err)
	}
	lib := &Library{songs: make(map[string]*Song)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		s, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, exists := lib.songs[s.Slug]; exists {
			return nil, fmt.Errorf("duplicate song slug %q", s.Slug)
		}
		lib.songs[s.Slug] = s
	}
	if len(lib.songs) == 0 {
		return nil, fmt.Errorf("songbook directory %s contains no songs", dir)
	}
	return lib, nil
}

// Get returns the song for a slug.
func (l *Library) Get(slug string) (*Song, bool) {
	s, ok := l.songs[slug]
	return s, ok
}

// Slugs returns every loaded slug in sorted order.
func (l *Library) Slugs() []string {
	slugs := make([]string, 0, len(l.songs))
	for slug := range l.songs {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Len returns the number of loaded songs.
func (l *Library) Len() int { return len(l.songs) }
