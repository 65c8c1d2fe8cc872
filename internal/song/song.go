package song

import (
	"fmt"
	"strings"
)

// Rest is the pitch marking a rest in a synth track.
const Rest = "R"

// NoteEvent is one note or rest in a synth track. Durations are note
// values: w(hole), h(alf), q(uarter), e(ighth), s(ixteenth).
type NoteEvent struct {
	Pitch  string `yaml:"pitch"`
	Octave int    `yaml:"octave,omitempty"`
	Volume int    `yaml:"volume,omitempty"`
	Dur    string `yaml:"dur"`
}

// IsRest reports whether the event is a rest.
func (n NoteEvent) IsRest() bool { return n.Pitch == Rest }

// Track is the note sequence for one synth. Board names the board that
// plays the track.
type Track struct {
	Board string      `yaml:"board"`
	Notes []NoteEvent `yaml:"notes"`
}

// LyricEvent is one entry in the lyric track: either a phrase to speak
// (underscores separate words within one entry) or a timed rest. Spoken
// phrases consume no ticks; only rests do.
type LyricEvent struct {
	Say  string `yaml:"say,omitempty"`
	Rest string `yaml:"rest,omitempty"`
}

// Song is one songbook entry: up to three synth tracks plus a lyric track.
type Song struct {
	Title  string       `yaml:"title"`
	Slug   string       `yaml:"slug"`
	Tracks []Track      `yaml:"tracks"`
	Lyrics []LyricEvent `yaml:"lyrics"`
}

// durTicks maps note values to 50ms metronome ticks: a whole note is
// 800ms, a sixteenth is one tick.
var durTicks = map[string]int{
	"w": 16,
	"h": 8,
	"q": 4,
	"e": 2,
	"s": 1,
}

// DurTicks returns the tick count for a note value. Values are matched
// case-insensitively; some hand-entered charts carry 'W' for 'w'.
func DurTicks(dur string) (int, error) {
	ticks, ok := durTicks[strings.ToLower(dur)]
	if !ok {
		return 0, fmt.Errorf("unknown duration %q", dur)
	}
	return ticks, nil
}

// keyFor maps pitch names to the ArduTouch keyboard-menu key for that
// note within an octave.
var keyFor = map[string]byte{
	"C":  'z',
	"C#": 's',
	"D":  'x',
	"D#": 'd',
	"E":  'c',
	"F":  'v',
	"F#": 'g',
	"G":  'b',
	"G#": 'h',
	"A":  'n',
	"A#": 'j',
	"B":  'm',
}

// KeyFor returns the ArduTouch key for a pitch name.
func KeyFor(pitch string) (byte, error) {
	key, ok := keyFor[pitch]
	if !ok {
		return 0, fmt.Errorf("unknown pitch %q", pitch)
	}
	return key, nil
}

// Validate checks every event in the song against the playable ranges.
func (s *Song) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("song title must not be empty")
	}
	if s.Slug == "" {
		return fmt.Errorf("song %q must have a slug", s.Title)
	}
	if len(s.Tracks) == 0 {
		return fmt.Errorf("song %q has no tracks", s.Slug)
	}
	for ti, track := range s.Tracks {
		if track.Board == "" {
			return fmt.Errorf("song %q track %d must name a board", s.Slug, ti)
		}
		if len(track.Notes) == 0 {
			return fmt.Errorf("song %q track %q has no notes", s.Slug, track.Board)
		}
		for ni, note := range track.Notes {
			if _, err := DurTicks(note.Dur); err != nil {
				return fmt.Errorf("song %q track %q note %d: %w", s.Slug, track.Board, ni, err)
			}
			if note.IsRest() {
				continue
			}
			if _, err := KeyFor(note.Pitch); err != nil {
				return fmt.Errorf("song %q track %q note %d: %w", s.Slug, track.Board, ni, err)
			}
			if note.Octave < 0 || note.Octave > 7 {
				return fmt.Errorf("song %q track %q note %d: octave %d out of range", s.Slug, track.Board, ni, note.Octave)
			}
			if note.Volume < 0 || note.Volume > 255 {
				return fmt.Errorf("song %q track %q note %d: volume %d out of range", s.Slug, track.Board, ni, note.Volume)
			}
		}
	}
	for li, lyric := range s.Lyrics {
		switch {
		case lyric.Say != "" && lyric.Rest != "":
			return fmt.Errorf("song %q lyric %d: say and rest are exclusive", s.Slug, li)
		case lyric.Say == "" && lyric.Rest == "":
			return fmt.Errorf("song %q lyric %d: empty event", s.Slug, li)
		case lyric.Rest != "":
			if _, err := DurTicks(lyric.Rest); err != nil {
				return fmt.Errorf("song %q lyric %d: %w", s.Slug, li, err)
			}
		}
	}
	return nil
}

// Phrase returns the text to speak for a lyric entry, with the
// underscore word separators replaced by spaces.
func (l LyricEvent) Phrase() string {
	return strings.ReplaceAll(l.Say, "_", " ")
}
