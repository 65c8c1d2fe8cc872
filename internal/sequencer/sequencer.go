package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltman23/LoungeLooker/internal/song"
	"github.com/maltman23/LoungeLooker/internal/synth"
)

// Announcer speaks a lyric phrase. Implementations must return
// promptly; speaking happens off the metronome's clock so a slow
// speech engine never stretches the notes sounding on the boards.
type Announcer interface {
	Say(ctx context.Context, phrase string) error
}

// Result summarizes one completed playback run.
type Result struct {
	Ticks      int
	NoteCounts map[string]int
	LyricCount int
}

// Sequencer plays songs on the board bank, one note event per track
// per countdown expiry, on a fixed metronome tick.
type Sequencer struct {
	bank      *synth.Bank
	announcer Announcer
	tick      time.Duration
	newClock  ClockFactory
	logger    *slog.Logger
}

func New(bank *synth.Bank, announcer Announcer, tick time.Duration, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		bank:      bank,
		announcer: announcer,
		tick:      tick,
		newClock:  NewTickerClock,
		logger:    logger.With("component", "sequencer"),
	}
}

// WithClockFactory replaces the wall-time ticker, for tests and
// hardware-clocked installations.
func (s *Sequencer) WithClockFactory(f ClockFactory) *Sequencer {
	s.newClock = f
	return s
}

// trackState walks one synth track. tickCount holds the remaining
// ticks of the current event; when it hits zero the next event loads.
// lastNote latches once the final event starts sounding, so the track
// finishes only after that event's full duration.
type trackState struct {
	board     *synth.Board
	notes     []song.NoteEvent
	tickCount int
	idx       int
	lastNote  bool
	done      bool
	played    int
}

func (t *trackState) step(logger *slog.Logger) error {
	if t.done {
		return nil
	}
	if t.tickCount != 0 {
		t.tickCount--
		return nil
	}
	if !t.lastNote {
		ev := t.notes[t.idx]
		ticks, err := song.DurTicks(ev.Dur)
		if err != nil {
			return err
		}
		t.tickCount = ticks - 1
		if ev.IsRest() {
			if err := t.board.StopNote(); err != nil {
				return err
			}
			if t.board.IsDrone() {
				// The drone sounds through StopNote, silence it for real.
				if err := t.board.SetVolume(0); err != nil {
					return err
				}
			}
		} else {
			if err := t.board.SetVolume(ev.Volume); err != nil {
				return err
			}
			if err := t.board.PlayNote(ev.Pitch, ev.Octave); err != nil {
				return err
			}
			t.played++
		}
		t.idx++
		if t.idx == len(t.notes) {
			t.lastNote = true
		}
		return nil
	}
	// Last event just ran out its duration.
	t.done = true
	if t.board.IsDrone() {
		if err := t.board.Fade(); err != nil {
			return err
		}
	}
	if err := t.board.StopNote(); err != nil {
		return err
	}
	logger.Debug("track finished", "board", t.board.Name, "notes", t.played)
	return nil
}

// lyricState walks the lyric track. Spoken phrases take no ticks;
// only lyric rests consume them.
type lyricState struct {
	events    []song.LyricEvent
	tickCount int
	idx       int
	done      bool
	spoken    int
}

func (l *lyricState) step(ctx context.Context, announcer Announcer, logger *slog.Logger) error {
	if l.done {
		return nil
	}
	if l.tickCount != 0 {
		l.tickCount--
		return nil
	}
	ev := l.events[l.idx]
	if ev.Rest != "" {
		ticks, err := song.DurTicks(ev.Rest)
		if err != nil {
			return err
		}
		l.tickCount = ticks - 1
	} else {
		if announcer != nil {
			if err := announcer.Say(ctx, ev.Phrase()); err != nil {
				logger.Warn("failed to dispatch lyric", "phrase", ev.Phrase(), "error", err)
			}
		}
		l.spoken++
	}
	l.idx++
	if l.idx == len(l.events) {
		l.done = true
	}
	return nil
}

// Play runs the song to completion. Tracks are matched to boards by
// name. On cancellation every board is silenced before returning.
func (s *Sequencer) Play(ctx context.Context, sng *song.Song) (Result, error) {
	tracks := make([]*trackState, 0, len(sng.Tracks))
	for _, tr := range sng.Tracks {
		board, ok := s.bank.Board(tr.Board)
		if !ok {
			return Result{}, fmt.Errorf("song %s track %q has no matching board", sng.Slug, tr.Board)
		}
		tracks = append(tracks, &trackState{board: board, notes: tr.Notes})
	}
	var lyrics *lyricState
	if len(sng.Lyrics) > 0 {
		lyrics = &lyricState{events: sng.Lyrics}
	}

	s.logger.Info("playing song", "song", sng.Slug, "title", sng.Title, "tracks", len(tracks))

	clock := s.newClock(s.tick)
	defer clock.Stop()

	result := Result{NoteCounts: make(map[string]int, len(tracks))}
	for {
		select {
		case <-ctx.Done():
			s.silence()
			return result, ctx.Err()
		case <-clock.C():
		}
		result.Ticks++

		for _, t := range tracks {
			if err := t.step(s.logger); err != nil {
				s.silence()
				return result, fmt.Errorf("song %s: %w", sng.Slug, err)
			}
		}
		if lyrics != nil {
			if err := lyrics.step(ctx, s.announcer, s.logger); err != nil {
				s.silence()
				return result, fmt.Errorf("song %s lyrics: %w", sng.Slug, err)
			}
		}

		finished := lyrics == nil || lyrics.done
		for _, t := range tracks {
			if !t.done {
				finished = false
			}
		}
		if finished {
			break
		}
	}

	for _, t := range tracks {
		result.NoteCounts[t.board.Name] = t.played
	}
	if lyrics != nil {
		result.LyricCount = lyrics.spoken
	}
	s.logger.Info("song finished", "song", sng.Slug, "ticks", result.Ticks, "lyrics", result.LyricCount)
	return result, nil
}

func (s *Sequencer) silence() {
	for _, b := range s.bank.Boards() {
		if err := b.StopNote(); err != nil {
			s.logger.Warn("failed to silence board", "board", b.Name, "error", err)
		}
	}
}
