package sequencer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maltman23/LoungeLooker/internal/song"
	"github.com/maltman23/LoungeLooker/internal/synth"
)

type recordingAnnouncer struct {
	mu      sync.Mutex
	phrases []string
}

func (a *recordingAnnouncer) Say(ctx context.Context, phrase string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.phrases = append(a.phrases, phrase)
	return nil
}

func (a *recordingAnnouncer) Phrases() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.phrases))
	copy(out, a.phrases)
	return out
}

func newTestRig(voices map[string]string) (*Sequencer, map[string]*synth.MemoryPort, *recordingAnnouncer, *ManualClock) {
	logger := slog.Default()
	ports := map[string]*synth.MemoryPort{}
	boards := []*synth.Board{}
	for name, voice := range voices {
		p := synth.NewMemoryPort()
		ports[name] = p
		boards = append(boards, synth.NewBoard(name, voice, p, 0, logger))
	}
	bank := synth.NewBankWithBoards(logger, boards...)
	announcer := &recordingAnnouncer{}
	clock := NewManualClock()
	seq := New(bank, announcer, 50*time.Millisecond, logger).
		WithClockFactory(func(time.Duration) Clock { return clock })
	return seq, ports, announcer, clock
}

// drive cranks the clock until Play returns.
func drive(t *testing.T, seq *Sequencer, clock *ManualClock, ctx context.Context, sng *song.Song) (Result, error) {
	t.Helper()
	var (
		res Result
		err error
	)
	done := make(chan struct{})
	go func() {
		res, err = seq.Play(ctx, sng)
		close(done)
	}()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return res, err
		case clock.Chan() <- time.Now():
		case <-timeout:
			t.Fatal("playback did not finish")
		}
	}
}

func TestPlaySingleTrackTiming(t *testing.T) {
	seq, ports, _, clock := newTestRig(map[string]string{"thick": "bass"})
	sng := &song.Song{
		Title: "Scale", Slug: "scale",
		Tracks: []song.Track{{Board: "thick", Notes: []song.NoteEvent{
			{Pitch: "C", Octave: 3, Volume: 255, Dur: "q"},
			{Pitch: "R", Dur: "e"},
			{Pitch: "E", Octave: 3, Volume: 200, Dur: "s"},
		}}},
	}

	res, err := drive(t, seq, clock, context.Background(), sng)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	// 4 + 2 + 1 event ticks plus the tick that retires the last note.
	if res.Ticks != 8 {
		t.Errorf("Ticks = %d, want 8", res.Ticks)
	}
	if res.NoteCounts["thick"] != 2 {
		t.Errorf("NoteCounts[thick] = %d, want 2", res.NoteCounts["thick"])
	}

	got := strings.Join(ports["thick"].Writes(), "")
	want := `v255\` + "k3z`" + "k `" + `v200\` + "k3c`" + "k `"
	if got != want {
		t.Errorf("stream = %q, want %q", got, want)
	}
}

func TestPlayDroneRestsAndFade(t *testing.T) {
	seq, ports, _, clock := newTestRig(map[string]string{"dronetic": "drone"})
	sng := &song.Song{
		Title: "Drone", Slug: "drone",
		Tracks: []song.Track{{Board: "dronetic", Notes: []song.NoteEvent{
			{Pitch: "G", Octave: 2, Volume: 150, Dur: "s"},
			{Pitch: "R", Dur: "s"},
			{Pitch: "G", Octave: 2, Volume: 150, Dur: "s"},
		}}},
	}

	if _, err := drive(t, seq, clock, context.Background(), sng); err != nil {
		t.Fatalf("Play: %v", err)
	}
	got := strings.Join(ports["dronetic"].Writes(), "")
	// A drone rest mutes the voice, and end of song fades before the
	// final stop.
	if !strings.Contains(got, "k `"+`v0\`) {
		t.Errorf("stream %q missing muted rest", got)
	}
	fade := `v200\v180\v150\v100\v80\v60\v40\v20\v0\`
	if !strings.Contains(got, fade) {
		t.Errorf("stream %q missing fade-out", got)
	}
	if !strings.HasSuffix(got, fade+"k `") {
		t.Errorf("stream %q must end with fade then stop", got)
	}
}

func TestPlayDispatchesLyrics(t *testing.T) {
	seq, _, announcer, clock := newTestRig(map[string]string{"thick": "bass"})
	sng := &song.Song{
		Title: "Words", Slug: "words",
		Tracks: []song.Track{{Board: "thick", Notes: []song.NoteEvent{
			{Pitch: "C", Octave: 3, Volume: 255, Dur: "w"},
		}}},
		Lyrics: []song.LyricEvent{
			{Say: "strangers"},
			{Rest: "h"},
			{Say: "in_the_night"},
		},
	}

	res, err := drive(t, seq, clock, context.Background(), sng)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	want := []string{"strangers", "in the night"}
	got := announcer.Phrases()
	if len(got) != len(want) {
		t.Fatalf("phrases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phrase %d = %q, want %q", i, got[i], want[i])
		}
	}
	if res.LyricCount != 2 {
		t.Errorf("LyricCount = %d, want 2", res.LyricCount)
	}
}

func TestPlayLyricWordsTakeNoTicks(t *testing.T) {
	seq, _, announcer, clock := newTestRig(map[string]string{"thick": "bass"})
	// Three consecutive words and a sixteenth note: the words must all
	// be out after three ticks even though the track needs only one.
	sng := &song.Song{
		Title: "Patter", Slug: "patter",
		Tracks: []song.Track{{Board: "thick", Notes: []song.NoteEvent{
			{Pitch: "C", Octave: 3, Volume: 255, Dur: "s"},
		}}},
		Lyrics: []song.LyricEvent{
			{Say: "one"}, {Say: "two"}, {Say: "three"},
		},
	}

	res, err := drive(t, seq, clock, context.Background(), sng)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if res.Ticks != 3 {
		t.Errorf("Ticks = %d, want 3", res.Ticks)
	}
	if len(announcer.Phrases()) != 3 {
		t.Errorf("phrases = %v, want three words", announcer.Phrases())
	}
}

func TestPlayUnknownBoard(t *testing.T) {
	seq, _, _, _ := newTestRig(map[string]string{"thick": "bass"})
	sng := &song.Song{
		Title: "Lost", Slug: "lost",
		Tracks: []song.Track{{Board: "missing", Notes: []song.NoteEvent{
			{Pitch: "C", Octave: 3, Volume: 255, Dur: "q"},
		}}},
	}
	if _, err := seq.Play(context.Background(), sng); err == nil {
		t.Fatal("expected error for track with no matching board")
	}
}

func TestPlayCancellationSilencesBoards(t *testing.T) {
	seq, ports, _, clock := newTestRig(map[string]string{"thick": "bass"})
	sng := &song.Song{
		Title: "Long", Slug: "long",
		Tracks: []song.Track{{Board: "thick", Notes: []song.NoteEvent{
			{Pitch: "C", Octave: 3, Volume: 255, Dur: "w"},
			{Pitch: "D", Octave: 3, Volume: 255, Dur: "w"},
		}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := seq.Play(ctx, sng)
		done <- err
	}()
	clock.Tick()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Play returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Play did not return after cancellation")
	}
	got := strings.Join(ports["thick"].Writes(), "")
	if !strings.HasSuffix(got, "k `") {
		t.Errorf("stream %q must end with a stop note", got)
	}
}
