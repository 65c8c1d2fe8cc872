package show

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltman23/LoungeLooker/internal/bus"
	"github.com/maltman23/LoungeLooker/internal/config"
	"github.com/maltman23/LoungeLooker/internal/eventstore"
	"github.com/maltman23/LoungeLooker/internal/natsserver"
	"github.com/maltman23/LoungeLooker/internal/sequencer"
	"github.com/maltman23/LoungeLooker/internal/song"
	"github.com/maltman23/LoungeLooker/internal/speech"
	"github.com/maltman23/LoungeLooker/internal/synth"
	"github.com/maltman23/LoungeLooker/internal/vision"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSong() *song.Song {
	return &song.Song{
		Title: "Test Song", Slug: "test-song",
		Tracks: []song.Track{
			{Board: "thick", Notes: []song.NoteEvent{
				{Pitch: "C", Octave: 3, Volume: 200, Dur: "s"},
				{Pitch: "E", Octave: 3, Volume: 200, Dur: "s"},
			}},
			{Board: "dronetic", Notes: []song.NoteEvent{
				{Pitch: "G", Octave: 2, Volume: 150, Dur: "e"},
			}},
		},
		Lyrics: []song.LyricEvent{{Say: "my_way"}},
	}
}

func TestShowRunsOneFullCycle(t *testing.T) {
	logger := newLogger()

	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, logger)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, logger)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)

	synthCfg := config.SynthsConfig{
		Enabled: true,
		Boards: []config.BoardConfig{
			{Name: "thick", Device: "mem0", Baud: 115200, Voice: "bass", WarmupNote: "D", WarmupOctave: 3, WarmupVolume: 20},
			{Name: "dronetic", Device: "mem1", Baud: 115200, Voice: "drone", WarmupNote: "G", WarmupOctave: 2, WarmupVolume: 10},
		},
		OpenSettleMS: 1, ResetSettleMS: 1, ResetWaitMS: 1, WarmupHoldMS: 1, QuietMS: 1, OpenRetries: 1,
	}
	bank := synth.NewBank(synthCfg, func(string, int) (synth.Port, error) {
		return synth.NewMemoryPort(), nil
	}, logger)

	speaker := speech.NewMockSpeaker()
	speechSvc := speech.NewService(client, speaker, logger)
	if err := speechSvc.Start(t.Context()); err != nil {
		t.Fatalf("start speech service: %v", err)
	}
	t.Cleanup(speechSvc.Stop)

	announcer := speech.NewBusAnnouncer(client, "")
	seq := sequencer.New(bank, announcer, time.Millisecond, logger)

	rec := vision.NewChannelRecognizer()
	for i := 0; i < 3; i++ {
		rec.Frames <- vision.Sighting{Name: "adrian", Confidence: 0.9}
	}
	scanner := vision.NewScanner(rec, 3, time.Second, logger)

	library := song.NewLibrary(testSong())
	selector, err := vision.NewSelector(map[string]string{"adrian": "test-song"}, library, logger)
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}

	store, err := eventstore.Open(t.Context(), config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "events.db"),
		RetentionMode: "session",
	}, logger)
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	showCfg := config.ShowConfig{
		Loop: false, AttractHoldMS: 1, RevealHoldMS: 1, CooldownHoldMS: 1, ThanksHoldMS: 1,
	}
	s := New(showCfg, bank, seq, scanner, selector, announcer, store, client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	status := s.Status()
	if status.Stage != StageThanks {
		t.Errorf("Stage = %q, want thanks", status.Stage)
	}
	if status.Face != "adrian" || status.Song != "test-song" {
		t.Errorf("status = %+v", status)
	}
	if status.SongsPlayed != 1 {
		t.Errorf("SongsPlayed = %d, want 1", status.SongsPlayed)
	}

	sessions, err := store.RecentSessions(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Face != "adrian" || sessions[0].Song != "test-song" {
		t.Errorf("sessions = %+v", sessions)
	}
	events, err := store.ListSessionEvents(context.Background(), sessions[0].ID, 10)
	if err != nil {
		t.Fatalf("ListSessionEvents: %v", err)
	}
	types := map[string]bool{}
	for _, e := range events {
		types[e.Type] = true
	}
	for _, want := range []string{"face.matched", "song.started", "song.finished"} {
		if !types[want] {
			t.Errorf("journal missing %s event, have %v", want, types)
		}
	}

	// The lyric goes through the bus to the speech service.
	deadline := time.After(2 * time.Second)
	for len(speaker.Phrases()) == 0 {
		select {
		case <-deadline:
			t.Fatal("lyric never reached the speech service")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := speaker.Phrases()[0]; got != "my way" {
		t.Errorf("spoken phrase = %q, want %q", got, "my way")
	}
}
