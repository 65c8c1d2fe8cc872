package vision

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/maltman23/LoungeLooker/internal/config"
	"github.com/maltman23/LoungeLooker/internal/song"
)

func push(rec *ChannelRecognizer, name string, n int) {
	for i := 0; i < n; i++ {
		rec.Frames <- Sighting{Name: name, Confidence: 0.8}
	}
}

func TestScanMajorityWins(t *testing.T) {
	rec := NewChannelRecognizer()
	push(rec, "frank_sinatra", 3)
	push(rec, Unknown, 2)

	s := NewScanner(rec, 5, time.Second, slog.Default())
	match, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if match.Name != "frank_sinatra" {
		t.Errorf("Name = %q, want frank_sinatra", match.Name)
	}
	if match.Frames != 3 {
		t.Errorf("Frames = %d, want 3", match.Frames)
	}
}

func TestScanTieGoesToFirstSeen(t *testing.T) {
	rec := NewChannelRecognizer()
	push(rec, "herb_alpert", 2)
	push(rec, "sandra_dee", 2)

	s := NewScanner(rec, 4, time.Second, slog.Default())
	match, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if match.Name != "herb_alpert" {
		t.Errorf("Name = %q, want herb_alpert", match.Name)
	}
}

func TestScanTimeoutReturnsUnknown(t *testing.T) {
	rec := NewChannelRecognizer()
	push(rec, "adrian", 1)

	s := NewScanner(rec, 20, 50*time.Millisecond, slog.Default())
	match, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if match.Name != Unknown {
		t.Errorf("Name = %q, want Unknown", match.Name)
	}
}

func TestScanStreamEndReturnsUnknown(t *testing.T) {
	rec := NewChannelRecognizer()
	push(rec, "adrian", 2)
	close(rec.Frames)

	s := NewScanner(rec, 20, time.Second, slog.Default())
	match, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if match.Name != Unknown {
		t.Errorf("Name = %q, want Unknown", match.Name)
	}
}

func TestScanCancellation(t *testing.T) {
	rec := NewChannelRecognizer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScanner(rec, 20, time.Second, slog.Default())
	if _, err := s.Scan(ctx); err == nil {
		t.Fatal("expected error for cancelled scan")
	}
}

func testLibrary() *song.Library {
	mk := func(slug string) *song.Song {
		return &song.Song{
			Title: slug, Slug: slug,
			Tracks: []song.Track{{Board: "thick", Notes: []song.NoteEvent{
				{Pitch: "C", Octave: 3, Volume: 100, Dur: "q"},
			}}},
		}
	}
	return song.NewLibrary(mk("my-way"), mk("moon-river"))
}

func TestSelectorMappedName(t *testing.T) {
	matches := map[string]string{"adrian": "my-way", "mitch": config.RandomMatch}
	sel, err := NewSelector(matches, testLibrary(), slog.Default())
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}

	sng, random, err := sel.Choose("adrian")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if random || sng.Slug != "my-way" {
		t.Errorf("Choose(adrian) = %q random=%v", sng.Slug, random)
	}
}

func TestSelectorRandomFallback(t *testing.T) {
	matches := map[string]string{"mitch": config.RandomMatch}
	sel, err := NewSelector(matches, testLibrary(), slog.Default())
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}

	for _, name := range []string{"mitch", Unknown, "never_enrolled"} {
		sng, random, err := sel.Choose(name)
		if err != nil {
			t.Fatalf("Choose(%s): %v", name, err)
		}
		if !random {
			t.Errorf("Choose(%s) not random", name)
		}
		if _, ok := testLibrary().Get(sng.Slug); !ok {
			t.Errorf("Choose(%s) returned song outside the songbook: %q", name, sng.Slug)
		}
	}
}

func TestSelectorRejectsUnknownSong(t *testing.T) {
	matches := map[string]string{"adrian": "not-a-song"}
	if _, err := NewSelector(matches, testLibrary(), slog.Default()); err == nil {
		t.Error("expected error for match table entry with unknown song")
	}
}
