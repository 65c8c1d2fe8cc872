package speech

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewExecSpeakerParsesCommand(t *testing.T) {
	s, err := NewExecSpeaker("espeak -s 130", "en", slog.Default())
	if err != nil {
		t.Fatalf("NewExecSpeaker: %v", err)
	}
	if len(s.argv) != 3 || s.argv[0] != "espeak" {
		t.Errorf("argv = %v", s.argv)
	}
}

func TestNewExecSpeakerRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecSpeaker("", "", slog.Default()); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := NewExecSpeaker(`espeak "unterminated`, "", slog.Default()); err == nil {
		t.Error("expected error for unparseable command")
	}
}

func TestMockSpeakerRecords(t *testing.T) {
	s := NewMockSpeaker()
	if err := s.Speak(context.Background(), "strangers in the night"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	got := s.Phrases()
	if len(got) != 1 || got[0] != "strangers in the night" {
		t.Errorf("Phrases() = %v", got)
	}
}
