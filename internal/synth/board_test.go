package synth

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testBoard(voice string) (*Board, *MemoryPort) {
	port := NewMemoryPort()
	logger := slog.Default()
	return NewBoard("thick", voice, port, time.Millisecond, logger), port
}

func TestPlayNoteEncoding(t *testing.T) {
	b, port := testBoard("bass")
	if err := b.PlayNote("C#", 3); err != nil {
		t.Fatalf("PlayNote: %v", err)
	}
	got := strings.Join(port.Writes(), "")
	if got != "k3s`" {
		t.Errorf("wrote %q, want k3s`", got)
	}
}

func TestPlayNoteRejectsBadInput(t *testing.T) {
	b, port := testBoard("bass")
	if err := b.PlayNote("H", 3); err == nil {
		t.Error("expected error for unknown pitch")
	}
	if err := b.PlayNote("C", 9); err == nil {
		t.Error("expected error for out-of-range octave")
	}
	if len(port.Writes()) != 0 {
		t.Errorf("rejected notes must not reach the port, wrote %v", port.Writes())
	}
}

func TestStopNoteEncoding(t *testing.T) {
	b, port := testBoard("bass")
	if err := b.StopNote(); err != nil {
		t.Fatalf("StopNote: %v", err)
	}
	got := strings.Join(port.Writes(), "")
	if got != "k `" {
		t.Errorf("wrote %q, want k `", got)
	}
}

func TestSetVolumeEncoding(t *testing.T) {
	b, port := testBoard("bass")
	if err := b.SetVolume(150); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	got := strings.Join(port.Writes(), "")
	if got != `v150\` {
		t.Errorf("wrote %q, want v150\\", got)
	}

	if err := b.SetVolume(-1); err == nil {
		t.Error("expected error for negative volume")
	}
	if err := b.SetVolume(256); err == nil {
		t.Error("expected error for volume above 255")
	}
}

func TestFadeStepsDownToZero(t *testing.T) {
	b, port := testBoard("drone")
	if err := b.Fade(); err != nil {
		t.Fatalf("Fade: %v", err)
	}
	want := []string{`v200\`, `v180\`, `v150\`, `v100\`, `v80\`, `v60\`, `v40\`, `v20\`, `v0\`}
	got := port.Writes()
	if len(got) != len(want) {
		t.Fatalf("wrote %d commands, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fade step %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResetTogglesRTS(t *testing.T) {
	b, port := testBoard("bass")
	if err := b.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	rts := port.RTS()
	if len(rts) != 2 || rts[0] != true || rts[1] != false {
		t.Errorf("RTS transitions = %v, want [true false]", rts)
	}
}

func TestIsDrone(t *testing.T) {
	drone, _ := testBoard("drone")
	bass, _ := testBoard("bass")
	if !drone.IsDrone() {
		t.Error("drone voice not detected")
	}
	if bass.IsDrone() {
		t.Error("bass voice misdetected as drone")
	}
}
