package synth

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maltman23/LoungeLooker/internal/song"
)

// VoiceDrone marks the board playing the drone voice. The drone keeps
// sounding through note changes, so rests mute it and end of song fades
// it instead of cutting it.
const VoiceDrone = "drone"

// fadeLevels are the volume steps used to fade a voice out, with a
// short pause between each.
var fadeLevels = []int{200, 180, 150, 100, 80, 60, 40, 20, 0}

const fadeStepPause = time.Millisecond

// Board drives one ArduTouch synth over its serial port. Commands are
// keystrokes in the board's console menus: 'k' enters the keyboard
// menu, '`' exits it, 'v' enters the volume menu and '\' commits.
type Board struct {
	Name  string
	Voice string

	port        Port
	resetSettle time.Duration
	logger      *slog.Logger
}

func NewBoard(name, voice string, port Port, resetSettle time.Duration, logger *slog.Logger) *Board {
	return &Board{
		Name:        name,
		Voice:       voice,
		port:        port,
		resetSettle: resetSettle,
		logger:      logger.With("component", "synth", "board", name),
	}
}

// IsDrone reports whether this board plays the drone voice.
func (b *Board) IsDrone() bool { return b.Voice == VoiceDrone }

// PlayNote starts a pitch sounding at the given octave. The note keeps
// sounding until StopNote or the next PlayNote.
func (b *Board) PlayNote(pitch string, octave int) error {
	key, err := song.KeyFor(pitch)
	if err != nil {
		return err
	}
	if octave < 0 || octave > 7 {
		return fmt.Errorf("octave %d out of range", octave)
	}
	cmd := []byte{'k', byte('0' + octave), key, '`'}
	if err := b.port.Write(cmd); err != nil {
		return fmt.Errorf("board %s play note: %w", b.Name, err)
	}
	return nil
}

// StopNote silences whatever note is sounding.
func (b *Board) StopNote() error {
	if err := b.port.Write([]byte("k `")); err != nil {
		return fmt.Errorf("board %s stop note: %w", b.Name, err)
	}
	return nil
}

// SetVolume sets the board's output level, 0 to 255.
func (b *Board) SetVolume(level int) error {
	if level < 0 || level > 255 {
		return fmt.Errorf("volume %d out of range", level)
	}
	cmd := append([]byte{'v'}, strconv.Itoa(level)...)
	cmd = append(cmd, '\\')
	if err := b.port.Write(cmd); err != nil {
		return fmt.Errorf("board %s set volume: %w", b.Name, err)
	}
	return nil
}

// Fade steps the volume down to zero.
func (b *Board) Fade() error {
	for i, level := range fadeLevels {
		if i > 0 {
			time.Sleep(fadeStepPause)
		}
		if err := b.SetVolume(level); err != nil {
			return err
		}
	}
	return nil
}

// Reset pulses the board's reset line by toggling RTS, holding each
// transition long enough to settle.
func (b *Board) Reset() error {
	if err := b.port.SetRTS(true); err != nil {
		return fmt.Errorf("board %s reset: %w", b.Name, err)
	}
	time.Sleep(b.resetSettle)
	if err := b.port.SetRTS(false); err != nil {
		return fmt.Errorf("board %s reset: %w", b.Name, err)
	}
	time.Sleep(b.resetSettle)
	b.logger.Debug("board reset")
	return nil
}

// ExitRemote leaves the board's remote control mode, entered fresh
// after a power-on.
func (b *Board) ExitRemote() error {
	if err := b.port.Write([]byte("`")); err != nil {
		return fmt.Errorf("board %s exit remote mode: %w", b.Name, err)
	}
	return nil
}

// Close releases the serial port.
func (b *Board) Close() error {
	return b.port.Close()
}
