package synth

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/maltman23/LoungeLooker/internal/config"
)

// PortOpener opens the serial link for a board. Swapped out in tests
// and when running without hardware.
type PortOpener func(device string, baud int) (Port, error)

// Bank owns every ArduTouch board in the installation and sequences
// their shared lifecycle: open, reset, warm-up, shutdown.
type Bank struct {
	cfg    config.SynthsConfig
	opener PortOpener
	logger *slog.Logger

	boards []*Board
	byName map[string]*Board
	ready  atomic.Bool
}

func NewBank(cfg config.SynthsConfig, opener PortOpener, logger *slog.Logger) *Bank {
	if opener == nil {
		opener = OpenPort
	}
	return &Bank{
		cfg:    cfg,
		opener: opener,
		logger: logger.With("component", "synth"),
		byName: make(map[string]*Board),
	}
}

// NewBankWithBoards wraps boards that are already built and ready,
// bypassing Init. Used by tests and by installations running on memory
// ports without hardware attached.
func NewBankWithBoards(logger *slog.Logger, boards ...*Board) *Bank {
	bk := &Bank{
		logger: logger.With("component", "synth"),
		byName: make(map[string]*Board, len(boards)),
	}
	for _, b := range boards {
		bk.boards = append(bk.boards, b)
		bk.byName[b.Name] = b
	}
	bk.ready.Store(true)
	return bk
}

// Boards returns the boards in configuration order. Empty until Init
// has run cold.
func (bk *Bank) Boards() []*Board { return bk.boards }

// Board returns the board with the given name.
func (bk *Bank) Board(name string) (*Board, bool) {
	b, ok := bk.byName[name]
	return b, ok
}

// Ready reports whether the bank has been initialized and not shut down.
func (bk *Bank) Ready() bool { return bk.ready.Load() }

// Init prepares the boards for playing. A cold init opens the serial
// ports first and leaves the boards' remote mode. Every init resets the
// boards and plays one quiet note on each, because the first note after
// a reset comes out wrong on some boards.
func (bk *Bank) Init(ctx context.Context, cold bool) error {
	settle := time.Duration(bk.cfg.ResetSettleMS) * time.Millisecond

	if cold {
		bk.logger.Info("opening serial ports", "boards", len(bk.cfg.Boards))
		for _, bc := range bk.cfg.Boards {
			port, err := bk.openWithRetry(ctx, bc)
			if err != nil {
				bk.closeAll()
				return fmt.Errorf("open board %s: %w", bc.Name, err)
			}
			board := NewBoard(bc.Name, bc.Voice, port, settle, bk.logger)
			bk.boards = append(bk.boards, board)
			bk.byName[bc.Name] = board
		}
		// Opening the port pulses the reset line on most USB-serial
		// adapters, so let the boards come back up.
		if err := sleepCtx(ctx, time.Duration(bk.cfg.OpenSettleMS)*time.Millisecond); err != nil {
			return err
		}
	}

	bk.logger.Info("resetting boards")
	for _, b := range bk.boards {
		if err := b.Reset(); err != nil {
			return err
		}
	}
	if err := sleepCtx(ctx, time.Duration(bk.cfg.ResetWaitMS)*time.Millisecond); err != nil {
		return err
	}

	if cold {
		for _, b := range bk.boards {
			if err := b.ExitRemote(); err != nil {
				return err
			}
		}
	}

	bk.logger.Info("playing warm-up note on each board")
	for i, b := range bk.boards {
		bc := bk.cfg.Boards[i]
		if err := b.SetVolume(bc.WarmupVolume); err != nil {
			return err
		}
		if err := b.PlayNote(bc.WarmupNote, bc.WarmupOctave); err != nil {
			return err
		}
	}
	if err := sleepCtx(ctx, time.Duration(bk.cfg.WarmupHoldMS)*time.Millisecond); err != nil {
		return err
	}
	for _, b := range bk.boards {
		if err := b.StopNote(); err != nil {
			return err
		}
		if b.IsDrone() {
			// The drone keeps sounding after StopNote.
			if err := b.SetVolume(0); err != nil {
				return err
			}
		}
	}
	if err := sleepCtx(ctx, time.Duration(bk.cfg.QuietMS)*time.Millisecond); err != nil {
		return err
	}

	bk.ready.Store(true)
	bk.logger.Info("boards ready")
	return nil
}

// Shutdown silences the boards. A final shutdown also closes the
// serial ports.
func (bk *Bank) Shutdown(final bool) error {
	var firstErr error
	for _, b := range bk.boards {
		if err := b.StopNote(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if final {
		bk.ready.Store(false)
		bk.closeAll()
	}
	return firstErr
}

func (bk *Bank) openWithRetry(ctx context.Context, bc config.BoardConfig) (Port, error) {
	attempts := bk.cfg.OpenRetries
	if attempts <= 0 {
		attempts = 1
	}
	return retry.DoWithData(
		func() (Port, error) {
			return bk.opener(bc.Device, bc.Baud)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			bk.logger.Warn("serial open failed, retrying", "board", bc.Name, "attempt", n+1, "error", err)
		}),
	)
}

func (bk *Bank) closeAll() {
	for _, b := range bk.boards {
		if err := b.Close(); err != nil {
			bk.logger.Warn("failed to close serial port", "board", b.Name, "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
