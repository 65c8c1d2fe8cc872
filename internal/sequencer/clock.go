package sequencer

import "time"

// Clock delivers metronome ticks. The default clock is a wall-time
// ticker; installations clocked by external hardware can supply their
// own.
type Clock interface {
	C() <-chan time.Time
	Stop()
}

// ClockFactory builds the clock for one playback run.
type ClockFactory func(interval time.Duration) Clock

type tickerClock struct {
	ticker *time.Ticker
}

// NewTickerClock returns a Clock backed by time.Ticker.
func NewTickerClock(interval time.Duration) Clock {
	return &tickerClock{ticker: time.NewTicker(interval)}
}

func (c *tickerClock) C() <-chan time.Time { return c.ticker.C }

func (c *tickerClock) Stop() { c.ticker.Stop() }

// ManualClock is a hand-cranked Clock for tests.
type ManualClock struct {
	ch chan time.Time
}

func NewManualClock() *ManualClock {
	return &ManualClock{ch: make(chan time.Time)}
}

func (c *ManualClock) C() <-chan time.Time { return c.ch }

func (c *ManualClock) Stop() {}

// Tick delivers one tick and blocks until it is consumed.
func (c *ManualClock) Tick() { c.ch <- time.Now() }

// Chan exposes the tick channel for select-based test drivers.
func (c *ManualClock) Chan() chan time.Time { return c.ch }
