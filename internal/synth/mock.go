package synth

import "sync"

// MemoryPort is an in-memory Port for tests and for running the
// installation without boards attached. It records every write and
// every RTS transition.
type MemoryPort struct {
	mu     sync.Mutex
	writes []string
	rts    []bool
	closed bool
}

func NewMemoryPort() *MemoryPort {
	return &MemoryPort{}
}

func (p *MemoryPort) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, string(data))
	return nil
}

func (p *MemoryPort) SetRTS(level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rts = append(p.rts, level)
	return nil
}

func (p *MemoryPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Writes returns a copy of everything written so far.
func (p *MemoryPort) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.writes))
	copy(out, p.writes)
	return out
}

// RTS returns the recorded RTS transitions.
func (p *MemoryPort) RTS() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bool, len(p.rts))
	copy(out, p.rts)
	return out
}

// Closed reports whether Close was called.
func (p *MemoryPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Reset clears the recorded writes and transitions.
func (p *MemoryPort) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = nil
	p.rts = nil
}
