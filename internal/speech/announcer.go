package speech

import (
	"context"
	"sync"

	"github.com/maltman23/LoungeLooker/internal/bus"
	"github.com/maltman23/LoungeLooker/internal/protocol"
)

// BusAnnouncer hands lyric phrases to the speech service over the bus.
// Publishing returns immediately, which keeps the metronome on time
// while the phrase is spoken.
type BusAnnouncer struct {
	client *bus.Client
	voice  string

	mu      sync.Mutex
	session string
}

func NewBusAnnouncer(client *bus.Client, voice string) *BusAnnouncer {
	return &BusAnnouncer{client: client, voice: voice}
}

// SetSession tags subsequent phrases with the visitor session.
func (a *BusAnnouncer) SetSession(id string) {
	a.mu.Lock()
	a.session = id
	a.mu.Unlock()
}

func (a *BusAnnouncer) Say(ctx context.Context, phrase string) error {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	return a.client.PublishJSON(protocol.SubjectSpeechSay, protocol.SpeechRequest{
		SessionID: session,
		Text:      phrase,
		Voice:     a.voice,
	})
}
