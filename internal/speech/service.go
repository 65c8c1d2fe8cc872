package speech

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/maltman23/LoungeLooker/internal/bus"
	"github.com/maltman23/LoungeLooker/internal/protocol"
)

// Service speaks phrases requested over the bus. Requests queue up and
// a single worker speaks them in order, so overlapping lyric phrases
// never talk over each other and the metronome never waits on the
// speech engine.
type Service struct {
	client  *bus.Client
	speaker Speaker
	logger  *slog.Logger

	queue   chan protocol.SpeechRequest
	sub     *nats.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

func NewService(client *bus.Client, speaker Speaker, logger *slog.Logger) *Service {
	return &Service{
		client:  client,
		speaker: speaker,
		logger:  logger.With("component", "speech"),
		queue:   make(chan protocol.SpeechRequest, 64),
	}
}

func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	sub, err := s.client.Subscribe(protocol.SubjectSpeechSay, func(msg *nats.Msg) {
		var req protocol.SpeechRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.logger.Warn("discarding malformed speech request", "error", err)
			return
		}
		select {
		case s.queue <- req:
		default:
			s.logger.Warn("speech queue full, dropping phrase", "text", req.Text)
		}
	})
	if err != nil {
		return err
	}
	s.sub = sub

	s.wg.Add(1)
	go s.run(ctx)
	s.running.Store(true)
	s.logger.Info("speech service started")
	return nil
}

// Running reports whether the worker is accepting requests.
func (s *Service) Running() bool { return s.running.Load() }

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.queue:
			s.speak(ctx, req)
		}
	}
}

func (s *Service) speak(ctx context.Context, req protocol.SpeechRequest) {
	err := s.speaker.Speak(ctx, req.Text)
	if err != nil {
		s.logger.Warn("failed to speak phrase", "text", req.Text, "error", err)
	}
	status := protocol.SpeechStatus{
		SessionID: req.SessionID,
		Text:      req.Text,
		Completed: err == nil,
		Timestamp: time.Now().UTC(),
	}
	if err := s.client.PublishJSON(protocol.SubjectSpeechDone, status); err != nil {
		s.logger.Warn("failed to publish speech status", "error", err)
	}
}

func (s *Service) Stop() {
	s.running.Store(false)
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if err := s.speaker.Close(); err != nil {
		s.logger.Warn("failed to close speaker", "error", err)
	}
	s.logger.Info("speech service stopped")
}
