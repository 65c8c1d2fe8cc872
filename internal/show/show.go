package show

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/maltman23/LoungeLooker/internal/bus"
	"github.com/maltman23/LoungeLooker/internal/config"
	"github.com/maltman23/LoungeLooker/internal/eventstore"
	"github.com/maltman23/LoungeLooker/internal/protocol"
	"github.com/maltman23/LoungeLooker/internal/sequencer"
	"github.com/maltman23/LoungeLooker/internal/speech"
	"github.com/maltman23/LoungeLooker/internal/synth"
	"github.com/maltman23/LoungeLooker/internal/vision"
)

// Stage names the kiosk's phases, in the order a visitor sees them.
type Stage string

const (
	StageAttract   Stage = "attract"
	StageResetting Stage = "resetting"
	StageScanning  Stage = "scanning"
	StageReveal    Stage = "reveal"
	StagePlaying   Stage = "playing"
	StageThanks    Stage = "thanks"
)

// Status is a snapshot of the kiosk for the status endpoint.
type Status struct {
	Stage       Stage     `json:"stage"`
	SessionID   string    `json:"session_id,omitempty"`
	Face        string    `json:"face,omitempty"`
	Song        string    `json:"song,omitempty"`
	SongsPlayed int64     `json:"songs_played"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Show runs the installation's visitor loop: attract, reset the
// boards, scan the visitor's face, reveal the matched song, play it,
// thank them, repeat.
type Show struct {
	cfg       config.ShowConfig
	bank      *synth.Bank
	seq       *sequencer.Sequencer
	scanner   *vision.Scanner
	selector  *vision.Selector
	announcer *speech.BusAnnouncer
	store     *eventstore.Store
	bus       *bus.Client
	logger    *slog.Logger

	songCounter metric.Int64Counter

	mu     sync.RWMutex
	status Status
}

func New(
	cfg config.ShowConfig,
	bank *synth.Bank,
	seq *sequencer.Sequencer,
	scanner *vision.Scanner,
	selector *vision.Selector,
	announcer *speech.BusAnnouncer,
	store *eventstore.Store,
	busClient *bus.Client,
	logger *slog.Logger,
) *Show {
	s := &Show{
		cfg:       cfg,
		bank:      bank,
		seq:       seq,
		scanner:   scanner,
		selector:  selector,
		announcer: announcer,
		store:     store,
		bus:       busClient,
		logger:    logger.With("component", "show"),
	}
	meter := otel.Meter("github.com/maltman23/LoungeLooker/runtime")
	counter, err := meter.Int64Counter("loungelooker.songs.played",
		metric.WithDescription("Songs performed for visitors"))
	if err != nil {
		s.logger.Warn("failed to create song counter", "error", err)
	} else {
		s.songCounter = counter
	}
	return s
}

// Status returns the current kiosk snapshot.
func (s *Show) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run drives visitor cycles until the context ends or, with looping
// disabled, after a single cycle.
func (s *Show) Run(ctx context.Context) error {
	cold := true
	for {
		if err := s.cycle(ctx, cold); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("visitor cycle failed", "error", err)
		}
		cold = false
		if !s.cfg.Loop {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Show) cycle(ctx context.Context, cold bool) error {
	sessionID := uuid.NewString()
	s.announcer.SetSession(sessionID)

	s.enterStage(ctx, StageAttract, sessionID, "", "")
	s.logger.Info("LOUNGE LOOKER by Mitch Altman")
	if err := holdCtx(ctx, s.cfg.AttractHoldMS); err != nil {
		return err
	}

	s.enterStage(ctx, StageResetting, sessionID, "", "")
	s.logger.Info("resetting everything for the next consumer with unique desires, please enjoy waiting patiently")
	if err := s.bank.Init(ctx, cold); err != nil {
		return fmt.Errorf("init boards: %w", err)
	}

	s.enterStage(ctx, StageScanning, sessionID, "", "")
	s.logger.Info("we are about to calculate your desires and choose the perfect lounge song to fulfill them")
	match, err := s.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan visitor: %w", err)
	}
	s.publish(protocol.SubjectFaceMatch, protocol.FaceMatch{
		SessionID:  sessionID,
		Name:       match.Name,
		Confidence: match.Confidence,
		Frames:     match.Frames,
		Timestamp:  time.Now().UTC(),
	})
	s.journal(ctx, sessionID, "face.matched", match)

	chosen, random, err := s.selector.Choose(match.Name)
	if err != nil {
		return fmt.Errorf("choose song: %w", err)
	}
	if err := s.store.AppendSession(ctx, sessionID, match.Name, chosen.Slug); err != nil {
		s.logger.Warn("failed to record session", "error", err)
	}

	s.enterStage(ctx, StageReveal, sessionID, match.Name, chosen.Slug)
	s.logger.Info("song chosen for visitor",
		"face", match.Name, "song", chosen.Slug, "title", chosen.Title, "random", random)
	if err := holdCtx(ctx, s.cfg.RevealHoldMS); err != nil {
		return err
	}

	s.enterStage(ctx, StagePlaying, sessionID, match.Name, chosen.Slug)
	s.publish(protocol.SubjectPlayRequest, protocol.PlayRequest{
		SessionID: sessionID,
		Song:      chosen.Slug,
		Timestamp: time.Now().UTC(),
	})
	s.journal(ctx, sessionID, "song.started", map[string]string{"song": chosen.Slug})

	result, playErr := s.seq.Play(ctx, chosen)
	s.publish(protocol.SubjectPlaybackStatus, protocol.PlaybackStatus{
		SessionID:  sessionID,
		Song:       chosen.Slug,
		Completed:  playErr == nil,
		NoteCounts: result.NoteCounts,
		Timestamp:  time.Now().UTC(),
	})
	if playErr != nil {
		s.journal(ctx, sessionID, "song.aborted", map[string]string{"song": chosen.Slug, "error": playErr.Error()})
		if err := s.recoverBoards(ctx); err != nil {
			s.logger.Error("board recovery failed", "error", err)
		}
		return fmt.Errorf("play %s: %w", chosen.Slug, playErr)
	}
	s.journal(ctx, sessionID, "song.finished", result)
	if s.songCounter != nil {
		s.songCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("song", chosen.Slug),
			attribute.Bool("random", random),
		))
	}

	if err := s.bank.Shutdown(false); err != nil {
		s.logger.Warn("board shutdown reported errors", "error", err)
	}
	if err := holdCtx(ctx, s.cfg.CooldownHoldMS); err != nil {
		return err
	}

	s.enterStage(ctx, StageThanks, sessionID, match.Name, chosen.Slug)
	s.logger.Info("thank you for letting us care about your desires")
	if err := holdCtx(ctx, s.cfg.ThanksHoldMS); err != nil {
		return err
	}
	s.logger.Info("next consumer, please")
	return nil
}

// recoverBoards resets the bank after a failed performance. A talking
// board mid-note can wedge its menu state, and a warm reset clears it.
func (s *Show) recoverBoards(ctx context.Context) error {
	if err := s.bank.Shutdown(false); err != nil {
		s.logger.Warn("board shutdown reported errors", "error", err)
	}
	return s.bank.Init(ctx, false)
}

func (s *Show) enterStage(ctx context.Context, stage Stage, sessionID, face, songSlug string) {
	s.mu.Lock()
	played := s.status.SongsPlayed
	if stage == StageThanks {
		played++
	}
	s.status = Status{
		Stage:       stage,
		SessionID:   sessionID,
		Face:        face,
		Song:        songSlug,
		SongsPlayed: played,
		UpdatedAt:   time.Now().UTC(),
	}
	s.mu.Unlock()

	s.publish(protocol.SubjectShowState, protocol.ShowState{
		SessionID: sessionID,
		State:     string(stage),
		Song:      songSlug,
		Face:      face,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Show) publish(subject string, msg any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(subject, msg); err != nil {
		s.logger.Warn("failed to publish", "subject", subject, "error", err)
	}
}

func (s *Show) journal(ctx context.Context, sessionID, eventType string, payload any) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal journal payload", "type", eventType, "error", err)
		return
	}
	if err := s.store.AppendEvent(ctx, eventstore.Event{
		SessionID: sessionID,
		Type:      eventType,
		Payload:   data,
	}); err != nil {
		s.logger.Warn("failed to journal event", "type", eventType, "error", err)
	}
}

func holdCtx(ctx context.Context, ms int) error {
	if ms <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
