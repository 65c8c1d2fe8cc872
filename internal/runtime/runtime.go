package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maltman23/LoungeLooker/internal/bus"
	"github.com/maltman23/LoungeLooker/internal/config"
	"github.com/maltman23/LoungeLooker/internal/devices"
	"github.com/maltman23/LoungeLooker/internal/eventstore"
	"github.com/maltman23/LoungeLooker/internal/natsserver"
	"github.com/maltman23/LoungeLooker/internal/sequencer"
	"github.com/maltman23/LoungeLooker/internal/show"
	"github.com/maltman23/LoungeLooker/internal/song"
	"github.com/maltman23/LoungeLooker/internal/speech"
	"github.com/maltman23/LoungeLooker/internal/synth"
	"github.com/maltman23/LoungeLooker/internal/vision"
)

// Runtime assembles the whole installation: bus, songbook, boards,
// vision, speech, the show loop, and the HTTP surface.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error
	natsServer  *natsserver.EmbeddedServer
	busClient   *bus.Client
	store       *eventstore.Store
	bank        *synth.Bank
	registry    *devices.Registry
	speechSvc   *speech.Service
	show        *show.Show

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the installation up and blocks until ctx ends, then
// tears everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		srv, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.natsServer = srv
		busCfg.Servers = []string{srv.ClientURL()}
	}
	r.busClient, err = bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	r.store, err = eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}

	library, err := song.LoadDir(r.cfg.Songbook.Directory)
	if err != nil {
		return fmt.Errorf("failed to load songbook: %w", err)
	}
	r.logger.Info("songbook loaded",
		slog.String("directory", r.cfg.Songbook.Directory),
		slog.Int("songs", library.Len()))

	var opener synth.PortOpener
	if !r.cfg.Synths.Enabled {
		// Rehearsal mode: every board write lands in memory.
		r.logger.Warn("synth boards disabled, using memory ports")
		opener = func(string, int) (synth.Port, error) {
			return synth.NewMemoryPort(), nil
		}
	}
	r.bank = synth.NewBank(r.cfg.Synths, opener, r.logger)

	speaker, err := r.buildSpeaker()
	if err != nil {
		return err
	}
	r.speechSvc = speech.NewService(r.busClient, speaker, r.logger)
	if err := r.speechSvc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start speech service: %w", err)
	}

	recognizer, err := r.buildRecognizer()
	if err != nil {
		return err
	}
	scanner := vision.NewScanner(recognizer, r.cfg.Vision.DebounceFrames,
		time.Duration(r.cfg.Vision.ScanTimeoutMS)*time.Millisecond, r.logger)
	selector, err := vision.NewSelector(r.cfg.Songbook.Matches, library, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build selector: %w", err)
	}

	announcer := speech.NewBusAnnouncer(r.busClient, r.cfg.Speech.Voice)
	seq := sequencer.New(r.bank, announcer,
		time.Duration(r.cfg.Metronome.TickMS)*time.Millisecond, r.logger)

	r.registry = devices.NewRegistry(r.cfg.Devices, r.busClient, r.logger)
	r.registry.Register("bus", "broker", r.busClient.Healthy)
	for _, bc := range r.cfg.Synths.Boards {
		r.registry.Register(bc.Name, "synth", r.bank.Ready)
	}
	r.registry.Register("camera", "vision", scanner.Healthy)
	r.registry.Register("speech", "speaker", r.speechSvc.Running)
	if err := r.registry.Start(ctx); err != nil {
		return fmt.Errorf("failed to start device registry: %w", err)
	}

	r.show = show.New(r.cfg.Show, r.bank, seq, scanner, selector, announcer, r.store, r.busClient, r.logger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.show.Run(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("show loop ended", slog.String("error", err.Error()))
		}
		if !r.cfg.Show.Loop {
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/status", r.handleStatus)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.speechSvc.Stop()
	r.registry.Close()
	if err := r.bank.Shutdown(true); err != nil {
		r.logger.Error("board shutdown error", slog.String("error", err.Error()))
	}
	if err := recognizer.Close(); err != nil {
		r.logger.Error("recognizer close error", slog.String("error", err.Error()))
	}
	if err := r.store.Close(); err != nil {
		r.logger.Error("event store close error", slog.String("error", err.Error()))
	}
	r.busClient.Close()
	r.natsServer.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildSpeaker() (speech.Speaker, error) {
	if !r.cfg.Speech.Enabled || r.cfg.Speech.Mode == "mock" {
		return speech.NewMockSpeaker(), nil
	}
	speaker, err := speech.NewExecSpeaker(r.cfg.Speech.Command, r.cfg.Speech.Voice, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build speaker: %w", err)
	}
	return speaker, nil
}

func (r *Runtime) buildRecognizer() (vision.Recognizer, error) {
	if !r.cfg.Vision.Enabled || r.cfg.Vision.Mode == "mock" {
		return vision.NewMockRecognizer(r.cfg.Vision.MockName), nil
	}
	recognizer, err := vision.NewExecRecognizer(r.cfg.Vision.Command, r.cfg.Vision.Tolerance, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build recognizer: %w", err)
	}
	return recognizer, nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleStatus(w http.ResponseWriter, req *http.Request) {
	sessions, err := r.store.RecentSessions(req.Context(), 10)
	if err != nil {
		r.logger.Warn("failed to list recent sessions", slog.String("error", err.Error()))
	}
	payload := struct {
		Show     show.Status          `json:"show"`
		Devices  []devices.DeviceInfo `json:"devices"`
		Sessions []eventstore.Session `json:"recent_sessions,omitempty"`
	}{
		Show:     r.show.Status(),
		Devices:  r.registry.Snapshot(),
		Sessions: sessions,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Warn("failed to encode status", slog.String("error", err.Error()))
	}
}
