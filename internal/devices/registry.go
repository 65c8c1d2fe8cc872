package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/maltman23/LoungeLooker/internal/bus"
	"github.com/maltman23/LoungeLooker/internal/config"
	"github.com/maltman23/LoungeLooker/internal/protocol"
)

// Probe reports whether a piece of the installation's hardware is
// currently usable.
type Probe func() bool

// DeviceInfo is the tracked state of one device: a synth board's
// serial link, the camera, the speech engine.
type DeviceInfo struct {
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Healthy  bool      `json:"healthy"`
	LastSeen time.Time `json:"last_seen"`
}

type announceMessage struct {
	InstallID string       `json:"install_id"`
	Devices   []DeviceInfo `json:"devices"`
	Timestamp time.Time    `json:"timestamp"`
}

type heartbeatMessage struct {
	InstallID string       `json:"install_id"`
	Devices   []DeviceInfo `json:"devices"`
	Timestamp time.Time    `json:"timestamp"`
}

type probeEntry struct {
	name  string
	kind  string
	probe Probe
}

// Registry probes the installation's devices on a heartbeat, tracks
// their health, and publishes the result on the bus so sibling
// installations (and the status endpoint) can see it.
type Registry struct {
	cfg    config.DevicesConfig
	log    *slog.Logger
	bus    *bus.Client
	cancel context.CancelFunc
	subs   []*nats.Subscription

	mu      sync.RWMutex
	probes  []probeEntry
	devices map[string]*DeviceInfo
}

func NewRegistry(cfg config.DevicesConfig, busClient *bus.Client, log *slog.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		log:     log.With(slog.String("component", "devices")),
		bus:     busClient,
		devices: make(map[string]*DeviceInfo),
	}
}

// Register adds a device probe. Must happen before Start.
func (r *Registry) Register(name, kind string, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, probeEntry{name: name, kind: kind, probe: probe})
	r.devices[name] = &DeviceInfo{Name: name, Kind: kind}
}

// Start begins the heartbeat and remote tracking.
func (r *Registry) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	if err := r.subscribe(); err != nil {
		r.cancel()
		return err
	}

	r.probeAll(time.Now().UTC())
	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce devices", slog.String("error", err.Error()))
	}

	go r.runHeartbeat(ctx)
	go r.monitorStale(ctx)
	return nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

func (r *Registry) subscribe() error {
	announceSub, err := r.bus.Subscribe(protocol.SubjectDeviceAnnounce, r.handleRemote)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := r.bus.Subscribe(protocol.SubjectDeviceBeat+".*", r.handleRemote)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)
	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(r.cfg.HeartbeatInterval) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.probeAll(now.UTC())
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) monitorStale(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.expireStale()
		}
	}
}

func (r *Registry) probeAll(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.probes {
		dev := r.devices[entry.name]
		healthy := entry.probe()
		if dev.Healthy && !healthy {
			r.log.Warn("device went unhealthy", slog.String("device", entry.name), slog.String("kind", entry.kind))
		}
		dev.Healthy = healthy
		dev.LastSeen = now
	}
}

func (r *Registry) expireStale() {
	r.mu.Lock()
	defer r.mu.Unlock()
	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := time.Now()
	for _, dev := range r.devices {
		if dev.Healthy && now.Sub(dev.LastSeen) > timeout {
			dev.Healthy = false
			r.log.Warn("device heartbeat stale", slog.String("device", dev.Name))
		}
	}
}

func (r *Registry) announce() error {
	msg := announceMessage{
		InstallID: r.cfg.ID,
		Devices:   r.Snapshot(),
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.bus.Conn().Publish(protocol.SubjectDeviceAnnounce, payload)
}

func (r *Registry) publishHeartbeat() error {
	msg := heartbeatMessage{
		InstallID: r.cfg.ID,
		Devices:   r.Snapshot(),
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", protocol.SubjectDeviceBeat, r.cfg.ID)
	return r.bus.Conn().Publish(subject, payload)
}

// handleRemote folds device reports from sibling installations into
// the registry, namespaced by install id.
func (r *Registry) handleRemote(msg *nats.Msg) {
	var hb heartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid device message", slog.String("error", err.Error()))
		return
	}
	if hb.InstallID == "" || hb.InstallID == r.cfg.ID {
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dev := range hb.Devices {
		key := hb.InstallID + "/" + dev.Name
		tracked, ok := r.devices[key]
		if !ok {
			tracked = &DeviceInfo{Name: key, Kind: dev.Kind}
			r.devices[key] = tracked
		}
		tracked.Healthy = dev.Healthy
		tracked.LastSeen = hb.Timestamp
	}
}

// Healthy reports whether every local device probe passes.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.probes {
		if dev, ok := r.devices[entry.name]; !ok || !dev.Healthy {
			return false
		}
	}
	return true
}

// Snapshot returns the current device states.
func (r *Registry) Snapshot() []DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceInfo, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, *dev)
	}
	return out
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/maltman23/LoungeLooker/runtime")
	known, err := meter.Int64ObservableGauge("loungelooker.devices.known",
		metric.WithDescription("Number of tracked devices"))
	if err != nil {
		return err
	}
	healthy, err := meter.Int64ObservableGauge("loungelooker.devices.healthy",
		metric.WithDescription("Number of healthy devices"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		total, up := r.counts()
		obs.ObserveInt64(known, total)
		obs.ObserveInt64(healthy, up)
		return nil
	}, known, healthy)
	return err
}

func (r *Registry) counts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total, up int64
	for _, dev := range r.devices {
		total++
		if dev.Healthy {
			up++
		}
	}
	return total, up
}
