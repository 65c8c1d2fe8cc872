package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Synths      SynthsConfig     `yaml:"synths"`
	Metronome   MetronomeConfig  `yaml:"metronome"`
	Vision      VisionConfig     `yaml:"vision"`
	Speech      SpeechConfig     `yaml:"speech"`
	Songbook    SongbookConfig   `yaml:"songbook"`
	Show        ShowConfig       `yaml:"show"`
	Devices     DevicesConfig    `yaml:"devices"`
	EventStore  EventStoreConfig `yaml:"event_store"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// BoardConfig describes one ArduTouch board on a USB-serial link.
type BoardConfig struct {
	Name   string `yaml:"name"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// Voice hints playback behavior: "drone" voices are muted on rests
	// and faded out at end of song instead of cut.
	Voice string `yaml:"voice"`
	// WarmupNote/WarmupOctave/WarmupVolume describe the quiet note played
	// on init, since the first note after a board reset is an anomaly.
	WarmupNote   string `yaml:"warmup_note"`
	WarmupOctave int    `yaml:"warmup_octave"`
	WarmupVolume int    `yaml:"warmup_volume"`
}

type SynthsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Boards        []BoardConfig `yaml:"boards"`
	OpenSettleMS  int           `yaml:"open_settle_ms"`
	ResetSettleMS int           `yaml:"reset_settle_ms"`
	ResetWaitMS   int           `yaml:"reset_wait_ms"`
	WarmupHoldMS  int           `yaml:"warmup_hold_ms"`
	QuietMS       int           `yaml:"quiet_ms"`
	OpenRetries   int           `yaml:"open_retries"`
}

type MetronomeConfig struct {
	TickMS int `yaml:"tick_ms"`
}

type VisionConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Mode           string  `yaml:"mode"` // mock, exec
	Command        string  `yaml:"command"`
	Tolerance      float64 `yaml:"tolerance"`
	DebounceFrames int     `yaml:"debounce_frames"`
	ScanTimeoutMS  int     `yaml:"scan_timeout_ms"`
	MockName       string  `yaml:"mock_name"`
}

type SpeechConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
	Voice   string `yaml:"voice"`
}

type SongbookConfig struct {
	Directory string            `yaml:"directory"`
	Matches   map[string]string `yaml:"matches"`
}

type ShowConfig struct {
	Loop           bool `yaml:"loop"`
	AttractHoldMS  int  `yaml:"attract_hold_ms"`
	RevealHoldMS   int  `yaml:"reveal_hold_ms"`
	CooldownHoldMS int  `yaml:"cooldown_hold_ms"`
	ThanksHoldMS   int  `yaml:"thanks_hold_ms"`
}

type DevicesConfig struct {
	ID                string `yaml:"id"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// RandomMatch marks a match-table entry that picks a random song.
const RandomMatch = "random"

func Default() Config {
	return Config{
		RuntimeName: "loungelooker",
		Environment: "installation",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Synths: SynthsConfig{
			Enabled: true,
			Boards: []BoardConfig{
				{Name: "thick", Device: "/dev/ttyUSB0", Baud: 115200, Voice: "bass", WarmupNote: "D", WarmupOctave: 3, WarmupVolume: 20},
				{Name: "hocus", Device: "/dev/ttyUSB1", Baud: 115200, Voice: "melody", WarmupNote: "G", WarmupOctave: 3, WarmupVolume: 5},
				{Name: "dronetic", Device: "/dev/ttyUSB2", Baud: 115200, Voice: "drone", WarmupNote: "G", WarmupOctave: 2, WarmupVolume: 10},
			},
			OpenSettleMS:  2000,
			ResetSettleMS: 100,
			ResetWaitMS:   3000,
			WarmupHoldMS:  3000,
			QuietMS:       1000,
			OpenRetries:   3,
		},
		Metronome: MetronomeConfig{
			TickMS: 50,
		},
		Vision: VisionConfig{
			Enabled:        true,
			Mode:           "mock",
			Tolerance:      0.73,
			DebounceFrames: 20,
			ScanTimeoutMS:  120000,
			MockName:       "Unknown",
		},
		Speech: SpeechConfig{
			Enabled: true,
			Mode:    "mock",
			Command: "espeak",
		},
		Songbook: SongbookConfig{
			Directory: "./songs",
			Matches:   defaultMatches(),
		},
		Show: ShowConfig{
			Loop:           true,
			AttractHoldMS:  5000,
			RevealHoldMS:   6000,
			CooldownHoldMS: 2000,
			ThanksHoldMS:   5000,
		},
		Devices: DevicesConfig{
			ID:                "loungelooker-1",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loungelooker-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

// defaultMatches maps gallery names to songs. Names mapped to "random"
// (and any name missing from the table) draw a random song from the
// songbook.
func defaultMatches() map[string]string {
	return map[string]string{
		"adrian":            "my-way",
		"ali_macgraw":       "moon-river",
		"barry_manilow":     "strangers-in-the-night",
		"bert_kaempfert":    "love-story",
		"billy_joel":        "this-guys-in-love",
		"catherine_deneuve": "my-way",
		"claude_ciari":      "moon-river",
		"dianna_ross":       "strangers-in-the-night",
		"frank_sinatra":     "love-story",
		"henry_mancini":     "this-guys-in-love",
		"herb_alpert":       "my-way",
		"ian_malcolm":       "moon-river",
		"michel_legrand":    "strangers-in-the-night",
		"mitch":             RandomMatch,
		"morris_albert":     "love-story",
		"robert_kool_bell":  "this-guys-in-love",
		"sandra_dee":        "my-way",
		"walter_wanderley":  "moon-river",
		"Unknown":           RandomMatch,
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOOKER_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOOKER_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOOKER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOOKER_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOOKER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOOKER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOOKER_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOOKER_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOOKER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOOKER_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOOKER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOOKER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOOKER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOOKER_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOOKER_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOOKER_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Synths.Enabled, "LOOKER_SYNTHS_ENABLED")
	overrideInt(&cfg.Synths.OpenSettleMS, "LOOKER_SYNTHS_OPEN_SETTLE_MS")
	overrideInt(&cfg.Synths.ResetSettleMS, "LOOKER_SYNTHS_RESET_SETTLE_MS")
	overrideInt(&cfg.Synths.ResetWaitMS, "LOOKER_SYNTHS_RESET_WAIT_MS")
	overrideInt(&cfg.Synths.WarmupHoldMS, "LOOKER_SYNTHS_WARMUP_HOLD_MS")
	overrideInt(&cfg.Synths.QuietMS, "LOOKER_SYNTHS_QUIET_MS")
	overrideInt(&cfg.Synths.OpenRetries, "LOOKER_SYNTHS_OPEN_RETRIES")
	overrideInt(&cfg.Metronome.TickMS, "LOOKER_METRONOME_TICK_MS")
	overrideBool(&cfg.Vision.Enabled, "LOOKER_VISION_ENABLED")
	overrideString(&cfg.Vision.Mode, "LOOKER_VISION_MODE")
	overrideString(&cfg.Vision.Command, "LOOKER_VISION_COMMAND")
	overrideFloat(&cfg.Vision.Tolerance, "LOOKER_VISION_TOLERANCE")
	overrideInt(&cfg.Vision.DebounceFrames, "LOOKER_VISION_DEBOUNCE_FRAMES")
	overrideInt(&cfg.Vision.ScanTimeoutMS, "LOOKER_VISION_SCAN_TIMEOUT_MS")
	overrideString(&cfg.Vision.MockName, "LOOKER_VISION_MOCK_NAME")
	overrideBool(&cfg.Speech.Enabled, "LOOKER_SPEECH_ENABLED")
	overrideString(&cfg.Speech.Mode, "LOOKER_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "LOOKER_SPEECH_COMMAND")
	overrideString(&cfg.Speech.Voice, "LOOKER_SPEECH_VOICE")
	overrideString(&cfg.Songbook.Directory, "LOOKER_SONGBOOK_DIRECTORY")
	overrideBool(&cfg.Show.Loop, "LOOKER_SHOW_LOOP")
	overrideInt(&cfg.Show.AttractHoldMS, "LOOKER_SHOW_ATTRACT_HOLD_MS")
	overrideInt(&cfg.Show.RevealHoldMS, "LOOKER_SHOW_REVEAL_HOLD_MS")
	overrideInt(&cfg.Show.CooldownHoldMS, "LOOKER_SHOW_COOLDOWN_HOLD_MS")
	overrideInt(&cfg.Show.ThanksHoldMS, "LOOKER_SHOW_THANKS_HOLD_MS")
	overrideString(&cfg.Devices.ID, "LOOKER_DEVICES_ID")
	overrideInt(&cfg.Devices.HeartbeatInterval, "LOOKER_DEVICES_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Devices.HeartbeatTimeout, "LOOKER_DEVICES_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOOKER_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOOKER_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOOKER_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOOKER_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOOKER_EVENT_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Synths.Enabled {
		if len(cfg.Synths.Boards) == 0 {
			return errors.New("synths.boards must not be empty when synths are enabled")
		}
		seen := make(map[string]bool, len(cfg.Synths.Boards))
		for _, b := range cfg.Synths.Boards {
			if b.Name == "" {
				return errors.New("synths.boards entries must have a name")
			}
			if seen[b.Name] {
				return fmt.Errorf("synths.boards name %q duplicated", b.Name)
			}
			seen[b.Name] = true
			if b.Device == "" {
				return fmt.Errorf("synths.boards %q must have a device", b.Name)
			}
			if b.Baud <= 0 {
				return fmt.Errorf("synths.boards %q must have a positive baud rate", b.Name)
			}
		}
		if cfg.Synths.ResetSettleMS <= 0 {
			return errors.New("synths.reset_settle_ms must be positive")
		}
	}
	if cfg.Metronome.TickMS <= 0 {
		return errors.New("metronome.tick_ms must be positive")
	}
	if cfg.Vision.Enabled {
		switch cfg.Vision.Mode {
		case "mock", "exec":
		default:
			return errors.New("vision.mode must be one of mock|exec")
		}
		if cfg.Vision.Mode == "exec" && cfg.Vision.Command == "" {
			return errors.New("vision.command must be set when mode=exec")
		}
		if cfg.Vision.Tolerance <= 0 || cfg.Vision.Tolerance > 1 {
			return errors.New("vision.tolerance must be in (0, 1]")
		}
		if cfg.Vision.DebounceFrames <= 0 {
			return errors.New("vision.debounce_frames must be positive")
		}
	}
	if cfg.Speech.Enabled {
		switch cfg.Speech.Mode {
		case "mock", "exec":
		default:
			return errors.New("speech.mode must be one of mock|exec")
		}
		if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
	}
	if cfg.Songbook.Directory == "" {
		return errors.New("songbook.directory must not be empty")
	}
	if cfg.Devices.ID == "" {
		return errors.New("devices.id must not be empty")
	}
	if cfg.Devices.HeartbeatInterval <= 0 {
		return errors.New("devices.heartbeat_interval_ms must be positive")
	}
	if cfg.Devices.HeartbeatTimeout <= cfg.Devices.HeartbeatInterval {
		return errors.New("devices.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	return nil
}
