package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if len(cfg.Synths.Boards) != 3 {
		t.Fatalf("expected 3 default boards, got %d", len(cfg.Synths.Boards))
	}
	if cfg.Synths.Boards[2].Voice != "drone" {
		t.Fatalf("expected third board to be the drone, got %q", cfg.Synths.Boards[2].Voice)
	}
	if cfg.Metronome.TickMS != 50 {
		t.Fatalf("expected 50ms tick, got %d", cfg.Metronome.TickMS)
	}
	if cfg.Songbook.Matches["mitch"] != RandomMatch {
		t.Fatalf("expected mitch to map to a random song")
	}
	if cfg.Songbook.Matches["barry_manilow"] != "strangers-in-the-night" {
		t.Fatalf("unexpected match table: %v", cfg.Songbook.Matches["barry_manilow"])
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOOKER_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOOKER_BUS_USERNAME", "alice")
	t.Setenv("LOOKER_BUS_PASSWORD", "secret")
	t.Setenv("LOOKER_BUS_TLS_INSECURE", "true")
	t.Setenv("LOOKER_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOOKER_METRONOME_TICK_MS", "25")
	t.Setenv("LOOKER_VISION_MODE", "exec")
	t.Setenv("LOOKER_VISION_COMMAND", "facewatch --cascade haar.xml")
	t.Setenv("LOOKER_VISION_TOLERANCE", "0.6")
	t.Setenv("LOOKER_SPEECH_MODE", "exec")
	t.Setenv("LOOKER_SPEECH_COMMAND", "espeak -v en-us")
	t.Setenv("LOOKER_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("LOOKER_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOOKER_EVENT_STORE_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Metronome.TickMS != 25 {
		t.Fatalf("expected tick override, got %d", cfg.Metronome.TickMS)
	}
	if cfg.Vision.Mode != "exec" || cfg.Vision.Command == "" {
		t.Fatalf("expected vision exec override")
	}
	if cfg.Vision.Tolerance != 0.6 {
		t.Fatalf("expected tolerance override, got %f", cfg.Vision.Tolerance)
	}
	if cfg.Speech.Command != "espeak -v en-us" {
		t.Fatalf("expected speech command override, got %q", cfg.Speech.Command)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick", func(c *Config) { c.Metronome.TickMS = 0 }},
		{"bad vision mode", func(c *Config) { c.Vision.Mode = "haar" }},
		{"exec vision without command", func(c *Config) { c.Vision.Mode = "exec"; c.Vision.Command = "" }},
		{"bad tolerance", func(c *Config) { c.Vision.Tolerance = 1.5 }},
		{"duplicate board", func(c *Config) { c.Synths.Boards[1].Name = c.Synths.Boards[0].Name }},
		{"bad retention", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
		{"heartbeat timeout", func(c *Config) { c.Devices.HeartbeatTimeout = c.Devices.HeartbeatInterval }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
