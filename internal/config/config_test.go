package config

import (
	"testing"
	"time"
)

func TestDefaultRelay(t *testing.T) {
	cfg := DefaultRelay()
	if cfg.RoomTTL != 10*time.Minute {
		t.Errorf("expected 10m TTL, got %s", cfg.RoomTTL)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("expected 30s sweep, got %s", cfg.SweepInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestRelayFromEnv(t *testing.T) {
	t.Setenv("BEAM_LISTEN", "127.0.0.1:9999")
	t.Setenv("BEAM_ROOM_TTL", "2m")

	cfg, err := RelayFromEnv(DefaultRelay())
	if err != nil {
		t.Fatalf("RelayFromEnv failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9999" {
		t.Errorf("expected listen override, got %s", cfg.Listen)
	}
	if cfg.RoomTTL != 2*time.Minute {
		t.Errorf("expected 2m TTL, got %s", cfg.RoomTTL)
	}
}

func TestRelayFromEnvInvalid(t *testing.T) {
	t.Setenv("BEAM_ROOM_TTL", "soon")
	if _, err := RelayFromEnv(DefaultRelay()); err == nil {
		t.Fatal("expected error for unparsable TTL")
	}

	t.Setenv("BEAM_ROOM_TTL", "-1s")
	if _, err := RelayFromEnv(DefaultRelay()); err == nil {
		t.Fatal("expected error for negative TTL")
	}
}

func TestDefaultClientCopiesICEServers(t *testing.T) {
	cfg := DefaultClient()
	cfg.ICEServers[0] = "stun:example.invalid"
	if DefaultICEServers[0] == "stun:example.invalid" {
		t.Error("DefaultClient must not alias the package ICE server list")
	}
}

func TestClientFromEnv(t *testing.T) {
	t.Setenv("BEAM_RELAY_URL", "wss://relay.example/ws")
	t.Setenv("BEAM_BASE_URL", "")

	cfg := ClientFromEnv(DefaultClient())
	if cfg.RelayURL != "wss://relay.example/ws" {
		t.Errorf("expected relay override, got %s", cfg.RelayURL)
	}
	if cfg.BaseURL != DefaultClient().BaseURL {
		t.Errorf("empty BEAM_BASE_URL should keep the default, got %s", cfg.BaseURL)
	}
	if cfg.OutputDir != "." || cfg.Stream {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
