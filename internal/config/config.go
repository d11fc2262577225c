// Package config holds the relay and client configuration types.
package config

import (
	"fmt"
	"os"
	"time"
)

// Default STUN servers for ICE candidate gathering. No TURN: the tool only
// needs the relay for setup and never proxies file data.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// Relay stores the signaling server parameters.
type Relay struct {
	Listen        string        // address for the HTTP/WebSocket listener
	RoomTTL       time.Duration // fixed lifetime of a room, measured from creation
	SweepInterval time.Duration // how often expired rooms are collected
}

// DefaultRelay returns the relay defaults: rooms live 10 minutes and are
// swept every 30 seconds.
func DefaultRelay() Relay {
	return Relay{
		Listen:        ":3001",
		RoomTTL:       10 * time.Minute,
		SweepInterval: 30 * time.Second,
	}
}

// Client stores the parameters shared by the send and receive commands.
type Client struct {
	RelayURL   string   // WebSocket URL of the relay, e.g. ws://localhost:3001/ws
	BaseURL    string   // prefix of generated share links
	OutputDir  string   // receiver: where delivered files are written
	ICEServers []string // STUN/TURN URLs handed to the peer connection
	Stream     bool     // receiver: spool ciphertext to disk instead of memory
}

// DefaultClient returns the client defaults shared by send and receive.
func DefaultClient() Client {
	return Client{
		RelayURL:   "ws://localhost:3001/ws",
		BaseURL:    "http://localhost:3000",
		OutputDir:  ".",
		ICEServers: append([]string(nil), DefaultICEServers...),
	}
}

// RelayFromEnv overlays BEAM_LISTEN, BEAM_ROOM_TTL and BEAM_SWEEP_INTERVAL
// onto cfg.
func RelayFromEnv(cfg Relay) (Relay, error) {
	if v := os.Getenv("BEAM_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("BEAM_ROOM_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid BEAM_ROOM_TTL %q: %w", v, err)
		}
		cfg.RoomTTL = d
	}
	if v := os.Getenv("BEAM_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid BEAM_SWEEP_INTERVAL %q: %w", v, err)
		}
		cfg.SweepInterval = d
	}
	return cfg, cfg.Validate()
}

// ClientFromEnv overlays BEAM_RELAY_URL and BEAM_BASE_URL onto cfg.
func ClientFromEnv(cfg Client) Client {
	if v := os.Getenv("BEAM_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("BEAM_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	return cfg
}

// Validate rejects relay settings the registry cannot work with.
func (c Relay) Validate() error {
	if c.RoomTTL <= 0 {
		return fmt.Errorf("room TTL must be positive, got %s", c.RoomTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	return nil
}
