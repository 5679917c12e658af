// Package config loads beacon's static YAML configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"beacon/pkg/logger"
)

// RakNetConfig bounds the reliable-UDP transport.
type RakNetConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	MTU            int    `yaml:"mtu"`
	SessionTimeout int    `yaml:"session_timeout_seconds"`
	MaxIncomingACK int    `yaml:"max_incoming_ack_ranges"`
}

// BedrockConfig controls the game-packet session layer.
type BedrockConfig struct {
	CompressionThreshold int  `yaml:"compression_threshold_bytes"`
	CompressionLevel     int  `yaml:"compression_level"`
	OnlineMode           bool `yaml:"online_mode"`
	MaxChunkRadius       int  `yaml:"max_chunk_radius"`
	// TrustedRootKeysBase64 holds base64 DER SubjectPublicKeyInfo entries
	// for the identity chain roots AcceptLogin will accept in online
	// mode (Mojang's published root keys, or a private deployment's own).
	TrustedRootKeysBase64 []string `yaml:"trusted_root_keys_base64"`
}

// NetherNetConfig controls the WebRTC alternate transport.
type NetherNetConfig struct {
	LANEnabled         bool   `yaml:"lan_enabled"`
	LANBroadcastAddr   string `yaml:"lan_broadcast_addr"`
	XboxEnabled        bool   `yaml:"xbox_enabled"`
	XboxTokenCachePath string `yaml:"xbox_token_cache_path"`
}

// ChunkStreamingConfig controls per-tick chunk delivery.
type ChunkStreamingConfig struct {
	ChunksPerTick  int `yaml:"chunks_per_tick"`
	OutboundQueue  int `yaml:"outbound_queue_size"`
}

// Config is beacon's top-level static configuration, loaded from a single
// YAML file at startup.
type Config struct {
	RakNet    RakNetConfig         `yaml:"raknet"`
	Bedrock   BedrockConfig        `yaml:"bedrock"`
	NetherNet NetherNetConfig      `yaml:"nethernet"`
	Chunks    ChunkStreamingConfig `yaml:"chunks"`
	Log       logger.Config        `yaml:"log"`
	Metrics   MetricsConfig        `yaml:"metrics"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// SessionTimeoutDuration returns RakNet.SessionTimeout as a time.Duration.
func (c RakNetConfig) SessionTimeoutDuration() time.Duration {
	return time.Duration(c.SessionTimeout) * time.Second
}

// Default returns the configuration applied when a field is left zero in
// the YAML file, mirroring the teacher's post-unmarshal defaulting.
func Default() Config {
	return Config{
		RakNet: RakNetConfig{
			ListenAddr:     "0.0.0.0:19132",
			MTU:            1400,
			SessionTimeout: 30,
			MaxIncomingACK: 4096,
		},
		Bedrock: BedrockConfig{
			CompressionThreshold: 256,
			CompressionLevel:     7,
			OnlineMode:           true,
			MaxChunkRadius:       32,
		},
		NetherNet: NetherNetConfig{
			LANEnabled:       true,
			LANBroadcastAddr: "255.255.255.255:7551",
			XboxEnabled:      false,
		},
		Chunks: ChunkStreamingConfig{
			ChunksPerTick: 4,
			OutboundQueue: 512,
		},
		Log:     logger.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true, ListenAddr: "127.0.0.1:9100"},
	}
}

// Load reads and parses the YAML file at path, applying Default() for any
// field left at its zero value.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)
	return cfg, nil
}

// applyDefaults fills in zero-valued fields that YAML left unset, the same
// post-unmarshal pattern the teacher's config loader uses.
func applyDefaults(cfg *Config) {
	defaults := Default()

	if cfg.RakNet.ListenAddr == "" {
		cfg.RakNet.ListenAddr = defaults.RakNet.ListenAddr
	}
	if cfg.RakNet.MTU == 0 {
		cfg.RakNet.MTU = defaults.RakNet.MTU
	}
	if cfg.RakNet.SessionTimeout == 0 {
		cfg.RakNet.SessionTimeout = defaults.RakNet.SessionTimeout
	}
	if cfg.RakNet.MaxIncomingACK == 0 {
		cfg.RakNet.MaxIncomingACK = defaults.RakNet.MaxIncomingACK
	}
	if cfg.Bedrock.CompressionLevel == 0 {
		cfg.Bedrock.CompressionLevel = defaults.Bedrock.CompressionLevel
	}
	if cfg.Bedrock.MaxChunkRadius == 0 {
		cfg.Bedrock.MaxChunkRadius = defaults.Bedrock.MaxChunkRadius
	}
	if cfg.NetherNet.LANBroadcastAddr == "" {
		cfg.NetherNet.LANBroadcastAddr = defaults.NetherNet.LANBroadcastAddr
	}
	if cfg.Chunks.ChunksPerTick == 0 {
		cfg.Chunks.ChunksPerTick = defaults.Chunks.ChunksPerTick
	}
	if cfg.Chunks.OutboundQueue == 0 {
		cfg.Chunks.OutboundQueue = defaults.Chunks.OutboundQueue
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = defaults.Log.Path
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = defaults.Metrics.ListenAddr
	}
}
