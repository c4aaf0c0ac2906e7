// Package config provides the configuration schema, loader, and provider registry
// for the werewolf server and CLI.
package config

import (
	"time"

	"github.com/MrWong99/werewolf/internal/game"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool { return f == LogFormatText || f == LogFormatJSON }

// ArchiveBackend selects where finished games are stored.
type ArchiveBackend string

const (
	ArchiveMemory   ArchiveBackend = "memory"
	ArchiveFile     ArchiveBackend = "file"
	ArchivePostgres ArchiveBackend = "postgres"
	ArchiveMongo    ArchiveBackend = "mongo"
)

// IsValid reports whether b is a recognised archive backend.
func (b ArchiveBackend) IsValid() bool {
	switch b {
	case ArchiveMemory, ArchiveFile, ArchivePostgres, ArchiveMongo:
		return true
	}
	return false
}

// CacheBackend selects where rendered audio clips are kept.
type CacheBackend string

const (
	CacheMemory   CacheBackend = "memory"
	CacheFile     CacheBackend = "file"
	CachePostgres CacheBackend = "postgres"
)

// IsValid reports whether b is a recognised cache backend.
func (b CacheBackend) IsValid() bool {
	switch b {
	case CacheMemory, CacheFile, CachePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Game      GameConfig      `yaml:"game"`
	Actors    []game.Actor    `yaml:"actors"`
	Narrator  NarratorConfig  `yaml:"narrator"`
	Pacing    PacingConfig    `yaml:"pacing"`
	Audio     AudioConfig     `yaml:"audio"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Debate    DebateConfig    `yaml:"debate"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`
}

// ProvidersConfig declares the text-generation and speech backends. Each
// entry's Name is looked up in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when LLM fails or its circuit is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	TTS ProviderEntry `yaml:"tts"`

	// TTSFallbacks voice lines when TTS fails. Voice ids are not carried
	// over; each fallback speaks with its default speaker.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. ${VAR} references are expanded.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// GameConfig selects the table.
type GameConfig struct {
	// Preset names a built-in composition ("9p", "12p"). Ignored when Roles is set.
	Preset string `yaml:"preset"`

	// Roles is a custom composition, one entry per seat.
	Roles []game.Role `yaml:"roles"`

	// HumanSeat marks one seat as human-controlled; 0 means all AI.
	HumanSeat int `yaml:"human_seat"`

	// Seed makes dealing and tie-breaks reproducible; 0 means random.
	Seed uint64 `yaml:"seed"`

	// AutoPlay starts the game advancing on its own. Default: true.
	AutoPlay *bool `yaml:"auto_play"`
}

// NarratorConfig configures the narrator's voice.
type NarratorConfig struct {
	Voice game.Voice `yaml:"voice"`
}

// PacingConfig controls how long the engine and the theater wait.
type PacingConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	SpeechDelay       time.Duration `yaml:"speech_delay"`
	PhaseDelayMin     time.Duration `yaml:"phase_delay_min"`
	PhaseDelayMax     time.Duration `yaml:"phase_delay_max"`
	ReplayHiddenDelay time.Duration `yaml:"replay_hidden_delay"`
}

// AudioConfig configures speech output.
type AudioConfig struct {
	// Enabled voices every line through the TTS provider. When false the
	// engine waits pacing.speech_delay per line instead.
	Enabled bool `yaml:"enabled"`

	// SampleRate is the rate every clip is normalised to before caching.
	SampleRate int `yaml:"sample_rate"`

	Cache CacheBackend `yaml:"cache"`

	// CacheDir is used by the file cache.
	CacheDir string `yaml:"cache_dir"`

	// CacheBudget caps the memory cache in bytes; 0 uses the default.
	CacheBudget int `yaml:"cache_budget"`
}

// ArchiveConfig configures the archive store.
type ArchiveConfig struct {
	Backend ArchiveBackend `yaml:"backend"`

	// Dir is used by the file backend.
	Dir string `yaml:"dir"`

	// DSN is the PostgreSQL connection string for the postgres backend and
	// the postgres audio cache.
	DSN string `yaml:"dsn"`

	// URI and Database address the mongo backend.
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`

	// Debounce drops a repeated save of the same game within this window.
	Debounce time.Duration `yaml:"debounce"`
}

// DebateConfig configures the podcast debate.
type DebateConfig struct {
	Topic  string        `yaml:"topic"`
	Rounds int           `yaml:"rounds"`
	Host   DebateSpeaker `yaml:"host"`
	Guest  DebateSpeaker `yaml:"guest"`
}

// DebateSpeaker is one debate participant.
type DebateSpeaker struct {
	game.Actor `yaml:",inline"`

	Stance string `yaml:"stance"`
}

// Defaults.
const (
	DefaultListenAddr = ":8080"
	DefaultSampleRate = 24000
	DefaultArchiveDir = "archives"
	DefaultCacheDir   = "audio-cache"
	DefaultDatabase   = "werewolf"
	DefaultRounds     = 3
)

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Game.Preset == "" && len(cfg.Game.Roles) == 0 {
		cfg.Game.Preset = game.Preset9
	}
	if cfg.Game.AutoPlay == nil {
		on := true
		cfg.Game.AutoPlay = &on
	}

	p := &cfg.Pacing
	if p.PollInterval == 0 {
		p.PollInterval = 500 * time.Millisecond
	}
	if p.SpeechDelay == 0 {
		p.SpeechDelay = 1500 * time.Millisecond
	}
	if p.PhaseDelayMin == 0 && p.PhaseDelayMax == 0 {
		p.PhaseDelayMin = 500 * time.Millisecond
		p.PhaseDelayMax = 1500 * time.Millisecond
	}
	if p.ReplayHiddenDelay == 0 {
		p.ReplayHiddenDelay = 50 * time.Millisecond
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Cache == "" {
		cfg.Audio.Cache = CacheMemory
	}
	if cfg.Audio.Cache == CacheFile && cfg.Audio.CacheDir == "" {
		cfg.Audio.CacheDir = DefaultCacheDir
	}

	if cfg.Archive.Backend == "" {
		cfg.Archive.Backend = ArchiveFile
	}
	if cfg.Archive.Backend == ArchiveFile && cfg.Archive.Dir == "" {
		cfg.Archive.Dir = DefaultArchiveDir
	}
	if cfg.Archive.Backend == ArchiveMongo && cfg.Archive.Database == "" {
		cfg.Archive.Database = DefaultDatabase
	}
	if cfg.Archive.Debounce == 0 {
		cfg.Archive.Debounce = 2 * time.Second
	}

	if cfg.Debate.Rounds == 0 {
		cfg.Debate.Rounds = DefaultRounds
	}
}

// AutoPlayEnabled returns the configured auto-play flag, true when unset.
func (g GameConfig) AutoPlayEnabled() bool { return g.AutoPlay == nil || *g.AutoPlay }

// Composition returns the configured role list.
func (g GameConfig) Composition() ([]game.Role, error) {
	if len(g.Roles) > 0 {
		return append([]game.Role(nil), g.Roles...), nil
	}
	return game.PresetComposition(g.Preset)
}
