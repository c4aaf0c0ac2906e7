package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/werewolf/internal/game"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment references
// in secrets, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandEnv(cfg *Config) {
	expand := func(e *ProviderEntry) {
		e.APIKey = os.ExpandEnv(e.APIKey)
		e.BaseURL = os.ExpandEnv(e.BaseURL)
	}
	expand(&cfg.Providers.LLM)
	expand(&cfg.Providers.TTS)
	for i := range cfg.Providers.LLMFallbacks {
		expand(&cfg.Providers.LLMFallbacks[i])
	}
	for i := range cfg.Providers.TTSFallbacks {
		expand(&cfg.Providers.TTSFallbacks[i])
	}
	cfg.Archive.DSN = os.ExpandEnv(cfg.Archive.DSN)
	cfg.Archive.URI = os.ExpandEnv(cfg.Archive.URI)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	for _, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for _, fb := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", fb.Name)
	}
	if len(cfg.Providers.TTSFallbacks) > 0 && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts.name"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; every AI seat will fall back to random decisions")
	}
	if cfg.Audio.Enabled && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("audio.enabled requires providers.tts.name"))
	}

	// Game
	seats := 0
	if len(cfg.Game.Roles) > 0 {
		if err := game.ValidateComposition(cfg.Game.Roles); err != nil {
			errs = append(errs, fmt.Errorf("game.roles: %w", err))
		}
		seats = len(cfg.Game.Roles)
	} else if cfg.Game.Preset != "" {
		roles, err := game.PresetComposition(cfg.Game.Preset)
		if err != nil {
			errs = append(errs, fmt.Errorf("game.preset: %w", err))
		}
		seats = len(roles)
	}
	if cfg.Game.HumanSeat < 0 || (seats > 0 && cfg.Game.HumanSeat > seats) {
		errs = append(errs, fmt.Errorf("game.human_seat %d is out of range 0..%d", cfg.Game.HumanSeat, seats))
	}

	// Actors
	names := make(map[string]int, len(cfg.Actors))
	for i, a := range cfg.Actors {
		prefix := fmt.Sprintf("actors[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, dup := names[a.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name %q duplicates actors[%d]", prefix, a.Name, prev))
		} else {
			names[a.Name] = i
		}
		errs = append(errs, validateVoice(prefix+".voice", a.Voice)...)
		if a.Temperature < 0 || a.Temperature > 2 {
			errs = append(errs, fmt.Errorf("%s.temperature %.2f must be between 0 and 2", prefix, a.Temperature))
		}
	}
	errs = append(errs, validateVoice("narrator.voice", cfg.Narrator.Voice)...)

	// Pacing
	p := cfg.Pacing
	if p.PollInterval < 0 || p.SpeechDelay < 0 || p.PhaseDelayMin < 0 || p.PhaseDelayMax < 0 || p.ReplayHiddenDelay < 0 {
		errs = append(errs, errors.New("pacing: durations must not be negative"))
	}
	if p.PhaseDelayMin > p.PhaseDelayMax {
		errs = append(errs, fmt.Errorf("pacing.phase_delay_min %s exceeds phase_delay_max %s", p.PhaseDelayMin, p.PhaseDelayMax))
	}

	// Audio
	if cfg.Audio.Cache != "" && !cfg.Audio.Cache.IsValid() {
		errs = append(errs, fmt.Errorf("audio.cache %q is invalid; valid values: memory, file, postgres", cfg.Audio.Cache))
	}
	if cfg.Audio.Cache == CachePostgres && cfg.Archive.DSN == "" {
		errs = append(errs, errors.New("audio.cache postgres requires archive.dsn"))
	}
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}

	// Archive
	switch cfg.Archive.Backend {
	case "", ArchiveMemory:
	case ArchiveFile:
		if cfg.Archive.Dir == "" {
			errs = append(errs, errors.New("archive.dir is required for the file backend"))
		}
	case ArchivePostgres:
		if cfg.Archive.DSN == "" {
			errs = append(errs, errors.New("archive.dsn is required for the postgres backend"))
		}
	case ArchiveMongo:
		if cfg.Archive.URI == "" {
			errs = append(errs, errors.New("archive.uri is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.backend %q is invalid; valid values: memory, file, postgres, mongo", cfg.Archive.Backend))
	}
	if cfg.Archive.Debounce < 0 {
		errs = append(errs, errors.New("archive.debounce must not be negative"))
	}

	// Debate
	if cfg.Debate.Rounds < 0 {
		errs = append(errs, fmt.Errorf("debate.rounds %d must not be negative", cfg.Debate.Rounds))
	}
	errs = append(errs, validateVoice("debate.host.voice", cfg.Debate.Host.Voice)...)
	errs = append(errs, validateVoice("debate.guest.voice", cfg.Debate.Guest.Voice)...)

	return errors.Join(errs...)
}

func validateVoice(field string, v game.Voice) []error {
	var errs []error
	if v.Speed != 0 && (v.Speed < 0.5 || v.Speed > 2.0) {
		errs = append(errs, fmt.Errorf("%s.speed_factor %.2f must be between 0.5 and 2.0", field, v.Speed))
	}
	if v.Provider != "" {
		validateProviderName("tts", v.Provider)
	}
	return errs
}

// validateProviderName logs a warning if name is not in the known list for kind.
// Empty names are silently ignored (provider not configured).
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if !slices.Contains(known, name) {
		slog.Warn("unknown provider name; it may not be registered", "kind", kind, "name", name, "known", known)
	}
}

// Ready reports whether the debate section is complete enough to run.
func (c DebateConfig) Ready() error {
	var errs []error
	if c.Topic == "" {
		errs = append(errs, errors.New("debate.topic is required"))
	}
	if c.Host.Name == "" {
		errs = append(errs, errors.New("debate.host.name is required"))
	}
	if c.Guest.Name == "" {
		errs = append(errs, errors.New("debate.guest.name is required"))
	}
	return errors.Join(errs...)
}
