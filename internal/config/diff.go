package config

import (
	"fmt"
	"slices"
)

// Changes describes what differs between two configs. Only settings that a
// running server applies without restart are reported individually; anything
// else lands in RestartRequired.
type Changes struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PacingChanged bool
	NewPacing     PacingConfig

	AutoPlayChanged bool
	NewAutoPlay     bool

	NarratorChanged bool

	// RestartRequired names the top-level sections whose changes only take
	// effect for the next game or after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return !c.LogLevelChanged && !c.PacingChanged && !c.AutoPlayChanged &&
		!c.NarratorChanged && len(c.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) Changes {
	var c Changes

	if old.Server.LogLevel != new.Server.LogLevel {
		c.LogLevelChanged = true
		c.NewLogLevel = new.Server.LogLevel
	}
	if old.Pacing != new.Pacing {
		c.PacingChanged = true
		c.NewPacing = new.Pacing
	}
	if old.Game.AutoPlayEnabled() != new.Game.AutoPlayEnabled() {
		c.AutoPlayChanged = true
		c.NewAutoPlay = new.Game.AutoPlayEnabled()
	}
	if old.Narrator != new.Narrator {
		c.NarratorChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat {
		c.RestartRequired = append(c.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		c.RestartRequired = append(c.RestartRequired, "providers")
	}
	if old.Game.Preset != new.Game.Preset || !slices.Equal(old.Game.Roles, new.Game.Roles) ||
		old.Game.HumanSeat != new.Game.HumanSeat || old.Game.Seed != new.Game.Seed {
		c.RestartRequired = append(c.RestartRequired, "game")
	}
	if !slices.Equal(old.Actors, new.Actors) {
		c.RestartRequired = append(c.RestartRequired, "actors")
	}
	if old.Audio != new.Audio {
		c.RestartRequired = append(c.RestartRequired, "audio")
	}
	if old.Archive != new.Archive {
		c.RestartRequired = append(c.RestartRequired, "archive")
	}
	if old.Debate != new.Debate {
		c.RestartRequired = append(c.RestartRequired, "debate")
	}
	return c
}

func providersEqual(a, b ProvidersConfig) bool {
	if !entryEqual(a.LLM, b.LLM) || !entryEqual(a.TTS, b.TTS) {
		return false
	}
	return slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual) &&
		slices.EqualFunc(a.TTSFallbacks, b.TTSFallbacks, entryEqual)
}

// entryEqual compares the scalar fields of two entries and the string form of
// their options.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}
