package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LocaleChanged covers the UI locale and the timezone.
	LocaleChanged bool
	NewLocale     Locale
	NewTimezone   string

	TargetLanguageChanged bool
	NewTargetLanguage     string

	PromptsChanged      bool
	SystemPromptChanged bool

	// RestartRequired is set when a field changed that only takes effect
	// after a restart (providers, store, capture, listen address).
	RestartRequired bool
}

// Any reports whether anything hot-reloadable changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.LocaleChanged || d.TargetLanguageChanged ||
		d.PromptsChanged || d.SystemPromptChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.UI.Locale != new.UI.Locale || old.UI.Timezone != new.UI.Timezone {
		d.LocaleChanged = true
		d.NewLocale = new.UI.Locale
		d.NewTimezone = new.UI.Timezone
	}
	if old.UI.TargetLanguage != new.UI.TargetLanguage {
		d.TargetLanguageChanged = true
		d.NewTargetLanguage = new.UI.TargetLanguage
	}
	if old.Pipeline.Prompts != new.Pipeline.Prompts {
		d.PromptsChanged = true
	}
	if old.Assistant.SystemPrompt != new.Assistant.SystemPrompt {
		d.SystemPromptChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!providersEqual(old.Providers, new.Providers) ||
		old.Store != new.Store ||
		old.Capture != new.Capture {
		d.RestartRequired = true
	}
	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.AudioLLM, b.AudioLLM) &&
		entryEqual(a.TextLLM, b.TextLLM) &&
		entryEqual(a.ChatLLM, b.ChatLLM) &&
		entryEqual(a.STT, b.STT)
}

// entryEqual compares the identity of two entries. Options are not compared.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !entryEqual(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}
