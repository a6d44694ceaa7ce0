// Package config provides the configuration schema and loader for the
// Cadence scoring service.
package config

// LogLevel controls log verbosity for the Cadence server.
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

// Config is the root configuration structure for Cadence.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	ASR     ASRConfig     `yaml:"asr"`
	Judge   JudgeConfig   `yaml:"judge"`
	Engines EnginesConfig `yaml:"engines"`
	Scoring ScoringConfig `yaml:"scoring"`
	Store   StoreConfig   `yaml:"store"`
	Workers WorkersConfig `yaml:"workers"`
}

// ServerConfig holds network and logging settings for the Cadence server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AudioDir is where uploaded recordings are stored. Empty means
	// "data/audio".
	AudioDir string `yaml:"audio_dir"`
}

// ASRConfig configures the local speech recogniser used by the heuristic
// and judge engines.
type ASRConfig struct {
	// ModelPath is the path to the whisper.cpp model file (.bin). Empty
	// disables local recognition.
	ModelPath string `yaml:"model_path"`

	// Language is the default BCP 47 tag, e.g. "en". Empty means
	// auto-detect.
	Language string `yaml:"language"`
}

// JudgeConfig selects the language model behind the multimodal-judge engine
// and the optional feedback phraser.
type JudgeConfig struct {
	// Provider is one of: "openai", "anthropic", "gemini", "ollama",
	// "deepseek", "mistral", "groq", "llamacpp", "llamafile". Empty
	// disables the judge engine.
	Provider string `yaml:"provider"`

	// APIKey is the provider credential. Falls back to the provider's
	// environment variable when empty.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// PhraseFeedback rewrites template feedback through the same model.
	PhraseFeedback bool `yaml:"phrase_feedback"`
}

// EnginesConfig declares which scoring engines exist and how routing walks
// them.
type EnginesConfig struct {
	// Preference is the engine order tried for clean audio, best first.
	// Empty uses the built-in default order.
	Preference []string `yaml:"preference"`

	// Forced configures the forced-alignment service client.
	Forced ForcedConfig `yaml:"forced"`

	// CloudA and CloudB configure the two cloud assessment providers.
	CloudA CloudConfig `yaml:"cloud_a"`
	CloudB CloudConfig `yaml:"cloud_b"`
}

// ForcedConfig holds the forced-alignment service settings.
type ForcedConfig struct {
	// Endpoint is the alignment URL (e.g., "http://align:8085/v1/align").
	// Empty disables the engine.
	Endpoint string `yaml:"endpoint"`
}

// CloudConfig holds one cloud assessment provider's settings.
type CloudConfig struct {
	// Endpoint is the wss:// assessment URL. Empty disables the engine.
	Endpoint string `yaml:"endpoint"`

	// Keys are the API credentials, rotated on rejection.
	Keys []string `yaml:"keys"`

	// Model selects the provider's model tier.
	Model string `yaml:"model"`
}

// ScoringConfig tunes the score normalisation layer.
type ScoringConfig struct {
	// GOPSlope and GOPCenter parameterise the logistic mapping from raw
	// goodness-of-pronunciation values to scores. Zero values use the
	// built-in defaults.
	GOPSlope  float64 `yaml:"gop_slope"`
	GOPCenter float64 `yaml:"gop_center"`

	// CalibrationTrigger and CalibrationTarget tune the adaptive boost the
	// judge engine applies to harshly scored results. Zero values use 60
	// and 68.
	CalibrationTrigger float64 `yaml:"calibration_trigger"`
	CalibrationTarget  float64 `yaml:"calibration_target"`

	// RerouteMissingRatio is the missing-word ratio above which a
	// precision engine's result is re-routed to the heuristic engine.
	// Zero means 0.25.
	RerouteMissingRatio float64 `yaml:"reroute_missing_ratio"`
}

// StoreConfig selects the submission store.
type StoreConfig struct {
	// DSN is the PostgreSQL connection string. Empty selects the in-memory
	// store (results are lost on restart).
	DSN string `yaml:"dsn"`
}

// WorkersConfig tunes the scoring worker pool.
type WorkersConfig struct {
	// Count is the number of concurrent scoring workers. Zero means 2.
	Count int `yaml:"count"`

	// PollInterval is the queue polling interval in milliseconds when the
	// queue is empty. Zero means 500.
	PollInterval int `yaml:"poll_interval_ms"`
}
