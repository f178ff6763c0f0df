package model

import "time"

// Config is the full bandmark configuration tree.
type Config struct {
	Grader      GraderConfig      `yaml:"grader" mapstructure:"grader"`
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Calibration CalibrationConfig `yaml:"calibration" mapstructure:"calibration"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// GraderConfig configures the external grading client.
type GraderConfig struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model name (provider-specific)
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey for OpenAI/Anthropic (prefer env vars)
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL for custom endpoints (e.g., Ollama, Azure-compatible gateways)
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout per grading call, seconds
	Timeout int `yaml:"timeout" mapstructure:"timeout"`

	// MaxTokens for the grader response
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// RequestsPerSecond limits call rate per model; 0 disables limiting
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst for the rate limiter
	Burst int `yaml:"burst" mapstructure:"burst"`

	// Proxy settings
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// ScoringConfig controls the multi-pass adjudication.
type ScoringConfig struct {
	// Passes is N, the number of independent grading attempts per request
	Passes int `yaml:"passes" mapstructure:"passes"`

	// Quorum is the minimum number of valid passes required
	Quorum int `yaml:"quorum" mapstructure:"quorum"`

	// DispersionThreshold: confidence is "low" iff dispersion exceeds this
	DispersionThreshold float64 `yaml:"dispersion_threshold" mapstructure:"dispersion_threshold"`

	// MaxRetries bounds the exponential backoff on transport failures
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	// Criteria names; count is fixed per process
	Criteria []string `yaml:"criteria" mapstructure:"criteria"`

	// Structural caps on grader output
	MaxEvidenceQuotes  int `yaml:"max_evidence_quotes" mapstructure:"max_evidence_quotes"`
	MaxErrors          int `yaml:"max_errors" mapstructure:"max_errors"`
	MaxSuggestions     int `yaml:"max_suggestions" mapstructure:"max_suggestions"`
	MaxSuggestionChars int `yaml:"max_suggestion_chars" mapstructure:"max_suggestion_chars"`
}

// CalibrationConfig controls loading and training of calibration models.
type CalibrationConfig struct {
	// Dir holds versioned calibration artifacts; the newest is loaded
	Dir string `yaml:"dir" mapstructure:"dir"`

	// ModelPath, when set, loads a specific artifact instead of the newest
	ModelPath string `yaml:"model_path,omitempty" mapstructure:"model_path"`

	// Disabled forces uncalibrated scoring even if a model exists
	Disabled bool `yaml:"disabled" mapstructure:"disabled"`

	// Tolerance is the acceptable |prediction - truth| band
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`

	// Objective weights: agreement on the in-tolerance subset vs coverage
	AgreementWeight float64 `yaml:"agreement_weight" mapstructure:"agreement_weight"`
	CoverageWeight  float64 `yaml:"coverage_weight" mapstructure:"coverage_weight"`
}

// ConcurrencyConfig bounds parallel work.
type ConcurrencyConfig struct {
	// PassWorkers bounds concurrent grading passes within one request
	PassWorkers int `yaml:"pass_workers" mapstructure:"pass_workers"`

	// Requests bounds concurrent requests in batch mode
	Requests int `yaml:"requests" mapstructure:"requests"`
}

// CacheConfig controls the in-memory result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// OutputConfig controls CLI output behavior.
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Grader: GraderConfig{
			Provider:          "openai",
			Model:             "",
			Timeout:           60,
			MaxTokens:         1500,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Scoring: ScoringConfig{
			Passes:              3,
			Quorum:              1,
			DispersionThreshold: 0.5,
			MaxRetries:          3,
			Criteria:            DefaultCriteria(),
			MaxEvidenceQuotes:   3,
			MaxErrors:           10,
			MaxSuggestions:      5,
			MaxSuggestionChars:  200,
		},
		Calibration: CalibrationConfig{
			Dir:             "",
			Tolerance:       0.5,
			AgreementWeight: 0.8,
			CoverageWeight:  0.2,
		},
		Concurrency: ConcurrencyConfig{
			PassWorkers: 3,
			Requests:    4,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     1 * time.Hour,
		},
		Output: OutputConfig{},
	}
}
