package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Provider types.
const (
	ProviderReplicate = "replicate"
	ProviderGemini    = "gemini"
)

// Config holds all imagine configuration.
type Config struct {
	Listen     string           `yaml:"listen"`
	DBPath     string           `yaml:"db_path"`
	Log        LogConfig        `yaml:"log"`
	Provider   ProviderConfig   `yaml:"provider"`
	Generation GenerationConfig `yaml:"generation"`
	Session    SessionConfig    `yaml:"session"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProviderConfig defines the upstream image generation provider.
// Type is "replicate" (default) or "gemini".
type ProviderConfig struct {
	Type      string `yaml:"type"`
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	UsagePath string `yaml:"usage_path"`
}

// GenerationConfig holds the fixed parameters sent with every prompt.
type GenerationConfig struct {
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	Scheduler         string  `yaml:"scheduler"`
	NumOutputs        int     `yaml:"num_outputs"`
	GuidanceScale     float64 `yaml:"guidance_scale"`
	NumInferenceSteps int     `yaml:"num_inference_steps"`
	NegativePrompt    string  `yaml:"negative_prompt"`
}

// SessionConfig controls UI sessions.
type SessionConfig struct {
	CookieName  string        `yaml:"cookie_name"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DefaultNegativePrompt is sent upstream unless overridden.
const DefaultNegativePrompt = "worst quality, low quality"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "imagine.db",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Provider: ProviderConfig{
			Type:      ProviderReplicate,
			URL:       "https://api.replicate.com",
			UsagePath: "/v1/account/usage",
		},
		Generation: GenerationConfig{
			Width:             512,
			Height:            512,
			Scheduler:         "K_EULER",
			NumOutputs:        1,
			GuidanceScale:     0,
			NumInferenceSteps: 4,
			NegativePrompt:    DefaultNegativePrompt,
		},
		Session: SessionConfig{
			CookieName:  "imagine_session",
			IdleTimeout: 30 * time.Minute,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "read config", goerr.V("path", path))
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, goerr.Wrap(err, "parse config", goerr.V("path", path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case ProviderReplicate:
		if c.Provider.URL == "" {
			return goerr.New("provider.url is required for replicate")
		}
	case ProviderGemini:
	default:
		return goerr.New("unknown provider type", goerr.V("type", c.Provider.Type))
	}

	g := c.Generation
	if g.Width <= 0 || g.Height <= 0 {
		return goerr.New("generation size must be positive", goerr.V("width", g.Width), goerr.V("height", g.Height))
	}
	if g.NumOutputs <= 0 {
		return goerr.New("generation.num_outputs must be positive")
	}
	if g.NumInferenceSteps <= 0 {
		return goerr.New("generation.num_inference_steps must be positive")
	}
	if c.Session.CookieName == "" {
		return goerr.New("session.cookie_name is required")
	}
	return nil
}
