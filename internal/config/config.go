package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	appName    = "docreview"
	configFile = "config.yaml"
	envPrefix  = "DOCREVIEW"
)

// Validation errors.
var (
	ErrInvalidProvider = errors.New("invalid provider")
	ErrInvalidMode     = errors.New("invalid review mode")
	ErrInvalidFormat   = errors.New("invalid output format")
	ErrInvalidLimit    = errors.New("invalid limit")
)

// Config represents the docreview configuration.
type Config struct {
	Provider  string          `mapstructure:"provider" yaml:"provider"`
	Model     string          `mapstructure:"model" yaml:"model"`
	Format    string          `mapstructure:"format" yaml:"format"`
	DBPath    string          `mapstructure:"dbPath" yaml:"dbPath,omitempty"`
	Vertex    VertexConfig    `mapstructure:"vertex" yaml:"vertex"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
	Review    ReviewConfig    `mapstructure:"review" yaml:"review"`
	Extract   ExtractConfig   `mapstructure:"extract" yaml:"extract"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Privacy   PrivacyConfig   `mapstructure:"privacy" yaml:"privacy"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// VertexConfig selects the Google Cloud project for Gemini.
type VertexConfig struct {
	Project  string `mapstructure:"project" yaml:"project,omitempty"`
	Location string `mapstructure:"location" yaml:"location,omitempty"`
}

// OpenAIConfig points the OpenAI provider at a compatible endpoint.
type OpenAIConfig struct {
	BaseURL string `mapstructure:"baseURL" yaml:"baseURL,omitempty"`
}

// Label is one allowed evaluation value.
type Label struct {
	Label       string `mapstructure:"label" yaml:"label"`
	Description string `mapstructure:"description" yaml:"description"`
}

// ReviewConfig holds review run parameters.
type ReviewConfig struct {
	Mode                     string  `mapstructure:"mode" yaml:"mode"`
	MaxChecklistsPerCategory int     `mapstructure:"maxChecklistsPerCategory" yaml:"maxChecklistsPerCategory"`
	MaxCategories            int     `mapstructure:"maxCategories" yaml:"maxCategories"`
	SmallModeMaxChars        int     `mapstructure:"smallModeMaxChars" yaml:"smallModeMaxChars"`
	MaxReadinessIterations   int     `mapstructure:"maxReadinessIterations" yaml:"maxReadinessIterations"`
	EvaluationLabels         []Label `mapstructure:"evaluationLabels" yaml:"evaluationLabels,omitempty"`
	CommentFormat            string  `mapstructure:"commentFormat" yaml:"commentFormat,omitempty"`
	AdditionalInstructions   string  `mapstructure:"additionalInstructions" yaml:"additionalInstructions,omitempty"`
}

// ExtractConfig controls document extraction.
type ExtractConfig struct {
	MaxImageDimension int `mapstructure:"maxImageDimension" yaml:"maxImageDimension"`
}

// CacheConfig controls the extraction cache.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir        string `mapstructure:"dir" yaml:"dir,omitempty"`
	TTLSeconds int    `mapstructure:"ttlSeconds" yaml:"ttlSeconds"`
}

// PrivacyConfig controls secret redaction of extracted text.
type PrivacyConfig struct {
	RedactSecrets bool     `mapstructure:"redactSecrets" yaml:"redactSecrets"`
	RedactPaths   []string `mapstructure:"redactPaths" yaml:"redactPaths,omitempty"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// TelemetryConfig controls OTLP export and the Prometheus endpoint.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint" yaml:"otlpEndpoint,omitempty"`
	OTLPInsecure bool   `mapstructure:"otlpInsecure" yaml:"otlpInsecure,omitempty"`
	MetricsAddr  string `mapstructure:"metricsAddr" yaml:"metricsAddr,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
		Format:   "text",
		Vertex:   VertexConfig{Location: "us-central1"},
		Review: ReviewConfig{
			Mode:                     "auto",
			MaxChecklistsPerCategory: 10,
			MaxCategories:            10,
			SmallModeMaxChars:        200000,
			MaxReadinessIterations:   3,
		},
		Extract: ExtractConfig{MaxImageDimension: 1568},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 7 * 86400,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		Log: LogConfig{Level: "warn"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", d.Model)
	v.SetDefault("format", d.Format)
	v.SetDefault("dbPath", d.DBPath)
	v.SetDefault("vertex.project", d.Vertex.Project)
	v.SetDefault("vertex.location", d.Vertex.Location)
	v.SetDefault("openai.baseURL", d.OpenAI.BaseURL)
	v.SetDefault("review.mode", d.Review.Mode)
	v.SetDefault("review.maxChecklistsPerCategory", d.Review.MaxChecklistsPerCategory)
	v.SetDefault("review.maxCategories", d.Review.MaxCategories)
	v.SetDefault("review.smallModeMaxChars", d.Review.SmallModeMaxChars)
	v.SetDefault("review.maxReadinessIterations", d.Review.MaxReadinessIterations)
	v.SetDefault("review.commentFormat", d.Review.CommentFormat)
	v.SetDefault("review.additionalInstructions", d.Review.AdditionalInstructions)
	v.SetDefault("extract.maxImageDimension", d.Extract.MaxImageDimension)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttlSeconds", d.Cache.TTLSeconds)
	v.SetDefault("privacy.redactSecrets", d.Privacy.RedactSecrets)
	v.SetDefault("privacy.redactPaths", d.Privacy.RedactPaths)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("telemetry.otlpEndpoint", d.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.otlpInsecure", d.Telemetry.OTLPInsecure)
	v.SetDefault("telemetry.metricsAddr", d.Telemetry.MetricsAddr)
}

// ConfigDir returns the platform-appropriate config directory for docreview.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName), nil
		}
		return filepath.Join(home, "AppData", "Roaming", appName), nil
	default:
		return filepath.Join(home, ".config", appName), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// DatabasePath returns DBPath, or docreview.db in the config directory
// when it is unset.
func (c Config) DatabasePath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+".db"), nil
}

// Validate checks enumerations and limits.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic", "openai", "gemini", "vertex", "google", "ollama", "lmstudio":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}
	switch c.Review.Mode {
	case "auto", "small", "large":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Review.Mode)
	}
	switch c.Format {
	case "text", "json", "markdown", "html":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Format)
	}
	for name, n := range map[string]int{
		"review.maxChecklistsPerCategory": c.Review.MaxChecklistsPerCategory,
		"review.maxCategories":            c.Review.MaxCategories,
		"review.smallModeMaxChars":        c.Review.SmallModeMaxChars,
		"review.maxReadinessIterations":   c.Review.MaxReadinessIterations,
	} {
		if n < 1 {
			return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidLimit, name, n)
		}
	}
	return nil
}

func newViper(path string, env bool) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if env {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return v, nil
}

// LoadFile loads defaults and the config file at path (the default path
// when empty), ignoring the environment. A missing file yields defaults.
func LoadFile(path string) (Config, error) {
	v, err := newViper(path, false)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(path string, overrides map[string]string) (Config, error) {
	v, err := newViper(path, true)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to path, or to the default path when empty.
func Save(path string, cfg Config) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for k, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists the keys accepted by SetField.
func Keys() []string {
	return []string{
		"provider", "model", "format", "dbPath",
		"vertex.project", "vertex.location", "openai.baseURL",
		"review.mode", "review.maxChecklistsPerCategory", "review.maxCategories",
		"review.smallModeMaxChars", "review.maxReadinessIterations",
		"review.commentFormat", "review.additionalInstructions",
		"extract.maxImageDimension",
		"cache.enabled", "cache.dir", "cache.ttlSeconds",
		"privacy.redactSecrets", "privacy.redactPaths",
		"log.level", "log.json",
		"telemetry.otlpEndpoint", "telemetry.otlpInsecure", "telemetry.metricsAddr",
	}
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	atoi := func(dst *int) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		*dst = n
		return nil
	}
	parseBool := func(dst *bool) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false: %w", key, err)
		}
		*dst = b
		return nil
	}

	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "format":
		cfg.Format = value
	case "dbPath":
		cfg.DBPath = value
	case "vertex.project":
		cfg.Vertex.Project = value
	case "vertex.location":
		cfg.Vertex.Location = value
	case "openai.baseURL":
		cfg.OpenAI.BaseURL = value
	case "review.mode", "mode":
		cfg.Review.Mode = value
	case "review.maxChecklistsPerCategory":
		return atoi(&cfg.Review.MaxChecklistsPerCategory)
	case "review.maxCategories":
		return atoi(&cfg.Review.MaxCategories)
	case "review.smallModeMaxChars":
		return atoi(&cfg.Review.SmallModeMaxChars)
	case "review.maxReadinessIterations":
		return atoi(&cfg.Review.MaxReadinessIterations)
	case "review.commentFormat":
		cfg.Review.CommentFormat = value
	case "review.additionalInstructions":
		cfg.Review.AdditionalInstructions = value
	case "extract.maxImageDimension":
		return atoi(&cfg.Extract.MaxImageDimension)
	case "cache.enabled":
		return parseBool(&cfg.Cache.Enabled)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttlSeconds":
		return atoi(&cfg.Cache.TTLSeconds)
	case "privacy.redactSecrets":
		return parseBool(&cfg.Privacy.RedactSecrets)
	case "privacy.redactPaths":
		cfg.Privacy.RedactPaths = strings.Split(value, ",")
	case "log.level":
		cfg.Log.Level = value
	case "log.json":
		return parseBool(&cfg.Log.JSON)
	case "telemetry.otlpEndpoint":
		cfg.Telemetry.OTLPEndpoint = value
	case "telemetry.otlpInsecure":
		return parseBool(&cfg.Telemetry.OTLPInsecure)
	case "telemetry.metricsAddr":
		cfg.Telemetry.MetricsAddr = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
