package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/researchpulse/internal/privacy"
	"github.com/ppiankov/researchpulse/internal/source"
)

const (
	DefaultConfigFile     = "config.yaml"
	DefaultStoragePath    = ".researchpulse/pulse.db"
	DefaultOutputDir      = "reports"
	DefaultRetainDays     = 30
	DefaultDaysBack       = 1
	DefaultSearchDaysBack = 7
	DefaultMaxWorkers     = 8
	DefaultTimezone       = "UTC"
	DefaultSummarizeMode  = "heuristic"
	DefaultFetchTimeout   = 30 * time.Second
	DefaultLLMTimeout     = 60 * time.Second
	DefaultServerAddr     = "127.0.0.1:8080"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	DaysBack    int               `yaml:"days_back"`
	Parallelism ParallelismConfig `yaml:"parallelism"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Search      SearchConfig      `yaml:"search"`
	Sources     []SourceConfig    `yaml:"sources"`
	Summarize   SummarizeConfig   `yaml:"summarize"`
	Storage     StorageConfig     `yaml:"storage"`
	Report      ReportConfig      `yaml:"report"`
	Privacy     PrivacyConfig     `yaml:"privacy"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ParallelismConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type FetchConfig struct {
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

type SearchConfig struct {
	DaysBack int `yaml:"days_back"`
}

// SourceConfig is one entry of the ordered sources list. Options are passed
// to the adapter untouched.
type SourceConfig struct {
	Name        string         `yaml:"name"`
	Kind        string         `yaml:"kind"`
	Description string         `yaml:"description"`
	Topics      []string       `yaml:"topics"`
	Banner      string         `yaml:"banner"`
	Options     map[string]any `yaml:"options"`
}

type SummarizeConfig struct {
	Mode string    `yaml:"mode"`
	LLM  LLMConfig `yaml:"llm"`
}

type LLMConfig struct {
	Endpoint  string   `yaml:"endpoint"`
	Model     string   `yaml:"model"`
	APIKeyEnv string   `yaml:"api_key_env"`
	MaxTokens int      `yaml:"max_tokens"`
	Timeout   Duration `yaml:"timeout"`
	// Fallback selects the heuristic summarizer when a call fails. Unset means true.
	Fallback *bool `yaml:"fallback"`

	// Resolved from env var at load time.
	APIKey string `yaml:"-"`
}

// FallbackEnabled reports whether LLM failures fall back to the heuristic.
func (c LLMConfig) FallbackEnabled() bool {
	return c.Fallback == nil || *c.Fallback
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type ReportConfig struct {
	Timezone  string `yaml:"timezone"`
	OutputDir string `yaml:"output_dir"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DaysBack == 0 {
		cfg.DaysBack = DefaultDaysBack
	}
	if cfg.Search.DaysBack == 0 {
		cfg.Search.DaysBack = DefaultSearchDaysBack
	}
	if cfg.Parallelism.MaxWorkers == 0 {
		cfg.Parallelism.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.Fetch.Timeout.Duration == 0 {
		cfg.Fetch.Timeout.Duration = DefaultFetchTimeout
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
	if cfg.Report.Timezone == "" {
		cfg.Report.Timezone = DefaultTimezone
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = DefaultOutputDir
	}
	if cfg.Summarize.Mode == "" {
		cfg.Summarize.Mode = DefaultSummarizeMode
	}
	if cfg.Summarize.LLM.Timeout.Duration == 0 {
		cfg.Summarize.LLM.Timeout.Duration = DefaultLLMTimeout
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Privacy.Redact.Enabled && len(cfg.Privacy.Redact.Patterns) == 0 {
		cfg.Privacy.Redact.Patterns = append([]string(nil), privacy.DefaultPatterns...)
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Summarize.LLM.APIKeyEnv != "" {
		cfg.Summarize.LLM.APIKey = os.Getenv(cfg.Summarize.LLM.APIKeyEnv)
	}
}

func validate(cfg *Config) error {
	if cfg.DaysBack < 1 {
		return fmt.Errorf("days_back: must be at least 1, got %d", cfg.DaysBack)
	}
	if cfg.Search.DaysBack < 1 {
		return fmt.Errorf("search.days_back: must be at least 1, got %d", cfg.Search.DaysBack)
	}
	if cfg.Parallelism.MaxWorkers < 1 {
		return fmt.Errorf("parallelism.max_workers: must be at least 1, got %d", cfg.Parallelism.MaxWorkers)
	}
	if cfg.Storage.RetainDays < 0 {
		return fmt.Errorf("storage.retain_days: must not be negative, got %d", cfg.Storage.RetainDays)
	}

	if _, err := time.LoadLocation(cfg.Report.Timezone); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}

	switch cfg.Summarize.Mode {
	case "heuristic":
	case "llm":
		if strings.TrimSpace(cfg.Summarize.LLM.Model) == "" {
			return errors.New("summarize.llm.model: required when mode is llm")
		}
	default:
		return fmt.Errorf("summarize.mode: unknown mode %q (want heuristic or llm)", cfg.Summarize.Mode)
	}

	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q (want text or json)", cfg.Logging.Format)
	}

	if cfg.Privacy.Redact.Enabled {
		if _, err := privacy.Compile(cfg.Privacy.Redact.Patterns); err != nil {
			return fmt.Errorf("privacy.redact.patterns: %w", err)
		}
	}

	return validateSources(cfg.Specs())
}

// validateSources builds every source once so unknown kinds and missing
// options fail at load time rather than mid-run.
func validateSources(specs []source.Spec) error {
	registry := source.Builtin()
	deps := source.Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("sources[%d]: %w", i, &source.ConfigError{Source: spec.Name, Reason: "is configured more than once"})
		}
		seen[spec.Name] = true

		if _, err := registry.New(spec, deps); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	return nil
}

// Specs converts the configured sources into adapter specs, in file order.
func (c *Config) Specs() []source.Spec {
	specs := make([]source.Spec, 0, len(c.Sources))
	for _, s := range c.Sources {
		opts := make(source.Options, len(s.Options))
		for k, v := range s.Options {
			opts[k] = v
		}
		specs = append(specs, source.Spec{
			Name:        strings.TrimSpace(s.Name),
			Kind:        strings.TrimSpace(s.Kind),
			Topics:      append([]string(nil), s.Topics...),
			Description: s.Description,
			Banner:      s.Banner,
			Options:     opts,
		})
	}
	return specs
}

// Banners maps source names to their configured banner image.
func (c *Config) Banners() map[string]string {
	banners := make(map[string]string)
	for _, s := range c.Sources {
		if b := strings.TrimSpace(s.Banner); b != "" {
			banners[strings.TrimSpace(s.Name)] = b
		}
	}
	return banners
}

// Location returns the report timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("unknown level %q (want debug, info, warn or error)", name)
	}
	return level, nil
}
