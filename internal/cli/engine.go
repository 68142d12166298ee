package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/ppiankov/researchpulse/internal/config"
	"github.com/ppiankov/researchpulse/internal/privacy"
	"github.com/ppiankov/researchpulse/internal/pulse"
	"github.com/ppiankov/researchpulse/internal/source"
	"github.com/ppiankov/researchpulse/internal/summarize"
)

// logOutput is where command logs go. Tests point it elsewhere.
var logOutput io.Writer = os.Stderr

// loadConfig reads the config and installs the configured logger as the
// slog default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.Logging, logOutput)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(lc config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// buildEngine wires sources and summarizers from cfg into a pulse engine.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*pulse.Engine, error) {
	deps := source.Deps{
		Client:    &http.Client{Timeout: cfg.Fetch.Timeout.Duration},
		UserAgent: cfg.Fetch.UserAgent,
		Logger:    logger,
	}
	sources, err := source.Builtin().Build(cfg.Specs(), deps)
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}

	sum, overview, err := buildSummarizers(cfg, logger)
	if err != nil {
		return nil, err
	}

	return pulse.New(pulse.Config{
		DaysBack:       cfg.DaysBack,
		SearchDaysBack: cfg.Search.DaysBack,
		MaxWorkers:     cfg.Parallelism.MaxWorkers,
		Banners:        cfg.Banners(),
		Location:       cfg.Location(),
		Logger:         logger,
	}, sources, sum, overview)
}

// buildSummarizers returns the per-source and overview summarizers. In llm
// mode each gets its own prompt; redaction wraps both when enabled.
func buildSummarizers(cfg *config.Config, logger *slog.Logger) (sum, overview summarize.Summarizer, err error) {
	heuristic := &summarize.HeuristicSummarizer{}
	sum, overview = heuristic, heuristic

	if cfg.Summarize.Mode == "llm" {
		llm := cfg.Summarize.LLM
		if llm.APIKey == "" {
			logger.Warn("llm mode without an API key", "api_key_env", llm.APIKeyEnv)
		}

		var fallback summarize.Summarizer
		if llm.FallbackEnabled() {
			fallback = heuristic
		}
		opts := summarize.LLMOptions{
			Endpoint:  llm.Endpoint,
			APIKey:    llm.APIKey,
			Model:     llm.Model,
			MaxTokens: llm.MaxTokens,
			Timeout:   llm.Timeout.Duration,
			Logger:    logger,
		}

		opts.Prompt = summarize.SourcePrompt
		sum = summarize.NewLLM(opts, fallback)
		opts.Prompt = summarize.OverviewPrompt
		overview = summarize.NewLLM(opts, fallback)
	}

	if cfg.Privacy.Redact.Enabled {
		patterns, err := privacy.Compile(cfg.Privacy.Redact.Patterns)
		if err != nil {
			return nil, nil, fmt.Errorf("compile redact patterns: %w", err)
		}
		sum = privacy.Redacting(sum, patterns)
		overview = privacy.Redacting(overview, patterns)
	}
	return sum, overview, nil
}

// commandContext returns ctx, or Background when cobra has none set.
func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
