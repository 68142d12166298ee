package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/researchpulse/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if wrote {
		fmt.Printf("Initialized %s. Edit %s, then run 'pulse doctor'.\n", configDir, config.DefaultConfigFile)
	} else {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# researchpulse configuration

days_back: 1

parallelism:
  max_workers: 8

fetch:
  timeout: 30s

search:
  days_back: 7

# Sources run in parallel but always appear in the report in this order.
sources:
  - name: web_search
    kind: search
    description: Web search for recent articles
    topics: ["AI agents", "LLM evaluation"]
    options:
      api_key_env: SERPAPI_API_KEY
      max_results: 5

  - name: arxiv
    kind: academic
    description: Latest preprints on arXiv
    topics: ["large language models", "AI agents"]
    options:
      max_results: 10

  - name: hn
    kind: hackernews
    description: Front page stories from Hacker News
    topics: ["LLM", "AI"]
    options:
      min_points: 50

  - name: machinelearning
    kind: reddit
    description: New posts from r/MachineLearning
    options:
      subreddit: MachineLearning

  # - name: blog
  #   kind: rss
  #   description: A research blog
  #   banner: https://example.com/banner.png
  #   options:
  #     url: https://example.com/feed.xml
  #
  # - name: news
  #   kind: html
  #   description: Scraped search results page
  #   options:
  #     base_url: "https://example.com/search?q="
  #     article_selector: article
  #     title_selector: h2
  #     link_selector: a
  #     summary_selector: p
  #     date_selector: time

summarize:
  mode: heuristic
  # mode: llm
  # llm:
  #   endpoint: https://api.openai.com/v1/chat/completions
  #   model: gpt-4o-mini
  #   api_key_env: OPENAI_API_KEY
  #   max_tokens: 1024
  #   timeout: 60s
  #   fallback: true

storage:
  path: .researchpulse/pulse.db
  retain_days: 30

report:
  timezone: "UTC"
  output_dir: reports

privacy:
  redact:
    enabled: false
    patterns: []

server:
  addr: 127.0.0.1:8080

logging:
  level: info
  format: text
`
