package cli

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/researchpulse/internal/config"
	"github.com/ppiankov/researchpulse/internal/source"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Add RSS sources from an OPML file",
	Args:  cobra.ExactArgs(1),
	RunE:  importAction,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "show what would be added without modifying config")
	rootCmd.AddCommand(importCmd)
}

type opml struct {
	Body opmlBody `xml:"body"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	XMLURL   string        `xml:"xmlUrl,attr"`
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// opmlFeed is one feed found in an OPML document.
type opmlFeed struct {
	URL   string
	Title string
}

func importAction(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read OPML: %w", err)
	}

	var doc opml
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse OPML: %w", err)
	}

	feeds := extractFeeds(doc.Body.Outlines)
	if len(feeds) == 0 {
		fmt.Println("No feed URLs found in OPML file.")
		return nil
	}

	// Load existing config to find duplicates
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	existingURLs := make(map[string]bool)
	names := make(map[string]bool)
	for _, s := range cfg.Sources {
		names[s.Name] = true
		if strings.EqualFold(s.Kind, source.KindRSS) {
			existingURLs[source.Options(s.Options).String("url")] = true
		}
	}

	var added []config.SourceConfig
	skipped := 0
	for _, f := range feeds {
		if existingURLs[f.URL] {
			skipped++
			continue
		}
		existingURLs[f.URL] = true
		name := uniqueName(sourceName(f), names)
		names[name] = true
		added = append(added, config.SourceConfig{
			Name:        name,
			Kind:        source.KindRSS,
			Description: f.Title,
			Options:     map[string]any{"url": f.URL},
		})
	}

	if len(added) == 0 {
		fmt.Printf("All %d feeds already present, nothing to add.\n", skipped)
		return nil
	}

	if importDryRun {
		fmt.Printf("Would add %d sources (skipping %d duplicates):\n", len(added), skipped)
		for _, s := range added {
			fmt.Printf("  + %s  %s\n", s.Name, s.Options["url"])
		}
		return nil
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	if err := mergeSources(configPath, added); err != nil {
		return fmt.Errorf("merge sources: %w", err)
	}

	fmt.Printf("Added %d sources, skipped %d duplicates.\n", len(added), skipped)
	return nil
}

func extractFeeds(outlines []opmlOutline) []opmlFeed {
	var feeds []opmlFeed
	for _, o := range outlines {
		u := strings.TrimSpace(o.XMLURL)
		if u != "" && (strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")) {
			title := strings.TrimSpace(o.Title)
			if title == "" {
				title = strings.TrimSpace(o.Text)
			}
			feeds = append(feeds, opmlFeed{URL: u, Title: title})
		}
		// Recurse into nested outlines (folders)
		feeds = append(feeds, extractFeeds(o.Outlines)...)
	}
	return feeds
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// sourceName derives a snake_case source name from a feed's title or host.
func sourceName(f opmlFeed) string {
	base := f.Title
	if base == "" {
		base = strings.TrimPrefix(strings.TrimPrefix(f.URL, "https://"), "http://")
		base, _, _ = strings.Cut(base, "/")
	}
	name := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(base), "_"), "_")
	if name == "" {
		return "feed"
	}
	return name
}

func uniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := name + "_" + strconv.Itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// mergeSources reads config.yaml as a yaml.Node tree, appends to the
// sources sequence (creating it when absent), and writes back preserving
// structure and comments.
func mergeSources(configPath string, added []config.SourceConfig) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config YAML: %w", err)
	}

	seq, err := sourcesNode(&doc)
	if err != nil {
		return err
	}

	for _, s := range added {
		var node yaml.Node
		if err := node.Encode(s); err != nil {
			return fmt.Errorf("encode source %s: %w", s.Name, err)
		}
		seq.Content = append(seq.Content, &node)
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(configPath, out, 0o644)
}

// sourcesNode returns the top-level sources sequence, adding an empty one
// to the document when it is missing.
func sourcesNode(doc *yaml.Node) (*yaml.Node, error) {
	root := doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			root.Content = append(root.Content, &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"})
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config.yaml is not a mapping")
	}

	if seq := findMapValue(root, "sources"); seq != nil {
		switch {
		case seq.Kind == yaml.SequenceNode:
			return seq, nil
		case seq.Kind == yaml.ScalarNode && seq.Tag == "!!null":
			seq.Kind, seq.Tag, seq.Value = yaml.SequenceNode, "!!seq", ""
			return seq, nil
		default:
			return nil, fmt.Errorf("sources in config.yaml is not a list")
		}
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "sources"},
		seq,
	)
	return seq, nil
}

func findMapValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
