package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchSources  []string
	searchDaysBack int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the configured sources for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  searchAction,
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchSources, "sources", nil, "source names to search (default all)")
	searchCmd.Flags().IntVar(&searchDaysBack, "days-back", 0, "override search.days_back from config")
}

func searchAction(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if searchDaysBack != 0 {
		if searchDaysBack < 1 {
			return fmt.Errorf("--days-back must be at least 1, got %d", searchDaysBack)
		}
		cfg.Search.DaysBack = searchDaysBack
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	out, err := engine.Search(commandContext(cmd.Context()), query, searchSources)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		fmt.Println("No matching sources.")
		return nil
	}
	fmt.Println(out)
	return nil
}
