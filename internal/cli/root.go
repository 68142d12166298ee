// Package cli provides the command-line interface for researchpulse.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

const defaultConfigDir = ".researchpulse"

var (
	configDir string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Aggregate recent research from many sources into one report",
	Long: "researchpulse fetches recent items from search APIs, arXiv, RSS feeds, scraped pages, " +
		"Hacker News and Reddit in parallel, summarizes each source, and assembles a combined report.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("researchpulse %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", defaultConfigDir, "config directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
