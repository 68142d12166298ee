package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/researchpulse/internal/server"
	"github.com/ppiankov/researchpulse/internal/store"
)

var (
	serveAddr   string
	serveNoSave bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pulse and search operations over HTTP",
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr from config)")
	serveCmd.Flags().BoolVar(&serveNoSave, "no-save", false, "do not store reports produced by /api/pulse")
}

func serveAction(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	var reports server.ReportStore
	if !serveNoSave {
		db, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = db.Close() }()
		reports = db
	}

	return server.Serve(commandContext(cmd.Context()), addr, server.NewHandler(engine, reports, logger))
}
