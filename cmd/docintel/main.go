// Command docintel runs the document intelligence API, the processing worker, the MCP tool
// server, the inbox watcher and offline analysis.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/observability/logging"
)

var rootCmd = &cobra.Command{
	Use:   "docintel",
	Short: "Document ingestion, analysis, search and insights",
	Long: `docintel ingests business documents, extracts their text, runs the rulebook
analysis (category, tags, risks, opportunities, inconsistencies) and serves
search, dashboard and insights over HTTP and MCP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "optional YAML config file; environment variables take precedence")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the service logger and installs it as the slog default.
func newLogger(w io.Writer, service string, cfg config.Config) *slog.Logger {
	logger := logging.New(w, service, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return logger
}
