package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/docintel/internal/adapters/mcp"
	"github.com/kirillkom/docintel/internal/bootstrap"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search, document and insights tools over MCP stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	// stdout carries the protocol.
	logger := newLogger(os.Stderr, "mcp", cfg)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	server := mcpadapter.New(app.SearchUC, app.DocumentsUC, app.InsightsUC, logger)
	return server.ServeStdio(ctx, os.Stdin, os.Stdout)
}
