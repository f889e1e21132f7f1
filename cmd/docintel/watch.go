package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docintel/internal/bootstrap"
	"github.com/kirillkom/docintel/internal/infrastructure/inbox"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest files dropped into an inbox directory",
	Long: `watch uploads every supported file that appears in the inbox directory once it
has stopped changing, then moves it to <dir>/ingested. Rejected files go to
<dir>/failed. Files already in the directory at startup are ingested too.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("dir", "", "inbox directory (default from INBOX_PATH)")
	watchCmd.Flags().Duration("settle", 0, "how long a file must stay unchanged before ingestion (default 2s)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := newLogger(os.Stdout, "watch", cfg)

	dir, _ := cmd.Flags().GetString("dir")
	if strings.TrimSpace(dir) == "" {
		dir = cfg.InboxPath
	}
	if strings.TrimSpace(dir) == "" {
		return errors.New("inbox directory is required: pass --dir or set INBOX_PATH")
	}
	settle, _ := cmd.Flags().GetDuration("settle")

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	watcher, err := inbox.New(dir, app.IngestUC, inbox.Options{Settle: settle, Logger: logger})
	if err != nil {
		return fmt.Errorf("init inbox watcher: %w", err)
	}
	logger.Info("inbox_watching", "dir", dir)
	return watcher.Run(ctx)
}
