package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docintel/internal/analysis"
	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Extract and analyze a local file without storing it, printing the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("rulebook", "", "rulebook YAML (default from RULEBOOK_PATH, else the built-in one)")
	rootCmd.AddCommand(analyzeCmd)
}

type analyzeOutput struct {
	Filename  string          `json:"filename"`
	FileType  string          `json:"file_type"`
	SizeBytes int64           `json:"size_bytes"`
	Pages     int             `json:"pages"`
	Analysis  domain.Analysis `json:"analysis"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := args[0]
	filename := filepath.Base(path)
	fileType := domain.FileTypeOf(filename)
	if fileType == "" {
		return domain.WrapError(domain.ErrUnsupportedFormat, "analyze", fmt.Errorf("%q", filepath.Ext(filename)))
	}

	rulebookPath, _ := cmd.Flags().GetString("rulebook")
	if rulebookPath == "" {
		rulebookPath = cfg.RulebookPath
	}
	book, err := analysis.LoadRulebook(rulebookPath)
	if err != nil {
		return fmt.Errorf("load rulebook: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > cfg.MaxExtractBytes {
		return domain.WrapError(domain.ErrPayloadTooLarge, "analyze", fmt.Errorf("%s exceeds %d bytes", filename, cfg.MaxExtractBytes))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	extracted, err := extractor.NewDefault(nil, cfg.MaxExtractBytes).Parse(cmd.Context(), fileType, raw)
	if err != nil {
		return err
	}
	doc := &domain.Document{
		Filename:  filename,
		FileType:  fileType,
		SizeBytes: int64(len(raw)),
		Pages:     extracted.Pages,
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(analyzeOutput{
		Filename:  filename,
		FileType:  fileType,
		SizeBytes: doc.SizeBytes,
		Pages:     extracted.Pages,
		Analysis:  analysis.NewAnalyzer(book).Analyze(doc, extracted.Text),
	})
}
