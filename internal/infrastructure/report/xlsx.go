// Package report renders document analyses as XLSX workbooks.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const summarySheet = "Summary"

var findingHeader = []any{"Severity", "Title", "Description", "Section", "Impact", "Excerpt"}

// WriteDocumentReport writes a Summary sheet followed by one sheet per finding kind.
func WriteDocumentReport(w io.Writer, detail *domain.DocumentDetail) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	doc := detail.Document
	rows := [][]any{
		{"Document", doc.Filename},
		{"Type", doc.FileType},
		{"Pages", doc.Pages},
		{"Category", doc.Category},
		{"Tags", strings.Join(doc.Tags, ", ")},
		{"Risk level", string(doc.RiskLevel)},
		{"Priority", string(doc.Priority)},
		{"Review status", string(doc.ReviewStatus)},
		{"Uploaded", doc.CreatedAt.UTC().Format("2006-01-02 15:04")},
		{"Risks", len(detail.Risks)},
		{"Opportunities", len(detail.Opportunities)},
		{"Inconsistencies", len(detail.Inconsistencies)},
		{"Summary", doc.Summary},
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 18); err != nil {
		return fmt.Errorf("size summary: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "B", "B", 80); err != nil {
		return fmt.Errorf("size summary: %w", err)
	}

	kinds := []struct {
		sheet    string
		findings []domain.Finding
	}{
		{"Risks", detail.Risks},
		{"Opportunities", detail.Opportunities},
		{"Inconsistencies", detail.Inconsistencies},
	}
	for _, k := range kinds {
		if _, err := f.NewSheet(k.sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", k.sheet, err)
		}
		rows := make([][]any, 0, len(k.findings)+1)
		rows = append(rows, findingHeader)
		for _, finding := range k.findings {
			rows = append(rows, []any{
				string(finding.Severity), finding.Title, finding.Description,
				finding.Section, finding.Impact, finding.Excerpt,
			})
		}
		if err := writeRows(f, k.sheet, rows); err != nil {
			return err
		}
		if err := f.SetCellStyle(k.sheet, "A1", "F1", bold); err != nil {
			return fmt.Errorf("style %s header: %w", k.sheet, err)
		}
		if err := f.SetColWidth(k.sheet, "B", "C", 48); err != nil {
			return fmt.Errorf("size %s: %w", k.sheet, err)
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
