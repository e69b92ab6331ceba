package excel

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
)

// ReportWriter renders a finished investigation as an xlsx workbook with
// summary, hypotheses, and evidence sheets.
type ReportWriter struct {
	Dir string
}

// NewReportWriter creates a report writer targeting the given directory
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{Dir: dir}
}

// Write saves the workbook and returns its path
func (w *ReportWriter) Write(inv *investigation.Investigation, hyps []*investigation.Hypothesis, results map[string]evidence.ConfidenceResult, findings []evidence.Finding) (string, error) {
	f := excelize.NewFile()

	if err := w.writeSummary(f, inv); err != nil {
		return "", err
	}
	if err := w.writeHypotheses(f, hyps, results); err != nil {
		return "", err
	}
	if err := w.writeEvidence(f, findings); err != nil {
		return "", err
	}

	// Drop the default sheet so Summary leads the workbook.
	if idx, err := f.GetSheetIndex("Summary"); err == nil && idx != -1 {
		f.SetActiveSheet(idx)
	}
	_ = f.DeleteSheet("Sheet1")

	path := filepath.Join(w.Dir, fmt.Sprintf("investigation-%s.xlsx", inv.ID))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}

func (w *ReportWriter) writeSummary(f *excelize.File, inv *investigation.Investigation) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]any{
		{"Investigation", inv.ID.String()},
		{"Question", inv.Question},
		{"State", string(inv.State)},
		{"Steps used", inv.StepsUsed},
		{"Window start", inv.Intent.Window.Start.Time().Format("2006-01-02 15:04:05")},
		{"Window end", inv.Intent.Window.End.Time().Format("2006-01-02 15:04:05")},
	}
	if inv.Answer != nil {
		rows = append(rows,
			[]any{"Root cause", inv.Answer.RootCause},
			[]any{"Confidence", inv.Answer.Confidence},
			[]any{"Confidence level", string(inv.Answer.ConfidenceLevel)},
			[]any{"Insufficient evidence", inv.Answer.Insufficient},
		)
	}
	if inv.FailCode != "" {
		rows = append(rows, []any{"Failure", inv.FailCode + ": " + inv.FailMsg})
	}
	return writeRows(f, sheet, rows)
}

func (w *ReportWriter) writeHypotheses(f *excelize.File, hyps []*investigation.Hypothesis, results map[string]evidence.ConfidenceResult) error {
	const sheet = "Hypotheses"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]any{{"Description", "Status", "Prior", "Confidence", "Supporting", "Refuting", "Steps", "Retries", "Service"}}
	for _, h := range hyps {
		score, supporting, refuting := 0.0, 0, 0
		if res, ok := results[h.ID.String()]; ok {
			score, supporting, refuting = res.Score, res.SupportingCount, res.RefutingCount
		}
		rows = append(rows, []any{
			h.Description, string(h.Status), h.Prior, score,
			supporting, refuting, len(h.Steps), h.Retries, h.Service.String(),
		})
	}
	return writeRows(f, sheet, rows)
}

func (w *ReportWriter) writeEvidence(f *excelize.File, findings []evidence.Finding) error {
	const sheet = "Evidence"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]any{{"Kind", "Significance", "Field", "Pattern", "Count", "Service", "Summary", "Observed"}}
	for _, finding := range findings {
		rows = append(rows, []any{
			string(finding.Kind), string(finding.Significance), finding.Field,
			finding.Pattern, finding.Count, finding.Service.String(),
			finding.Summary, finding.ObservedAt.Time().Format("2006-01-02 15:04:05"),
		})
	}
	return writeRows(f, sheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}
