package excel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
)

func testResult() (*investigation.Investigation, []*investigation.Hypothesis, map[string]evidence.ConfidenceResult, []evidence.Finding) {
	inv := investigation.New("why are checkout errors spiking?",
		investigation.Intent{Question: "why are checkout errors spiking?"},
		investigation.Budget{MaxSteps: 8, MaxWall: time.Minute})
	inv.StepsUsed = 3
	inv.Answer = &investigation.FinalAnswer{
		RootCause:       "payment gateway rate limiting",
		Confidence:      0.91,
		ConfidenceLevel: evidence.LevelVeryHigh,
	}

	hyp := investigation.NewHypothesis("payment gateway rate limiting", 0.8)
	hyp.Status = investigation.StatusSupported
	hyp.Service = "payment-gateway"

	scores := map[string]evidence.ConfidenceResult{
		hyp.ID.String(): {HypothesisID: hyp.ID, Score: 0.91, SupportingCount: 3},
	}
	findings := []evidence.Finding{{
		Kind:         evidence.FindingPattern,
		Significance: evidence.SignificanceHigh,
		Field:        "status",
		Pattern:      "429",
		Count:        120,
		Service:      "payment-gateway",
		Summary:      "status=429 (count: 120)",
	}}
	return inv, []*investigation.Hypothesis{hyp}, scores, findings
}

// TestWriteReport tests the workbook lands on disk with all three sheets
func TestWriteReport(t *testing.T) {
	inv, hyps, scores, findings := testResult()

	writer := NewReportWriter(t.TempDir())
	path, err := writer.Write(inv, hyps, scores, findings)
	require.NoError(t, err)
	require.NotEmpty(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Summary")
	assert.Contains(t, sheets, "Hypotheses")
	assert.Contains(t, sheets, "Evidence")

	rootCause, err := f.GetCellValue("Summary", "B7")
	require.NoError(t, err)
	assert.Equal(t, "payment gateway rate limiting", rootCause)

	desc, err := f.GetCellValue("Hypotheses", "A2")
	require.NoError(t, err)
	assert.Equal(t, "payment gateway rate limiting", desc)

	kind, err := f.GetCellValue("Evidence", "A2")
	require.NoError(t, err)
	assert.Equal(t, "pattern", kind)
}
