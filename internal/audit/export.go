package audit

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet = "Summary"
	IssuesSheet  = "Issues"
)

var summaryHeader = []string{
	"Case ID",
	"Client",
	"Status",
	"Evaluated On",
	"Can Release",
	"Risk Level",
	"Vitality",
	"RAG",
	"Vigilance",
	"Severity",
	"Can Close",
	"Open Flags",
	"Critical Flags",
	"High Flags",
	"Open Tasks",
	"Overdue Tasks",
}

var issuesHeader = []string{"Case ID", "Order", "Code", "Severity", "Message"}

// ExportXLSX writes one Summary row per snapshot and one Issues row per
// lockdown issue, in snapshot order.
func ExportXLSX(snaps []Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(IssuesSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	if err := writeRow(f, SummarySheet, 1, toAny(summaryHeader), style); err != nil {
		return nil, err
	}
	if err := writeRow(f, IssuesSheet, 1, toAny(issuesHeader), style); err != nil {
		return nil, err
	}

	issueRow := 2
	for i, s := range snaps {
		vitality := 0.0
		if s.Risk.VitalityScore != nil {
			vitality = *s.Risk.VitalityScore
		}
		row := []any{
			s.Case.ID,
			s.Case.ClientName,
			string(s.Case.Status),
			s.EvaluatedOn,
			yesNo(s.Lockdown.CanRelease),
			string(s.Lockdown.RiskLevel),
			vitality,
			string(s.Risk.RAGStatus),
			string(s.Risk.VigilanceRiskCategory),
			s.Severity.Label,
			yesNo(s.Closure.CanClose),
			s.Counts.OpenFlags,
			s.Counts.CriticalFlags,
			s.Counts.HighFlags,
			s.Counts.OpenTasks,
			s.Counts.OverdueTasks,
		}
		if err := writeRow(f, SummarySheet, i+2, row, 0); err != nil {
			return nil, err
		}
		for n, issue := range s.Lockdown.Issues {
			if err := writeRow(f, IssuesSheet, issueRow, []any{
				s.Case.ID, n + 1, string(issue.Code), string(issue.Severity), issue.Message,
			}, 0); err != nil {
				return nil, err
			}
			issueRow++
		}
	}

	for _, sheet := range []string{SummarySheet, IssuesSheet} {
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return nil, fmt.Errorf("freeze panes: %w", err)
		}
	}
	if err := f.SetColWidth(IssuesSheet, "E", "E", 90); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any, style int) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", strings.ToLower(sheet), row, err)
	}
	if style == 0 {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, style)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
