package audit

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"caregate/internal/domain"
	"caregate/internal/lockdown"
	"caregate/internal/tenvs"
)

var now = time.Date(2025, 4, 2, 15, 0, 0, 0, time.UTC)

func sampleState() domain.CaseState {
	due := "2025-04-01"
	pain := 8
	return domain.CaseState{
		Case: domain.Case{ID: "case-1", ClientName: "Jane Roe", Status: domain.CaseActive},
		Flags: []domain.Flag{
			{ID: "f1", Type: "vigilance", Severity: domain.SeverityHigh, Status: domain.FlagOpen},
		},
		Tasks: []domain.Task{
			{ID: "t1", Status: domain.TaskOpen, DueDate: &due},
		},
		Assessment: &domain.Assessment{
			FourPs: domain.FourPs{Physical: domain.Physical{PainScore: &pain}},
		},
	}
}

func TestBuild(t *testing.T) {
	snap := Build(sampleState(), lockdown.Chain(lockdown.Recorded, tenvs.Scorer), now)
	if snap.EvaluatedOn != "2025-04-02" || snap.GeneratedAt != "2025-04-02T15:00:00Z" {
		t.Fatalf("unexpected dates: %s %s", snap.EvaluatedOn, snap.GeneratedAt)
	}
	if snap.Risk.Source != "tenvs" {
		t.Fatalf("expected tenvs risk, got %+v", snap.Risk)
	}
	if snap.Counts.HighFlags != 1 || snap.Counts.VigilanceFlags != 1 || snap.Counts.OverdueTasks != 1 {
		t.Fatalf("unexpected counts: %+v", snap.Counts)
	}
	if snap.Lockdown.CanRelease || snap.Closure.CanClose {
		t.Fatalf("case should be blocked: %+v", snap)
	}
	if snap.TenVs == nil || len(snap.TenVs.Triggers) != 3 {
		t.Fatalf("expected 10-Vs evaluation: %+v", snap.TenVs)
	}
}

func TestBuildWithoutScorer(t *testing.T) {
	snap := Build(domain.CaseState{Case: domain.Case{ID: "c"}}, nil, now)
	if snap.Risk.Source != "default" || !snap.Lockdown.CanRelease || snap.TenVs != nil {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestExportXLSX(t *testing.T) {
	snaps := []Snapshot{
		Build(sampleState(), tenvs.Scorer, now),
		Build(domain.CaseState{Case: domain.Case{ID: "case-2", ClientName: "John Doe"}}, nil, now),
	}
	data, err := ExportXLSX(snaps)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SummarySheet)
	if err != nil {
		t.Fatalf("summary rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "case-1" || rows[1][4] != "No" || rows[2][4] != "Yes" {
		t.Fatalf("unexpected summary rows: %v", rows)
	}

	issues, err := f.GetRows(IssuesSheet)
	if err != nil {
		t.Fatalf("issue rows: %v", err)
	}
	want := 1 + len(snaps[0].Lockdown.Issues) + len(snaps[1].Lockdown.Issues)
	if len(issues) != want {
		t.Fatalf("expected %d issue rows, got %d", want, len(issues))
	}
	if issues[1][2] != string(domain.CodeOpenHighFlags) {
		t.Fatalf("first issue should be OPEN_HIGH_FLAGS, got %v", issues[1])
	}
}
