package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"caregate/internal/audit"
	"caregate/internal/closure"
	"caregate/internal/domain"
	"caregate/internal/engine"
)

func registerLockdown(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "preview-lockdown",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/lockdown",
		Summary:     "Preview the release gate for a case",
		Description: "Runs the lockdown rules against the current case state. Nothing is stored.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body domain.LockdownPreview `json:"body"`
	}, error) {
		p, err := e.PreviewLockdown(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LockdownPreview `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-lockdown",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/lockdown",
		Summary:     "Evaluate the release gate for a case",
		Description: "Runs the lockdown rules against the current case state and stores the run.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body domain.LockdownRun `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		run, err := e.EvaluateLockdown(ctx, input.CaseID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LockdownRun `json:"body"`
		}{Body: run}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-lockdown-runs",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/lockdown/runs",
		Summary:     "List stored lockdown runs",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		Limit  int    `query:"limit" default:"20"`
	}) (*struct {
		Body []domain.LockdownRun `json:"body"`
	}, error) {
		runs, err := e.ListLockdownRuns(ctx, input.CaseID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if runs == nil {
			runs = []domain.LockdownRun{}
		}
		return &struct {
			Body []domain.LockdownRun `json:"body"`
		}{Body: runs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "release-report",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/releases",
		Summary:       "Release an external report",
		Description:   "Refused with 409 release_blocked while any BLOCK issue is open, unless an allowed override with a reason is given.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		CaseID string         `path:"case_id"`
		Body   ReleaseRequest `json:"body"`
	}) (*struct {
		Body ReleaseResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rel, err := e.ReleaseReport(ctx, engine.ReleaseOptions{
			CaseID:         input.CaseID,
			ReportKind:     input.Body.ReportKind,
			Override:       input.Body.Override,
			OverrideReason: input.Body.OverrideReason,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		run, err := e.Repo.GetLockdownRun(ctx, nil, rel.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReleaseResponse `json:"body"`
		}{Body: ReleaseResponse{Release: rel, Run: run}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-releases",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/releases",
		Summary:     "List report releases",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body []domain.Release `json:"body"`
	}, error) {
		items, err := e.ListReleases(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Release `json:"body"`
		}{Body: items}, nil
	})
}

func registerClosure(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "assess-severity",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/severity",
		Summary:     "Assess case severity level",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body closure.SeverityAssessment `json:"body"`
	}, error) {
		sev, err := e.AssessSeverity(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body closure.SeverityAssessment `json:"body"`
		}{Body: sev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recommend-closure",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/closure",
		Summary:     "Recommend whether the case may close",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body closure.Recommendation `json:"body"`
	}, error) {
		rec, err := e.RecommendClosure(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body closure.Recommendation `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-case",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/close",
		Summary:     "Close a case",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		CaseID string           `path:"case_id"`
		Body   CloseCaseRequest `json:"body"`
	}) (*struct {
		Body domain.Case `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CloseCase(ctx, engine.CloseOptions{
			CaseID:      input.CaseID,
			Type:        input.Body.ClosureType,
			AdminReason: input.Body.AdminReason,
			Note:        input.Body.Note,
			Force:       input.Body.Force,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Case `json:"body"`
		}{Body: c}, nil
	})
}

type xlsxOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "audit-case",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/audit",
		Summary:     "Supervisor quick-audit snapshot",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body audit.Snapshot `json:"body"`
	}, error) {
		snap, err := e.AuditSnapshot(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body audit.Snapshot `json:"body"`
		}{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-audit",
		Method:      http.MethodGet,
		Path:        "/audit/export.xlsx",
		Summary:     "Export audit snapshots as a spreadsheet",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,closed"`
	}) (*xlsxOutput, error) {
		data, err := e.ExportAudit(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		name := "caregate-audit"
		if input.Status != "" {
			name += "-" + input.Status
		}
		return &xlsxOutput{
			ContentType:        "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			ContentDisposition: fmt.Sprintf(`attachment; filename="%s.xlsx"`, name),
			Body:               data,
		}, nil
	})
}
