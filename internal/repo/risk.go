package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"caregate/internal/domain"
)

func (r Repo) UpsertRisk(ctx context.Context, tx *sql.Tx, caseID string, rs domain.RiskSummary) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO risk_summaries(case_id,vitality_score,rag_status,vigilance_risk_category,source,recorded_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(case_id) DO UPDATE SET vitality_score=excluded.vitality_score, rag_status=excluded.rag_status,
vigilance_risk_category=excluded.vigilance_risk_category, source=excluded.source, recorded_at=excluded.recorded_at`,
		caseID, nullableFloatPtr(rs.VitalityScore), nullable(string(rs.RAGStatus)), nullable(string(rs.VigilanceRiskCategory)), rs.Source, rs.RecordedAt)
	return err
}

// GetRisk returns the recorded risk summary, or ErrNotFound when none exists.
func (r Repo) GetRisk(ctx context.Context, tx *sql.Tx, caseID string) (domain.RiskSummary, error) {
	var rs domain.RiskSummary
	var vitality sql.NullFloat64
	var rag, vig sql.NullString
	err := r.on(tx).QueryRowContext(ctx, `SELECT vitality_score,rag_status,vigilance_risk_category,source,recorded_at FROM risk_summaries WHERE case_id=?`, caseID).
		Scan(&vitality, &rag, &vig, &rs.Source, &rs.RecordedAt)
	if err == sql.ErrNoRows {
		return rs, ErrNotFound
	}
	if err != nil {
		return rs, err
	}
	if vitality.Valid {
		v := vitality.Float64
		rs.VitalityScore = &v
	}
	rs.RAGStatus = domain.RAGStatus(rag.String)
	rs.VigilanceRiskCategory = domain.VigilanceCategory(vig.String)
	return rs, nil
}

func (r Repo) UpsertAssessment(ctx context.Context, tx *sql.Tx, a domain.Assessment) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO assessments(case_id,payload_json,recorded_at) VALUES (?,?,?)
ON CONFLICT(case_id) DO UPDATE SET payload_json=excluded.payload_json, recorded_at=excluded.recorded_at`,
		a.CaseID, string(payload), a.RecordedAt)
	return err
}

func (r Repo) GetAssessment(ctx context.Context, tx *sql.Tx, caseID string) (domain.Assessment, error) {
	var payload string
	err := r.on(tx).QueryRowContext(ctx, `SELECT payload_json FROM assessments WHERE case_id=?`, caseID).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.Assessment{}, ErrNotFound
	}
	if err != nil {
		return domain.Assessment{}, err
	}
	var a domain.Assessment
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return domain.Assessment{}, err
	}
	return a, nil
}
