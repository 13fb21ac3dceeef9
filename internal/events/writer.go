package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	CaseCreated        = "case.created"
	CaseUpdated        = "case.updated"
	CaseDeleted        = "case.deleted"
	CaseStatusChanged  = "case.status_changed"
	CaseClosed         = "case.closed"
	FlagAdded          = "flag.added"
	FlagResolved       = "flag.resolved"
	TaskCreated        = "task.created"
	TaskStatusChanged  = "task.status_changed"
	RiskRecorded       = "risk.recorded"
	AssessmentRecorded = "assessment.recorded"
	LockdownEvaluated  = "lockdown.evaluated"
	ReportReleased     = "release.created"
	ReleaseOverride    = "release.override"
	ConfigImported     = "config.imported"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, orgID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,org_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(orgID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
