package server

import (
	"encoding/json"

	"caregate/internal/domain"
)

// Request payloads

type CreateCaseRequest struct {
	ID           *string `json:"id,omitempty"`
	ClientName   string  `json:"client_name" minLength:"1"`
	AttorneyName string  `json:"attorney_name,omitempty"`
	CaseType     string  `json:"case_type,omitempty"`
}

type UpdateCaseRequest struct {
	ClientName   *string `json:"client_name,omitempty"`
	AttorneyName *string `json:"attorney_name,omitempty"`
	CaseType     *string `json:"case_type,omitempty"`
	// Status only reopens; closing uses POST /cases/{case_id}/close.
	Status *string `json:"status,omitempty" enum:"active,closed"`
}

type CreateFlagRequest struct {
	ID          *string `json:"id,omitempty"`
	Type        string  `json:"type" minLength:"1" example:"Clinical"`
	Label       string  `json:"label" minLength:"1"`
	Description string  `json:"description,omitempty"`
	Severity    string  `json:"severity" doc:"Low, Moderate, High or Critical (case-insensitive)"`
}

type CreateTaskRequest struct {
	ID         *string `json:"id,omitempty"`
	Type       string  `json:"type,omitempty" example:"follow_up"`
	Title      string  `json:"title" minLength:"1"`
	DueDate    string  `json:"due_date,omitempty" format:"date"`
	AssignedTo string  `json:"assigned_to,omitempty"`
}

type SetTaskStatusRequest struct {
	Status string `json:"status" doc:"Open, Completed or Cancelled (case-insensitive)"`
}

type RecordRiskRequest struct {
	VitalityScore         *float64 `json:"vitality_score,omitempty" minimum:"0" maximum:"10"`
	RAGStatus             string   `json:"rag_status,omitempty" doc:"Red, Amber or Green (case-insensitive)"`
	VigilanceRiskCategory string   `json:"vigilance_risk_category,omitempty" doc:"Low, Moderate or High (case-insensitive)"`
	Source                string   `json:"source,omitempty"`
}

type RecordAssessmentRequest struct {
	FourPs      domain.FourPs         `json:"four_ps,omitempty"`
	Vitality    domain.VitalityInputs `json:"vitality,omitempty"`
	ClientVoice string                `json:"client_voice,omitempty"`
	Goals       []string              `json:"goals,omitempty"`
}

type ReleaseRequest struct {
	ReportKind     string `json:"report_kind" example:"attorney_summary"`
	Override       bool   `json:"override,omitempty"`
	OverrideReason string `json:"override_reason,omitempty"`
}

type CloseCaseRequest struct {
	ClosureType string `json:"closure_type" example:"FINALIZED_SETTLEMENT" doc:"RN_CM_TASKS_COMPLETE_PENDING_SETTLEMENT, FINALIZED_SETTLEMENT or ADMINISTRATIVE_CLOSURE (case-insensitive)"`
	AdminReason string `json:"admin_reason,omitempty" example:"LOST_TO_FOLLOW_UP"`
	Note        string `json:"note,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	OrgID   string   `json:"org_id"`
	Roles   []string `json:"roles,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedCases struct {
	Items      []domain.Case `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type ReleaseResponse struct {
	Release domain.Release     `json:"release"`
	Run     domain.LockdownRun `json:"run"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := map[string]any{}
	if evt.Payload != "" {
		_ = json.Unmarshal([]byte(evt.Payload), &payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		OrgID:      evt.OrgID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}
