package domain

type Case struct {
	ID           string      `json:"id"`
	OrgID        string      `json:"org_id"`
	ClientName   string      `json:"client_name"`
	AttorneyName string      `json:"attorney_name,omitempty"`
	CaseType     string      `json:"case_type,omitempty"`
	Status       CaseStatus  `json:"status" enum:"active,closed"`
	ClosureType  ClosureType `json:"closure_type,omitempty"`
	CreatedAt    string      `json:"created_at" format:"date-time"`
	UpdatedAt    string      `json:"updated_at" format:"date-time"`
}

type Flag struct {
	ID          string       `json:"id"`
	CaseID      string       `json:"case_id"`
	Type        string       `json:"type"`
	Label       string       `json:"label"`
	Description string       `json:"description,omitempty"`
	Severity    FlagSeverity `json:"severity" enum:"Low,Moderate,High,Critical"`
	Status      FlagStatus   `json:"status" enum:"Open,Closed"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
	ResolvedAt  *string      `json:"resolved_at,omitempty" format:"date-time"`
}

type Task struct {
	ID         string     `json:"task_id"`
	CaseID     string     `json:"case_id"`
	Type       string     `json:"type"`
	Title      string     `json:"title"`
	DueDate    *string    `json:"due_date,omitempty" format:"date"`
	Status     TaskStatus `json:"status" enum:"Open,Completed,Cancelled"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
	AssignedTo *string    `json:"assigned_to,omitempty"`
}

// RiskSummary is produced by a scoring collaborator. Empty fields are filled
// with lockdown defaults at evaluation time.
type RiskSummary struct {
	VitalityScore         *float64          `json:"vitality_score,omitempty"`
	RAGStatus             RAGStatus         `json:"rag_status,omitempty"`
	VigilanceRiskCategory VigilanceCategory `json:"vigilance_risk_category,omitempty"`
	Source                string            `json:"source,omitempty"`
	RecordedAt            string            `json:"recorded_at,omitempty" format:"date-time"`
}

type Physical struct {
	PainScore                    *int `json:"pain_score,omitempty"`
	UncontrolledChronicCondition bool `json:"uncontrolled_chronic_condition,omitempty"`
}

type Psychological struct {
	PositiveDepressionAnxiety bool `json:"positive_depression_anxiety,omitempty"`
	HighStress                bool `json:"high_stress,omitempty"`
}

type Psychosocial struct {
	HasSDOHBarrier bool `json:"has_sdoh_barrier,omitempty"`
	LimitedSupport bool `json:"limited_support,omitempty"`
}

type Professional struct {
	UnableToWork         bool `json:"unable_to_work,omitempty"`
	AccommodationsNeeded bool `json:"accommodations_needed,omitempty"`
}

type FourPs struct {
	Physical                  Physical      `json:"physical,omitempty"`
	Psychological             Psychological `json:"psychological,omitempty"`
	Psychosocial              Psychosocial  `json:"psychosocial,omitempty"`
	Professional              Professional  `json:"professional,omitempty"`
	AnyHighRiskOrUncontrolled bool          `json:"any_high_risk_or_uncontrolled,omitempty"`
}

type VitalityInputs struct {
	Engagement    *float64 `json:"engagement,omitempty"`
	PlanProgress  *float64 `json:"plan_progress,omitempty"`
	RiskStability *float64 `json:"risk_stability,omitempty"`
}

// Assessment is the latest clinical intake snapshot for a case.
type Assessment struct {
	CaseID      string         `json:"case_id"`
	FourPs      FourPs         `json:"four_ps"`
	Vitality    VitalityInputs `json:"vitality"`
	ClientVoice string         `json:"client_voice,omitempty"`
	Goals       []string       `json:"goals,omitempty"`
	RecordedAt  string         `json:"recorded_at" format:"date-time"`
}

// CaseState is everything the release gate and the scorers read for one case.
type CaseState struct {
	Case       Case         `json:"case"`
	Flags      []Flag       `json:"flags"`
	Tasks      []Task       `json:"tasks"`
	Assessment *Assessment  `json:"assessment,omitempty"`
	Risk       *RiskSummary `json:"risk,omitempty"`
}

type Issue struct {
	Code     IssueCode     `json:"code"`
	Message  string        `json:"message"`
	Severity IssueSeverity `json:"severity" enum:"INFO,WARN,BLOCK"`
}

type LockdownResult struct {
	CanRelease bool      `json:"can_release"`
	RiskLevel  RiskLevel `json:"risk_level" enum:"LOW,MODERATE,HIGH"`
	Issues     []Issue   `json:"issues"`
}

type LockdownRun struct {
	ID          string         `json:"id"`
	CaseID      string         `json:"case_id"`
	EvaluatedOn string         `json:"evaluated_on" format:"date"`
	Result      LockdownResult `json:"result"`
	Risk        RiskSummary    `json:"risk"`
	ActorID     string         `json:"actor_id"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
}

// LockdownPreview is an evaluation that was not stored.
type LockdownPreview struct {
	CaseID      string         `json:"case_id"`
	EvaluatedOn string         `json:"evaluated_on" format:"date"`
	Result      LockdownResult `json:"result"`
	Risk        RiskSummary    `json:"risk"`
}

type Release struct {
	ID             string `json:"id"`
	CaseID         string `json:"case_id"`
	ReportKind     string `json:"report_kind"`
	RunID          string `json:"run_id"`
	Overridden     bool   `json:"overridden"`
	OverrideReason string `json:"override_reason,omitempty"`
	ActorID        string `json:"actor_id"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
