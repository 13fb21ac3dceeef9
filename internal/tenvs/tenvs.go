// Package tenvs maps a 4Ps assessment onto the 10-Vs care framework.
//
// It is the default risk scorer for cases that have no recorded risk summary:
// triggers become required RN actions, flags and 4Ps factors drive a suggested
// severity, and vitality inputs produce a score and RAG band.
package tenvs

import (
	"math"
	"strings"

	"caregate/internal/domain"
	"caregate/internal/lockdown"
)

type VCode string

const (
	V1VoiceView    VCode = "V1_VOICE_VIEW"
	V2Viability    VCode = "V2_VIABILITY"
	V3Vision       VCode = "V3_VISION"
	V4Veracity     VCode = "V4_VERACITY"
	V5Versatility  VCode = "V5_VERSATILITY"
	V6Vitality     VCode = "V6_VITALITY"
	V7Vigilance    VCode = "V7_VIGILANCE"
	V8Verification VCode = "V8_VERIFICATION"
	V9Value        VCode = "V9_VALUE"
	V10Validation  VCode = "V10_VALIDATION"
)

var actionLabels = map[VCode]string{
	V1VoiceView:    "Document Voice/View plan",
	V2Viability:    "Document Viability plan",
	V3Vision:       "Document Vision (trajectory of care) plan",
	V4Veracity:     "Document Veracity (advocacy, integrity, documentation) plan",
	V5Versatility:  "Document Versatility (individualized approach) plan",
	V6Vitality:     "Document Vitality (momentum & engagement) plan",
	V7Vigilance:    "Document Vigilance (risk monitoring) plan",
	V8Verification: "Document Verification (guidelines & payer alignment) plan",
	V9Value:        "Document Value (outcomes/ROI) plan",
	V10Validation:  "Document Validation (quality & oversight) plan",
}

// Label returns the required-action label for the code.
func (c VCode) Label() string {
	if l, ok := actionLabels[c]; ok {
		return l
	}
	return "Document " + string(c) + " plan"
}

const (
	SourcePhysical      = "Physical"
	SourcePsychological = "Psychological"
	SourcePsychosocial  = "Psychosocial"
	SourceProfessional  = "Professional"
	SourceClient        = "Client"
	SourceGlobal        = "Global"
)

// PainThreshold is the pain score at which physical triggers fire.
const PainThreshold = 7

type Trigger struct {
	VCode  VCode  `json:"v_code"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

type RequiredAction struct {
	VCode         VCode  `json:"v_code"`
	Label         string `json:"label"`
	ReasonSummary string `json:"reason_summary"`
	HardStop      bool   `json:"hard_stop"`
}

type Evaluation struct {
	Triggers          []Trigger                `json:"triggers"`
	RequiredActions   []RequiredAction         `json:"required_actions"`
	SuggestedSeverity int                      `json:"suggested_severity"`
	VitalityScore     float64                  `json:"vitality_score"`
	RAGStatus         domain.RAGStatus         `json:"rag_status"`
	Vigilance         domain.VigilanceCategory `json:"vigilance_risk_category"`
}

func painHigh(p domain.Physical) bool {
	return p.PainScore != nil && *p.PainScore >= PainThreshold
}

// BuildTriggers applies the stringent 4Ps to 10-Vs trigger table.
func BuildTriggers(a domain.Assessment) []Trigger {
	var out []Trigger
	add := func(source string, code VCode, reason string) {
		out = append(out, Trigger{VCode: code, Reason: reason, Source: source})
	}
	fp := a.FourPs

	if painHigh(fp.Physical) {
		add(SourcePhysical, V2Viability, "Pain ≥ 7/10 (Physical)")
		add(SourcePhysical, V3Vision, "Pain ≥ 7/10 (Physical)")
		add(SourcePhysical, V7Vigilance, "Pain ≥ 7/10 (Physical) - high risk for deterioration")
	}
	if fp.Physical.UncontrolledChronicCondition {
		add(SourcePhysical, V2Viability, "Uncontrolled chronic condition (Physical)")
		add(SourcePhysical, V3Vision, "Uncontrolled chronic condition - requires clearer trajectory")
		add(SourcePhysical, V8Verification, "Uncontrolled chronic condition - verify guideline alignment and payer expectations")
	}
	if fp.Psychological.PositiveDepressionAnxiety {
		add(SourcePsychological, V2Viability, "Positive depression/anxiety screen")
		add(SourcePsychological, V3Vision, "Positive depression/anxiety - recovery vision affected")
		add(SourcePsychological, V4Veracity, "Positive depression/anxiety - requires clear documentation and advocacy")
		add(SourcePsychological, V7Vigilance, "Positive depression/anxiety - increased vigilance needed")
	}
	if fp.Psychological.HighStress {
		add(SourcePsychological, V2Viability, "Reported high stress")
		add(SourcePsychological, V3Vision, "Reported high stress - impacts ability to pursue plan")
	}
	if fp.Psychosocial.HasSDOHBarrier {
		add(SourcePsychosocial, V2Viability, "SDOH barrier present (transport/food/housing/safety)")
		add(SourcePsychosocial, V4Veracity, "SDOH barrier - advocacy and documentation required")
		add(SourcePsychosocial, V3Vision, "SDOH barrier - plan path may need adjustment")
	}
	if fp.Psychosocial.LimitedSupport {
		add(SourcePsychosocial, V2Viability, "Limited social support")
		add(SourcePsychosocial, V7Vigilance, "Limited social support - higher risk of decompensation")
	}
	if fp.Professional.UnableToWork {
		add(SourceProfessional, V3Vision, "Unable to work / role disruption")
		add(SourceProfessional, V2Viability, "Unable to work - financial/role viability impacted")
	}
	if fp.Professional.AccommodationsNeeded {
		add(SourceProfessional, V3Vision, "Workplace accommodations needed")
		add(SourceProfessional, V4Veracity, "Workplace accommodations - advocacy and documentation required")
	}
	if a.ClientVoice != "" || len(a.Goals) > 0 {
		add(SourceClient, V1VoiceView, "Client voice/view and goals present")
	}
	if fp.AnyHighRiskOrUncontrolled {
		add(SourceGlobal, V7Vigilance, "High-risk/uncontrolled finding (overall clinical impression)")
	}
	return out
}

// RequiredActions groups triggers by code in first-seen order. Each group
// becomes one hard-stop action with its distinct reasons joined by "; ".
func RequiredActions(triggers []Trigger) []RequiredAction {
	var order []VCode
	reasons := map[VCode][]string{}
	seen := map[VCode]map[string]bool{}
	for _, t := range triggers {
		if _, ok := seen[t.VCode]; !ok {
			order = append(order, t.VCode)
			seen[t.VCode] = map[string]bool{}
		}
		if seen[t.VCode][t.Reason] {
			continue
		}
		seen[t.VCode][t.Reason] = true
		reasons[t.VCode] = append(reasons[t.VCode], t.Reason)
	}
	out := make([]RequiredAction, 0, len(order))
	for _, code := range order {
		out = append(out, RequiredAction{
			VCode:         code,
			Label:         code.Label(),
			ReasonSummary: strings.Join(reasons[code], "; "),
			HardStop:      true,
		})
	}
	return out
}

func openFlags(flags []domain.Flag) (open, highCrit int) {
	for _, f := range flags {
		if f.Status != domain.FlagOpen {
			continue
		}
		open++
		if f.Severity.Weight() >= domain.SeverityHigh.Weight() {
			highCrit++
		}
	}
	return open, highCrit
}

// SuggestSeverity scores one point per 4Ps risk factor and two for any open
// High or Critical flag, then maps points onto levels 1..4.
func SuggestSeverity(a domain.Assessment, flags []domain.Flag) int {
	fp := a.FourPs
	points := 0
	for _, hit := range []bool{
		painHigh(fp.Physical),
		fp.Physical.UncontrolledChronicCondition,
		fp.Psychological.PositiveDepressionAnxiety,
		fp.Psychological.HighStress,
		fp.Psychosocial.HasSDOHBarrier,
		fp.Psychosocial.LimitedSupport,
		fp.Professional.UnableToWork,
		fp.Professional.AccommodationsNeeded,
		fp.AnyHighRiskOrUncontrolled,
	} {
		if hit {
			points++
		}
	}
	if _, hc := openFlags(flags); hc > 0 {
		points += 2
	}
	switch {
	case points <= 1:
		return 1
	case points <= 3:
		return 2
	case points <= 5:
		return 3
	}
	return 4
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func orDefault(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// ComputeVitality averages engagement, plan progress and risk stability.
// Missing stability is inferred from open flags. Open High or Critical flags
// force Red regardless of score.
func ComputeVitality(flags []domain.Flag, in domain.VitalityInputs) (float64, domain.RAGStatus) {
	open, highCrit := openFlags(flags)
	inferred := 7.0
	if highCrit > 0 {
		inferred = 3
	} else if open > 0 {
		inferred = 5
	}
	engagement := clamp(orDefault(in.Engagement, 5), 1, 10)
	progress := clamp(orDefault(in.PlanProgress, 5), 1, 10)
	stability := clamp(orDefault(in.RiskStability, inferred), 1, 10)

	score := math.Round((engagement+progress+stability)/3*10) / 10

	switch {
	case score < 4 || highCrit > 0:
		return score, domain.RAGRed
	case score < 8 || open > 0:
		return score, domain.RAGAmber
	}
	return score, domain.RAGGreen
}

// VigilanceCategory grades monitoring risk by how many V7 triggers fired.
func VigilanceCategory(triggers []Trigger) domain.VigilanceCategory {
	n := 0
	for _, t := range triggers {
		if t.VCode == V7Vigilance {
			n++
		}
	}
	switch {
	case n >= 2:
		return domain.VigilanceHigh
	case n == 1:
		return domain.VigilanceModerate
	}
	return domain.VigilanceLow
}

// Evaluate runs the full 10-Vs pass for an assessment and the case flags.
func Evaluate(a domain.Assessment, flags []domain.Flag) Evaluation {
	triggers := BuildTriggers(a)
	if triggers == nil {
		triggers = []Trigger{}
	}
	score, rag := ComputeVitality(flags, a.Vitality)
	return Evaluation{
		Triggers:          triggers,
		RequiredActions:   RequiredActions(triggers),
		SuggestedSeverity: SuggestSeverity(a, flags),
		VitalityScore:     score,
		RAGStatus:         rag,
		Vigilance:         VigilanceCategory(triggers),
	}
}

// Scorer derives a risk summary from the latest assessment. Cases without an
// assessment yield nil so lockdown defaults apply.
var Scorer lockdown.Scorer = lockdown.ScorerFunc(func(state domain.CaseState) *domain.RiskSummary {
	if state.Assessment == nil {
		return nil
	}
	ev := Evaluate(*state.Assessment, state.Flags)
	score := ev.VitalityScore
	return &domain.RiskSummary{
		VitalityScore:         &score,
		RAGStatus:             ev.RAGStatus,
		VigilanceRiskCategory: ev.Vigilance,
		Source:                "tenvs",
		RecordedAt:            state.Assessment.RecordedAt,
	}
})
