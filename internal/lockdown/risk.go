package lockdown

import "caregate/internal/domain"

const (
	DefaultVitality  = 5.0
	DefaultRAG       = domain.RAGAmber
	DefaultVigilance = domain.VigilanceModerate
)

// Scorer produces a risk summary for a case. A nil result means "no score";
// the evaluator then falls back to defaults.
type Scorer interface {
	Score(state domain.CaseState) *domain.RiskSummary
}

type ScorerFunc func(state domain.CaseState) *domain.RiskSummary

func (f ScorerFunc) Score(state domain.CaseState) *domain.RiskSummary { return f(state) }

// Recorded returns the summary already attached to the state.
var Recorded Scorer = ScorerFunc(func(state domain.CaseState) *domain.RiskSummary {
	return state.Risk
})

// Chain tries scorers in order and returns the first non-nil summary.
func Chain(scorers ...Scorer) Scorer {
	return ScorerFunc(func(state domain.CaseState) *domain.RiskSummary {
		for _, s := range scorers {
			if s == nil {
				continue
			}
			if r := s.Score(state); r != nil {
				return r
			}
		}
		return nil
	})
}

// ResolveRisk fills absent fields with the middle-ground defaults
// (vitality 5, Amber, Moderate vigilance). The input is not modified.
func ResolveRisk(r *domain.RiskSummary) domain.RiskSummary {
	var out domain.RiskSummary
	if r != nil {
		out = *r
	}
	if out.VitalityScore == nil {
		v := DefaultVitality
		out.VitalityScore = &v
	} else {
		v := *out.VitalityScore
		out.VitalityScore = &v
	}
	if out.RAGStatus == "" {
		out.RAGStatus = DefaultRAG
	}
	if out.VigilanceRiskCategory == "" {
		out.VigilanceRiskCategory = DefaultVigilance
	}
	if r == nil {
		out.Source = "default"
	}
	return out
}

// VitalityBand maps a vitality score onto the Red/Amber/Green zones.
func VitalityBand(score float64) domain.RAGStatus {
	switch {
	case score < 4:
		return domain.RAGRed
	case score < 8:
		return domain.RAGAmber
	}
	return domain.RAGGreen
}
