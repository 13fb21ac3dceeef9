package domain

import (
	"fmt"
	"strings"
)

type FlagSeverity string

const (
	SeverityLow      FlagSeverity = "Low"
	SeverityModerate FlagSeverity = "Moderate"
	SeverityHigh     FlagSeverity = "High"
	SeverityCritical FlagSeverity = "Critical"
)

var flagSeverities = []FlagSeverity{SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical}

// Weight orders severities by escalation; unknown values weigh 0.
func (s FlagSeverity) Weight() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityModerate:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func (s FlagSeverity) Valid() bool { return s.Weight() > 0 }

func ParseFlagSeverity(v string) (FlagSeverity, error) {
	return parseEnum("flag severity", v, flagSeverities)
}

type FlagStatus string

const (
	FlagOpen   FlagStatus = "Open"
	FlagClosed FlagStatus = "Closed"
)

var flagStatuses = []FlagStatus{FlagOpen, FlagClosed}

func (s FlagStatus) Valid() bool { return s == FlagOpen || s == FlagClosed }

func ParseFlagStatus(v string) (FlagStatus, error) {
	return parseEnum("flag status", v, flagStatuses)
}

type TaskStatus string

const (
	TaskOpen      TaskStatus = "Open"
	TaskCompleted TaskStatus = "Completed"
	TaskCancelled TaskStatus = "Cancelled"
)

var taskStatuses = []TaskStatus{TaskOpen, TaskCompleted, TaskCancelled}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskOpen, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

func ParseTaskStatus(v string) (TaskStatus, error) {
	return parseEnum("task status", v, taskStatuses)
}

type IssueSeverity string

const (
	IssueInfo  IssueSeverity = "INFO"
	IssueWarn  IssueSeverity = "WARN"
	IssueBlock IssueSeverity = "BLOCK"
)

type IssueCode string

const (
	CodeOpenCriticalFlags          IssueCode = "OPEN_CRITICAL_FLAGS"
	CodeOpenHighFlags              IssueCode = "OPEN_HIGH_FLAGS"
	CodeUnresolvedVigilance        IssueCode = "UNRESOLVED_VIGILANCE"
	CodeLowVitality                IssueCode = "LOW_VITALITY"
	CodeOpenTasks                  IssueCode = "OPEN_TASKS"
	CodeOverdueTasks               IssueCode = "OVERDUE_TASKS"
	CodeMissingVeracityAttestation IssueCode = "MISSING_VERACITY_ATTESTATION"
	CodeMissingVerificationReview  IssueCode = "MISSING_VERIFICATION_REVIEW"
	CodeMissingClientAck           IssueCode = "MISSING_CLIENT_ACK"
	CodeOther                      IssueCode = "OTHER"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
)

type VigilanceCategory string

const (
	VigilanceLow      VigilanceCategory = "Low"
	VigilanceModerate VigilanceCategory = "Moderate"
	VigilanceHigh     VigilanceCategory = "High"
)

var vigilanceCategories = []VigilanceCategory{VigilanceLow, VigilanceModerate, VigilanceHigh}

func (v VigilanceCategory) Valid() bool {
	switch v {
	case VigilanceLow, VigilanceModerate, VigilanceHigh:
		return true
	}
	return false
}

func ParseVigilanceCategory(v string) (VigilanceCategory, error) {
	return parseEnum("vigilance category", v, vigilanceCategories)
}

type RAGStatus string

const (
	RAGRed   RAGStatus = "Red"
	RAGAmber RAGStatus = "Amber"
	RAGGreen RAGStatus = "Green"
)

var ragStatuses = []RAGStatus{RAGRed, RAGAmber, RAGGreen}

func (r RAGStatus) Valid() bool {
	switch r {
	case RAGRed, RAGAmber, RAGGreen:
		return true
	}
	return false
}

func ParseRAGStatus(v string) (RAGStatus, error) {
	return parseEnum("rag status", v, ragStatuses)
}

type CaseStatus string

const (
	CaseActive CaseStatus = "active"
	CaseClosed CaseStatus = "closed"
)

type ClosureType string

const (
	ClosureTasksCompletePendingSettlement ClosureType = "RN_CM_TASKS_COMPLETE_PENDING_SETTLEMENT"
	ClosureFinalizedSettlement            ClosureType = "FINALIZED_SETTLEMENT"
	ClosureAdministrative                 ClosureType = "ADMINISTRATIVE_CLOSURE"
)

var closureTypes = []ClosureType{ClosureTasksCompletePendingSettlement, ClosureFinalizedSettlement, ClosureAdministrative}

func ParseClosureType(v string) (ClosureType, error) {
	return parseEnum("closure type", v, closureTypes)
}

type AdminClosureReason string

const (
	AdminLostToFollowUp        AdminClosureReason = "LOST_TO_FOLLOW_UP"
	AdminRefusedServices       AdminClosureReason = "REFUSED_SERVICES"
	AdminMovedOutOfArea        AdminClosureReason = "MOVED_OUT_OF_AREA"
	AdminNonResponsiveAttorney AdminClosureReason = "NON_RESPONSIVE_ATTORNEY"
	AdminOther                 AdminClosureReason = "OTHER"
)

var adminClosureReasons = []AdminClosureReason{AdminLostToFollowUp, AdminRefusedServices, AdminMovedOutOfArea, AdminNonResponsiveAttorney, AdminOther}

func ParseAdminClosureReason(v string) (AdminClosureReason, error) {
	return parseEnum("admin closure reason", v, adminClosureReasons)
}

func parseEnum[T ~string](what, v string, allowed []T) (T, error) {
	trimmed := strings.TrimSpace(v)
	for _, a := range allowed {
		if strings.EqualFold(trimmed, string(a)) {
			return a, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", what, v)
}
