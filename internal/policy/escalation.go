package policy

import (
	"fmt"
	"strings"

	"github.com/loanpilot/sentinel/internal/domain"
)

// Escalation describes what the caller must do with an anomalous result:
// which severity to log the security event at and what to tell the user.
type Escalation struct {
	LogEvent          bool
	Severity          domain.Severity
	NotifyTitle       string
	NotifyDescription string
}

// Escalate maps a scoring result to its side-effect plan. Non-anomalous
// results produce no event and no notification.
func Escalate(result domain.AnomalyResult) Escalation {
	if !result.IsAnomalous {
		return Escalation{}
	}

	esc := Escalation{
		LogEvent:    true,
		Severity:    SeverityForRisk(result.RiskLevel),
		NotifyTitle: "Unusual account activity detected",
		NotifyDescription: fmt.Sprintf(
			"Session behavior deviated from your usual pattern (score %d: %s).",
			result.AnomalyScore, strings.Join(result.DeviationFactors, ", ")),
	}
	if result.RequiresAdditionalVerification {
		esc.NotifyDescription += " Additional verification is required to continue."
	}
	return esc
}

// SeverityForRisk maps a risk tier to the persisted event severity. Anomalous
// results are always at least medium.
func SeverityForRisk(level domain.RiskLevel) domain.Severity {
	switch level {
	case domain.RiskCritical:
		return domain.SeverityCritical
	case domain.RiskHigh:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}
