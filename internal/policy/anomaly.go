package policy

import (
	"math"

	"github.com/loanpilot/sentinel/internal/domain"
)

// Rule weights. The anomaly score is the raw additive sum of triggered
// weights; it is deliberately not clamped, so combined triggers can exceed 100.
const (
	weightUnusualLoginTime     = 25
	weightExtendedSession      = 20
	weightUnusualClickPattern  = 15
	weightUnusualTypingPattern = 15
	weightUnusualMouseBehavior = 10
	weightBotLikeConsistency   = 30
)

// Decision thresholds.
const (
	anomalousThreshold    = 50 // score above this flags the session
	verificationThreshold = 70 // score above this escalates to extra verification
)

// Neutral defaults substituted when a snapshot carries no interval samples.
// "No data yet" is scored as consistent with these assumed means rather than
// skipping the rule, so a sparse session cannot dodge a baseline comparison.
const (
	neutralClickIntervalMs  = 2000.0
	neutralTypingIntervalMs = 150.0
)

// Deviation tolerances per rule.
const (
	clickIntervalToleranceMs  = 1000.0
	typingIntervalToleranceMs = 100.0
	mouseVarianceTolerance    = 30.0
	botConsistencyStdDev      = 10.0
)

// ScoreSnapshot evaluates a session snapshot against a stored baseline and
// returns a deterministic anomaly result. A nil baseline means no deviation
// can be detected and always yields a zero, non-anomalous result.
func ScoreSnapshot(snapshot domain.SessionBehaviorSnapshot, baseline *domain.BehaviorBaseline) domain.AnomalyResult {
	if baseline == nil {
		return zeroResult(nil)
	}

	var score int
	factors := []string{}

	if !baseline.HasTypicalLoginHour(snapshot.LoginHour) {
		score += weightUnusualLoginTime
		factors = append(factors, domain.FactorUnusualLoginTime)
	}

	if snapshot.SessionDurationMinutes > 2*baseline.AvgSessionDuration {
		score += weightExtendedSession
		factors = append(factors, domain.FactorExtendedSession)
	}

	clickMean := meanOrDefault(snapshot.ClickIntervals, neutralClickIntervalMs)
	if math.Abs(clickMean-baseline.AvgClickInterval) > clickIntervalToleranceMs {
		score += weightUnusualClickPattern
		factors = append(factors, domain.FactorUnusualClickPattern)
	}

	typingMean := meanOrDefault(snapshot.KeyIntervals, neutralTypingIntervalMs)
	if math.Abs(typingMean-baseline.AvgTypingInterval) > typingIntervalToleranceMs {
		score += weightUnusualTypingPattern
		factors = append(factors, domain.FactorUnusualTypingPattern)
	}

	if math.Abs(snapshot.MouseMovementVariance-baseline.AvgMouseVariance) > mouseVarianceTolerance {
		score += weightUnusualMouseBehavior
		factors = append(factors, domain.FactorUnusualMouseBehavior)
	}

	if len(snapshot.ClickIntervals) >= 2 && stdDev(snapshot.ClickIntervals) < botConsistencyStdDev {
		score += weightBotLikeConsistency
		factors = append(factors, domain.FactorBotLikeConsistency)
	}

	return domain.AnomalyResult{
		IsAnomalous:                    score > anomalousThreshold,
		AnomalyScore:                   score,
		DeviationFactors:               factors,
		RequiresAdditionalVerification: score > verificationThreshold,
		RiskLevel:                      RiskLevelForScore(score),
	}
}

// ErrorResult is the fail-open result returned when scoring inputs could not
// be assembled (e.g. the baseline fetch failed). It never flags the session.
func ErrorResult() domain.AnomalyResult {
	return zeroResult([]string{domain.FactorAnalysisError})
}

// RiskLevelForScore buckets a raw anomaly score into a risk tier.
func RiskLevelForScore(score int) domain.RiskLevel {
	switch {
	case score >= 80:
		return domain.RiskCritical
	case score >= 60:
		return domain.RiskHigh
	case score >= 30:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func zeroResult(factors []string) domain.AnomalyResult {
	if factors == nil {
		factors = []string{}
	}
	return domain.AnomalyResult{
		IsAnomalous:                    false,
		AnomalyScore:                   0,
		DeviationFactors:               factors,
		RequiresAdditionalVerification: false,
		RiskLevel:                      domain.RiskLow,
	}
}

func meanOrDefault(values []float64, def float64) float64 {
	if len(values) == 0 {
		return def
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the population standard deviation.
func stdDev(values []float64) float64 {
	mean := meanOrDefault(values, 0)
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
