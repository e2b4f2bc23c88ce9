package domain

// RiskLevel classifies the outcome of a behavioral scoring pass.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Severity grades persisted security events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SessionBehaviorSnapshot is the rolling behavioral summary of one active
// session. It lives only in memory; persisted records carry derived aggregates,
// never the snapshot verbatim.
type SessionBehaviorSnapshot struct {
	LoginHour              int       `json:"login_hour"`
	SessionDurationMinutes float64   `json:"session_duration_minutes"`
	ClickIntervals         []float64 `json:"click_intervals"`
	KeyIntervals           []float64 `json:"key_intervals"`
	MouseMovementVariance  float64   `json:"mouse_movement_variance"`
	DeviceFingerprint      string    `json:"device_fingerprint"`
}

// BehaviorBaseline is a user's learned-normal behavior summary. One row per
// user; each baseline update fully replaces the previous one.
type BehaviorBaseline struct {
	UserID             string    `json:"user_id"`
	TypicalLoginHours  []int     `json:"typical_login_hours"`
	AvgSessionDuration float64   `json:"avg_session_duration"`
	AvgClickInterval   float64   `json:"avg_click_interval"`
	AvgTypingInterval  float64   `json:"avg_typing_interval"`
	AvgMouseVariance   float64   `json:"avg_mouse_variance"`
	DevicePattern      string    `json:"device_pattern"`
	TypicalCountry     string    `json:"typical_country,omitempty"`
}

// HasTypicalLoginHour reports whether hour is in the baseline's learned set.
func (b *BehaviorBaseline) HasTypicalLoginHour(hour int) bool {
	for _, h := range b.TypicalLoginHours {
		if h == hour {
			return true
		}
	}
	return false
}

// AnomalyResult is the outcome of scoring one snapshot against a baseline.
// AnomalyScore is the raw additive sum of triggered rule weights; it is not
// clamped to 100, combined triggers can exceed it.
type AnomalyResult struct {
	IsAnomalous                    bool      `json:"is_anomalous"`
	AnomalyScore                   int       `json:"anomaly_score"`
	DeviationFactors               []string  `json:"deviation_factors"`
	RequiresAdditionalVerification bool      `json:"requires_additional_verification"`
	RiskLevel                      RiskLevel `json:"risk_level"`
}

// Deviation factor vocabulary. Factor names are part of the persisted event
// payloads and must stay stable.
const (
	FactorUnusualLoginTime     = "unusual_login_time"
	FactorExtendedSession      = "extended_session"
	FactorUnusualClickPattern  = "unusual_click_pattern"
	FactorUnusualTypingPattern = "unusual_typing_pattern"
	FactorUnusualMouseBehavior = "unusual_mouse_behavior"
	FactorBotLikeConsistency   = "bot_like_consistency"
	FactorAnalysisError        = "analysis_error"
)
