package policy

import (
	"github.com/loanpilot/sentinel/internal/domain"
)

// BaselineFromSnapshot builds a full-replacement baseline from the current
// session snapshot ("mark this as normal"). Empty interval buffers fall back
// to the same neutral means the scorer assumes, so an immediately-rescored
// session reads as consistent.
func BaselineFromSnapshot(userID string, snapshot domain.SessionBehaviorSnapshot, devicePattern string) *domain.BehaviorBaseline {
	return &domain.BehaviorBaseline{
		UserID:             userID,
		TypicalLoginHours:  []int{snapshot.LoginHour},
		AvgSessionDuration: snapshot.SessionDurationMinutes,
		AvgClickInterval:   meanOrDefault(snapshot.ClickIntervals, neutralClickIntervalMs),
		AvgTypingInterval:  meanOrDefault(snapshot.KeyIntervals, neutralTypingIntervalMs),
		AvgMouseVariance:   snapshot.MouseMovementVariance,
		DevicePattern:      devicePattern,
	}
}
