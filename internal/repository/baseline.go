package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/loanpilot/sentinel/internal/domain"
)

type baselineRepo struct{}

// NewBaselineRepository returns a pgx-backed BaselineRepository.
func NewBaselineRepository() BaselineRepository {
	return &baselineRepo{}
}

func (r *baselineRepo) FindByUser(ctx context.Context, db DBTX, userID string) (*domain.BehaviorBaseline, error) {
	row := db.QueryRow(ctx, `
		SELECT user_id, typical_login_hours, avg_session_duration, avg_click_interval,
		       avg_typing_interval, avg_mouse_variance, device_pattern, typical_country
		FROM behavior_baselines WHERE user_id = $1`, userID)

	var b domain.BehaviorBaseline
	err := row.Scan(&b.UserID, &b.TypicalLoginHours, &b.AvgSessionDuration, &b.AvgClickInterval,
		&b.AvgTypingInterval, &b.AvgMouseVariance, &b.DevicePattern, &b.TypicalCountry)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan baseline: %w", err)
	}
	return &b, nil
}

func (r *baselineRepo) Upsert(ctx context.Context, db DBTX, baseline *domain.BehaviorBaseline) error {
	_, err := db.Exec(ctx, `
		INSERT INTO behavior_baselines
		  (user_id, typical_login_hours, avg_session_duration, avg_click_interval,
		   avg_typing_interval, avg_mouse_variance, device_pattern, typical_country, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (user_id) DO UPDATE SET
		  typical_login_hours = EXCLUDED.typical_login_hours,
		  avg_session_duration = EXCLUDED.avg_session_duration,
		  avg_click_interval = EXCLUDED.avg_click_interval,
		  avg_typing_interval = EXCLUDED.avg_typing_interval,
		  avg_mouse_variance = EXCLUDED.avg_mouse_variance,
		  device_pattern = EXCLUDED.device_pattern,
		  typical_country = EXCLUDED.typical_country,
		  updated_at = now()`,
		baseline.UserID,
		baseline.TypicalLoginHours,
		baseline.AvgSessionDuration,
		baseline.AvgClickInterval,
		baseline.AvgTypingInterval,
		baseline.AvgMouseVariance,
		baseline.DevicePattern,
		baseline.TypicalCountry,
	)
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}
