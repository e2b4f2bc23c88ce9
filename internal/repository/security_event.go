package repository

import (
	"context"
	"fmt"

	"github.com/loanpilot/sentinel/internal/domain"
)

type securityEventRepo struct{}

// NewSecurityEventRepository returns a pgx-backed SecurityEventRepository.
func NewSecurityEventRepository() SecurityEventRepository {
	return &securityEventRepo{}
}

func (r *securityEventRepo) Insert(ctx context.Context, db DBTX, event *domain.SecurityEvent) error {
	_, err := db.Exec(ctx, `
		INSERT INTO security_events (id, user_id, session_id, kind, severity, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID,
		event.UserID,
		event.SessionID,
		string(event.Kind),
		string(event.Severity),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

func (r *securityEventRepo) ListRecent(ctx context.Context, db DBTX, limit int) ([]domain.SecurityEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT id, user_id, session_id, kind, severity, details, created_at
		FROM security_events
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var e domain.SecurityEvent
		err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &e.Kind, &e.Severity, &e.Details, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
