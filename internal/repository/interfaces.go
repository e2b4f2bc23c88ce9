package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/loanpilot/sentinel/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// BaselineRepository provides access to behavior_baselines.
type BaselineRepository interface {
	// FindByUser returns the stored baseline for a user, or nil if none exists.
	// A missing baseline is not an error; new users have none.
	FindByUser(ctx context.Context, db DBTX, userID string) (*domain.BehaviorBaseline, error)

	// Upsert fully replaces the user's baseline with the given values.
	Upsert(ctx context.Context, db DBTX, baseline *domain.BehaviorBaseline) error
}

// SecurityEventRepository provides access to security_events.
type SecurityEventRepository interface {
	// Insert writes one security event row.
	Insert(ctx context.Context, db DBTX, event *domain.SecurityEvent) error

	// ListRecent returns the newest events, ordered by created_at DESC.
	ListRecent(ctx context.Context, db DBTX, limit int) ([]domain.SecurityEvent, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the
	// security event when both are written).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished rows for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]OutboxRow, error)

	// MarkPublished removes published rows.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// OutboxRow is an outbox draft plus its sequence ID, as read back by the poller.
type OutboxRow struct {
	SeqID int64
	domain.OutboxDraft
}
