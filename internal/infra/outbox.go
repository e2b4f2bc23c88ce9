package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/loanpilot/sentinel/internal/repository"
)

// OutboxPoller drains the event_outbox table and publishes rows to Kafka.
// Topics follow "sentinel.<aggregateType>.<eventType>", keyed by aggregate ID
// so events for one user or session stay ordered within a partition.
type OutboxPoller struct {
	pool      *pgxpool.Pool
	outbox    repository.OutboxRepository
	producer  *KafkaProducer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(pool *pgxpool.Pool, outbox repository.OutboxRepository, producer *KafkaProducer, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		pool:      pool,
		outbox:    outbox,
		producer:  producer,
		logger:    logger,
		interval:  500 * time.Millisecond,
		batchSize: 100,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if err := p.poll(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

func (p *OutboxPoller) poll(ctx context.Context) error {
	rows, err := p.outbox.FetchUnpublished(ctx, p.pool, p.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	published := make([]int64, 0, len(rows))
	for _, row := range rows {
		topic := EventTopic(string(row.AggregateType), string(row.EventType))
		key := []byte(row.PartitionKey)
		if len(key) == 0 {
			key = []byte(row.AggregateID)
		}

		if err := p.producer.Publish(ctx, topic, key, EventEnvelope(row)); err != nil {
			p.logger.Error("kafka publish failed", "event_id", row.EventID, "error", err)
			continue
		}
		published = append(published, row.SeqID)
	}

	if err := p.outbox.MarkPublished(ctx, p.pool, published); err != nil {
		p.logger.Error("mark published failed", "error", err)
	}

	p.logger.Debug("outbox poll complete", "published", len(published))
	return nil
}

// EventEnvelope is the wire format published for an outbox row. Consumers
// (the verification worker included) unmarshal the same shape.
func EventEnvelope(row repository.OutboxRow) []byte {
	msg, _ := json.Marshal(map[string]interface{}{
		"event_id":       row.EventID,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID,
		"event_type":     row.EventType,
		"payload":        row.Payload,
		"occurred_at":    row.OccurredAt,
	})
	return msg
}
