package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loanpilot/sentinel/internal/domain"
	"github.com/loanpilot/sentinel/internal/infra"
)

// The verification worker consumes verification.requested events and flags
// the user in Redis so the CRM session gateway forces a step-up challenge on
// the user's next request.

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("verification worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("KAFKA_ENABLED must be true for the verification worker")
	}

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	pending := infra.NewVerificationStore(redisClient, cfg.VerificationPendingTTL)

	topic := infra.EventTopic(string(domain.AggregateUser), string(domain.EventVerificationRequested))
	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topic, "sentinel-verification-worker", cfg.KafkaEnabled, logger)
	defer consumer.Close()

	logger.Info("verification worker started", "topic", topic, "flag_ttl", cfg.VerificationPendingTTL)

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("verification worker shutting down")
				return nil
			}
			logger.Error("read message failed", "error", err)
			continue
		}

		var envelope struct {
			Payload struct {
				UserID       string `json:"user_id"`
				SessionID    string `json:"session_id"`
				AnomalyScore int    `json:"anomaly_score"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(msg.Value, &envelope); err != nil || envelope.Payload.UserID == "" {
			logger.Warn("skipping malformed verification event", "offset", msg.Offset, "error", err)
			continue
		}

		p := envelope.Payload
		if err := pending.Mark(ctx, p.UserID, p.SessionID, p.AnomalyScore); err != nil {
			logger.Error("mark verification pending failed", "user_id", p.UserID, "error", err)
			continue
		}
		logger.Info("verification pending flagged",
			"user_id", p.UserID,
			"session_id", p.SessionID,
			"anomaly_score", p.AnomalyScore,
		)
	}
}
