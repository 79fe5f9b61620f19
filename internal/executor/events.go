package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"taskmesh/internal/config"
)

// TaskEvent is the event-bus payload for task lifecycle and board-decision
// notifications (SPEC_FULL.md §B's escalation/event bus). TaskID doubles as
// the Kafka partition key so all events for one task land in order.
type TaskEvent struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

const (
	EventTaskCompleted       = "task.completed"
	EventTaskDeferredToHuman = "task.deferred_to_human"
	EventBoardDecision       = "board.decision"
)

// EventPublisher is the narrow surface Attempt/Escalation depend on, so
// tests can stub it out without a broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev TaskEvent) error
}

// KafkaEventPublisher publishes lifecycle/decision events, grounded on the
// teacher's workspaces.KafkaCommitPublisher (single-topic *kafka.Writer with
// a nil-safe Publish/Close), extended with a second writer for cfg.DLQTopic
// since this spec names a dedicated dead-letter topic for failed publishes.
type KafkaEventPublisher struct {
	writer *kafka.Writer
	dlq    *kafka.Writer
}

// NewKafkaEventPublisher returns (nil, nil) when cfg.Enabled is false, so
// callers can unconditionally hold an EventPublisher and nil-check at the
// call site instead of branching on config at every Escalate/complete call.
func NewKafkaEventPublisher(cfg config.KafkaConfig) (*KafkaEventPublisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka enabled but no brokers configured")
	}
	return &KafkaEventPublisher{
		writer: &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.EscalationTopic, Balancer: &kafka.Hash{}},
		dlq:    &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}},
	}, nil
}

// Publish writes ev to the escalation topic, falling back to the DLQ topic
// (best-effort) if the primary write fails.
func (p *KafkaEventPublisher) Publish(ctx context.Context, ev TaskEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(ev.TaskID), Value: payload, Time: time.Now()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.dlq != nil {
			if dlqErr := p.dlq.WriteMessages(ctx, msg); dlqErr != nil {
				log.Warn().Err(dlqErr).Str("task_id", ev.TaskID).Msg("event_dlq_publish_failed")
			}
		}
		return err
	}
	return nil
}

// Close shuts down both writers.
func (p *KafkaEventPublisher) Close() {
	if p == nil {
		return
	}
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			log.Warn().Err(err).Msg("kafka_writer_close_failed")
		}
	}
	if p.dlq != nil {
		if err := p.dlq.Close(); err != nil {
			log.Warn().Err(err).Msg("kafka_dlq_writer_close_failed")
		}
	}
}
