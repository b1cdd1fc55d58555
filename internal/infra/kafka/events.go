package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	ClientID  string           `json:"client_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, clientID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		ClientID:  clientID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishRequestCreated publishes approval.request.created events.
func (p *EventPublisher) PublishRequestCreated(ctx context.Context, event domain.RequestCreatedEvent) error {
	payload := struct {
		RequestID   string         `json:"request_id"`
		ClientID    string         `json:"client_id"`
		MessagingID int64          `json:"messaging_id"`
		Operation   string         `json:"operation"`
		Amount      *string        `json:"amount,omitempty"`
		CreatedAt   time.Time      `json:"created_at"`
		ExpiresAt   time.Time      `json:"expires_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		RequestID:   event.RequestID,
		ClientID:    event.ClientID,
		MessagingID: event.MessagingID,
		Operation:   event.Operation,
		Amount:      event.Amount,
		CreatedAt:   event.CreatedAt.UTC(),
		ExpiresAt:   event.ExpiresAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "approval.request.created", event.ClientID, event.CreatedAt, payload)
}

// PublishRequestDecided publishes approval.request.decided events.
func (p *EventPublisher) PublishRequestDecided(ctx context.Context, event domain.RequestDecidedEvent) error {
	payload := struct {
		RequestID string         `json:"request_id"`
		ClientID  string         `json:"client_id"`
		Status    string         `json:"status"`
		DecidedAt time.Time      `json:"decided_at"`
		DecidedBy int64          `json:"decided_by"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		RequestID: event.RequestID,
		ClientID:  event.ClientID,
		Status:    string(event.Status),
		DecidedAt: event.DecidedAt.UTC(),
		DecidedBy: event.DecidedBy,
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "approval.request.decided", event.ClientID, event.DecidedAt, payload)
}

// PublishRequestExpired publishes approval.request.expired events.
func (p *EventPublisher) PublishRequestExpired(ctx context.Context, event domain.RequestExpiredEvent) error {
	payload := struct {
		RequestID string    `json:"request_id"`
		ClientID  string    `json:"client_id"`
		CreatedAt time.Time `json:"created_at"`
		ExpiredAt time.Time `json:"expired_at"`
	}{
		RequestID: event.RequestID,
		ClientID:  event.ClientID,
		CreatedAt: event.CreatedAt.UTC(),
		ExpiredAt: event.ExpiredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "approval.request.expired", event.ClientID, event.ExpiredAt, payload)
}

// PublishClientRegistered publishes approval.client.registered events.
func (p *EventPublisher) PublishClientRegistered(ctx context.Context, event domain.ClientRegisteredEvent) error {
	payload := struct {
		ClientID     string    `json:"client_id"`
		Phone        *string   `json:"phone,omitempty"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		ClientID:     event.ClientID,
		Phone:        event.Phone,
		RegisteredAt: event.RegisteredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "approval.client.registered", event.ClientID, event.RegisteredAt, payload)
}

// PublishClientLinked publishes approval.client.linked events.
func (p *EventPublisher) PublishClientLinked(ctx context.Context, event domain.ClientLinkedEvent) error {
	payload := struct {
		ClientID    string    `json:"client_id"`
		MessagingID int64     `json:"messaging_id"`
		LinkedAt    time.Time `json:"linked_at"`
	}{
		ClientID:    event.ClientID,
		MessagingID: event.MessagingID,
		LinkedAt:    event.LinkedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "approval.client.linked", event.ClientID, event.LinkedAt, payload)
}
