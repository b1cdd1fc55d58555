package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/core/port"
	"github.com/arklim/approval-gate/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, clientID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("client_id", clientID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishRequestCreated logs approval.request.created events.
func (p *StubPublisher) PublishRequestCreated(_ context.Context, event domain.RequestCreatedEvent) error {
	payload := map[string]any{
		"request_id":   event.RequestID,
		"client_id":    event.ClientID,
		"messaging_id": event.MessagingID,
		"operation":    event.Operation,
		"amount":       event.Amount,
		"created_at":   event.CreatedAt,
		"expires_at":   event.ExpiresAt,
		"metadata":     event.Metadata,
	}
	p.logEvent("approval.request.created", event.ClientID, event.CreatedAt, payload)
	return nil
}

// PublishRequestDecided logs approval.request.decided events.
func (p *StubPublisher) PublishRequestDecided(_ context.Context, event domain.RequestDecidedEvent) error {
	payload := map[string]any{
		"request_id": event.RequestID,
		"client_id":  event.ClientID,
		"status":     event.Status,
		"decided_at": event.DecidedAt,
		"decided_by": event.DecidedBy,
		"metadata":   event.Metadata,
	}
	p.logEvent("approval.request.decided", event.ClientID, event.DecidedAt, payload)
	return nil
}

// PublishRequestExpired logs approval.request.expired events.
func (p *StubPublisher) PublishRequestExpired(_ context.Context, event domain.RequestExpiredEvent) error {
	payload := map[string]any{
		"request_id": event.RequestID,
		"client_id":  event.ClientID,
		"created_at": event.CreatedAt,
		"expired_at": event.ExpiredAt,
	}
	p.logEvent("approval.request.expired", event.ClientID, event.ExpiredAt, payload)
	return nil
}

// PublishClientRegistered logs approval.client.registered events. The
// phone number is masked before it reaches the log.
func (p *StubPublisher) PublishClientRegistered(_ context.Context, event domain.ClientRegisteredEvent) error {
	var phone string
	if event.Phone != nil {
		phone = logger.MaskPhone(*event.Phone)
	}

	payload := map[string]any{
		"client_id":     event.ClientID,
		"phone":         phone,
		"registered_at": event.RegisteredAt,
	}
	p.logEvent("approval.client.registered", event.ClientID, event.RegisteredAt, payload)
	return nil
}

// PublishClientLinked logs approval.client.linked events.
func (p *StubPublisher) PublishClientLinked(_ context.Context, event domain.ClientLinkedEvent) error {
	payload := map[string]any{
		"client_id":    event.ClientID,
		"messaging_id": event.MessagingID,
		"linked_at":    event.LinkedAt,
	}
	p.logEvent("approval.client.linked", event.ClientID, event.LinkedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
