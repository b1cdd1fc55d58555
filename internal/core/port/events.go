package port

import (
	"context"

	"github.com/arklim/approval-gate/internal/core/domain"
)

// EventPublisher publishes lifecycle audit events to the message bus.
type EventPublisher interface {
	PublishRequestCreated(ctx context.Context, event domain.RequestCreatedEvent) error
	PublishRequestDecided(ctx context.Context, event domain.RequestDecidedEvent) error
	PublishRequestExpired(ctx context.Context, event domain.RequestExpiredEvent) error
	PublishClientRegistered(ctx context.Context, event domain.ClientRegisteredEvent) error
	PublishClientLinked(ctx context.Context, event domain.ClientLinkedEvent) error
}
