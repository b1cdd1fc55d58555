package port

import (
	"context"
	"time"

	"github.com/arklim/approval-gate/internal/core/domain"
)

// ClientRepository exposes persistence behavior for client identities.
type ClientRepository interface {
	Create(ctx context.Context, client domain.Client) error
	GetByClientID(ctx context.Context, clientID string) (*domain.Client, error)
	GetByMessagingID(ctx context.Context, messagingID int64) (*domain.Client, error)
	// GetByPhone returns the first active client whose stored phone matches
	// any of the supplied candidate spellings.
	GetByPhone(ctx context.Context, candidates ...string) (*domain.Client, error)
	// CompleteRegistration binds the messaging identity and flips
	// registration_status to completed in a single update.
	CompleteRegistration(ctx context.Context, clientID string, messagingID int64, profile domain.ClientProfile, completedAt time.Time) error
	Deactivate(ctx context.Context, clientID string) error
}
