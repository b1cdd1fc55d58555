package port

import (
	"context"
	"time"

	"github.com/arklim/approval-gate/internal/core/domain"
)

// RequestRepository exposes the durable system of record for approval
// requests. It is never required for a decision to resolve correctly;
// the ephemeral store stays authoritative for live requests.
type RequestRepository interface {
	Insert(ctx context.Context, request domain.AuthRequest) error
	GetByRequestID(ctx context.Context, requestID string) (*domain.AuthRequest, error)
	MarkDecided(ctx context.Context, requestID string, status domain.RequestStatus, decidedBy int64, decidedAt time.Time) error
	MarkExpired(ctx context.Context, requestID string, expiredAt time.Time) error
	// ListPendingCreatedBefore returns pending rows older than the cutoff,
	// used by the expiry sweep to reconcile the system of record.
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuthRequest, error)
}
