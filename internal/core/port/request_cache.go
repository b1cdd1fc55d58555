package port

import (
	"context"
	"time"

	"github.com/arklim/approval-gate/internal/core/domain"
)

// RequestCache is the ephemeral store for live approval requests. Entries
// carry a per-key TTL; presence in the cache is authoritative for "is this
// request still active".
type RequestCache interface {
	// Put stores the request with the supplied TTL.
	Put(ctx context.Context, request domain.AuthRequest, ttl time.Duration) error
	Get(ctx context.Context, requestID string) (*domain.AuthRequest, error)
	// Decide atomically transitions the request to the terminal status iff
	// its current status is pending, preserving the key's remaining TTL.
	// It reports false when the request was already decided; the entry is
	// left untouched in that case.
	Decide(ctx context.Context, requestID string, status domain.RequestStatus, decidedBy int64, decidedAt time.Time) (bool, error)
	RemainingTTL(ctx context.Context, requestID string) (time.Duration, error)
	// CountPending counts live pending requests addressed to the messaging
	// identity.
	CountPending(ctx context.Context, messagingID int64) (int, error)
	// ScanStalePending returns pending entries created before the cutoff
	// that survived their native TTL, e.g. after a crash mid-write.
	ScanStalePending(ctx context.Context, cutoff time.Time) ([]domain.AuthRequest, error)
	Delete(ctx context.Context, requestID string) error
}
