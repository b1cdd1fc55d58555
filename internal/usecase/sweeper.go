package usecase

import (
	"context"
	"errors"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/core/port"
	"github.com/arklim/approval-gate/internal/infra/telemetry"
	"github.com/arklim/approval-gate/internal/repository"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepBatch    = 200
)

// SweeperConfig tunes the expiry reconciliation loop.
type SweeperConfig struct {
	// Interval is the pause between sweep cycles.
	Interval time.Duration
	// RequestTimeout mirrors the lifecycle's decision window; entries and
	// rows older than this are sweep candidates.
	RequestTimeout time.Duration
	// Batch caps durable rows reconciled per cycle.
	Batch int
}

// Sweeper reconciles expiry across both stores. Natural TTL eviction
// handles the common case; the sweeper covers entries that outlived
// their TTL after a partial write and durable rows left pending after
// their live entry vanished.
type Sweeper struct {
	cache   port.RequestCache
	durable port.RequestRepository
	events  port.EventPublisher
	metrics *telemetry.Metrics
	logger  *zap.Logger

	cfg SweeperConfig
	now func() time.Time
}

// NewSweeper constructs the expiry sweeper.
func NewSweeper(
	cache port.RequestCache,
	durable port.RequestRepository,
	events port.EventPublisher,
	metrics *telemetry.Metrics,
	log *zap.Logger,
	cfg SweeperConfig,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultSweepBatch
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Sweeper{
		cache:   cache,
		durable: durable,
		events:  events,
		metrics: metrics,
		logger:  log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Run executes sweep cycles until the context is cancelled. A failing
// cycle is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one reconciliation cycle.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.cfg.RequestTimeout)

	if err := s.sweepStaleEntries(ctx, cutoff); err != nil {
		return err
	}
	return s.reconcileDurable(ctx, cutoff)
}

// sweepStaleEntries expires live entries that survived past their TTL.
func (s *Sweeper) sweepStaleEntries(ctx context.Context, cutoff time.Time) error {
	stale, err := s.cache.ScanStalePending(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, request := range stale {
		s.expire(ctx, request, true)
	}
	return nil
}

// reconcileDurable marks durable rows expired when their live entry is
// gone without a recorded decision.
func (s *Sweeper) reconcileDurable(ctx context.Context, cutoff time.Time) error {
	rows, err := s.durable.ListPendingCreatedBefore(ctx, cutoff, s.cfg.Batch)
	if err != nil {
		return err
	}

	for _, request := range rows {
		_, err := s.cache.Get(ctx, request.RequestID)
		if err == nil {
			// Still live; the stale-entry pass owns it.
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("sweep cache lookup failed",
				zap.String("request_id", request.RequestID),
				zap.Error(err),
			)
			continue
		}
		s.expire(ctx, request, false)
	}
	return nil
}

func (s *Sweeper) expire(ctx context.Context, request domain.AuthRequest, dropEntry bool) {
	expiredAt := s.now().UTC()

	if err := s.durable.MarkExpired(ctx, request.RequestID, expiredAt); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("mark request expired",
			zap.String("request_id", request.RequestID),
			zap.Error(err),
		)
		return
	}

	if dropEntry {
		if err := s.cache.Delete(ctx, request.RequestID); err != nil {
			s.logger.Warn("drop stale entry",
				zap.String("request_id", request.RequestID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("approval request expired",
		zap.String("request_id", request.RequestID),
		zap.String("client_id", request.ClientID),
	)
	if s.metrics != nil {
		s.metrics.RequestsExpired.Inc()
	}

	if s.events != nil {
		event := domain.RequestExpiredEvent{
			EventID:   uuid.NewString(),
			RequestID: request.RequestID,
			ClientID:  request.ClientID,
			CreatedAt: request.CreatedAt,
			ExpiredAt: expiredAt,
		}
		if err := s.events.PublishRequestExpired(ctx, event); err != nil {
			s.logger.Warn("publish request expired event", zap.Error(err))
		}
	}
}
