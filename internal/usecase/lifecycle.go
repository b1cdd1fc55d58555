package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/core/port"
	"github.com/arklim/approval-gate/internal/infra/telemetry"
	"github.com/arklim/approval-gate/internal/repository"
)

const (
	defaultRequestTimeout = 5 * time.Minute
	defaultMaxPending     = 5

	durableWriteAttempts = 3
	durableWriteBackoff  = 250 * time.Millisecond
)

// identityResolver is the slice of the registry the lifecycle needs.
type identityResolver interface {
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	ResolveByPhone(ctx context.Context, phone string) (*domain.Client, error)
}

// LifecycleConfig bounds request lifetimes and per-user concurrency.
type LifecycleConfig struct {
	// RequestTimeout is the decision window granted to every new request.
	RequestTimeout time.Duration
	// MaxPending caps live pending requests per messaging identity.
	MaxPending int
}

// LifecycleService drives the approval request state machine across the
// ephemeral and durable stores. The ephemeral store is written first and
// stays authoritative for live requests; durable writes trail it
// asynchronously and never gate the caller.
type LifecycleService struct {
	cache    port.RequestCache
	durable  port.RequestRepository
	registry identityResolver
	notifier port.Notifier
	events   port.EventPublisher
	metrics  *telemetry.Metrics
	logger   *zap.Logger

	cfg LifecycleConfig
	now func() time.Time

	writes sync.WaitGroup

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewLifecycleService constructs the lifecycle engine.
func NewLifecycleService(
	cache port.RequestCache,
	durable port.RequestRepository,
	registry identityResolver,
	notifier port.Notifier,
	events port.EventPublisher,
	metrics *telemetry.Metrics,
	log *zap.Logger,
	cfg LifecycleConfig,
) *LifecycleService {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &LifecycleService{
		cache:    cache,
		durable:  durable,
		registry: registry,
		notifier: notifier,
		events:   events,
		metrics:  metrics,
		logger:   log,
		cfg:      cfg,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *LifecycleService) WithClock(clock func() time.Time) *LifecycleService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// CreateRequestInput carries the operator's parameters for a new request.
type CreateRequestInput struct {
	ClientID string
	// MessagingID, when non-zero, must match the identity linked to the
	// client; it guards against prompting a stale or foreign chat.
	MessagingID int64
	Operation   string
	Amount      *string
	Metadata    map[string]any
}

// CreateRequestResult is the accepted request together with its deadline.
type CreateRequestResult struct {
	Request   domain.AuthRequest
	ExpiresAt time.Time
}

// CreateRequest opens a new approval request addressed to the client's
// linked messaging identity and dispatches the approval prompt. Prompt
// delivery is best-effort; a failed send leaves the request live and
// decidable until its window elapses.
func (s *LifecycleService) CreateRequest(ctx context.Context, input CreateRequestInput) (*CreateRequestResult, error) {
	if strings.TrimSpace(input.Operation) == "" {
		return nil, fmt.Errorf("operation is required")
	}

	client, err := s.registry.GetClient(ctx, input.ClientID)
	if err != nil {
		return nil, err
	}

	return s.createFor(ctx, client, input)
}

// CreateRequestByPhone resolves the addressee by phone number instead of
// the stable client key.
func (s *LifecycleService) CreateRequestByPhone(ctx context.Context, phone string, input CreateRequestInput) (*CreateRequestResult, error) {
	if strings.TrimSpace(input.Operation) == "" {
		return nil, fmt.Errorf("operation is required")
	}

	client, err := s.registry.ResolveByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrPhoneNotFound
		}
		return nil, err
	}

	input.ClientID = client.ClientID
	return s.createFor(ctx, client, input)
}

func (s *LifecycleService) createFor(ctx context.Context, client *domain.Client, input CreateRequestInput) (*CreateRequestResult, error) {
	// A supplied messaging id is checked against the linked identity
	// before registration state, so an operator addressing the wrong
	// identity always sees the mismatch.
	if input.MessagingID != 0 && (client.MessagingID == nil || *client.MessagingID != input.MessagingID) {
		return nil, ErrClientMismatch
	}

	if !client.Registered() || client.MessagingID == nil {
		return nil, ErrRegistrationIncomplete
	}

	messagingID := *client.MessagingID

	pending, err := s.cache.CountPending(ctx, messagingID)
	if err != nil {
		return nil, fmt.Errorf("count pending requests: %w", err)
	}
	if pending >= s.cfg.MaxPending {
		return nil, ErrQuotaExceeded
	}

	now := s.now().UTC()
	request := domain.AuthRequest{
		RequestID:   uuid.NewString(),
		ClientID:    client.ClientID,
		MessagingID: messagingID,
		Operation:   input.Operation,
		Amount:      input.Amount,
		Status:      domain.RequestStatusPending,
		CreatedAt:   now,
		Metadata:    input.Metadata,
	}

	if err := s.cache.Put(ctx, request, s.cfg.RequestTimeout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.asyncDurable("insert request", request.RequestID, func(ctx context.Context) error {
		return s.durable.Insert(ctx, request)
	})

	expiresAt := now.Add(s.cfg.RequestTimeout)
	if s.notifier != nil {
		summary := port.RequestSummary{
			RequestID: request.RequestID,
			ClientID:  request.ClientID,
			Operation: request.Operation,
			Amount:    request.Amount,
			ExpiresIn: s.cfg.RequestTimeout,
		}
		if err := s.notifier.Notify(ctx, messagingID, summary); err != nil {
			s.logger.Warn("approval prompt delivery failed",
				zap.String("request_id", request.RequestID),
				zap.Error(err),
			)
			if s.metrics != nil {
				s.metrics.NotifyFailures.Inc()
			}
		}
	}

	s.logger.Info("approval request created",
		zap.String("request_id", request.RequestID),
		zap.String("client_id", request.ClientID),
		zap.String("operation", request.Operation),
	)
	if s.metrics != nil {
		s.metrics.RequestsCreated.Inc()
	}

	if s.events != nil {
		event := domain.RequestCreatedEvent{
			EventID:     uuid.NewString(),
			RequestID:   request.RequestID,
			ClientID:    request.ClientID,
			MessagingID: messagingID,
			Operation:   request.Operation,
			Amount:      request.Amount,
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
			Metadata:    request.Metadata,
		}
		if err := s.events.PublishRequestCreated(ctx, event); err != nil {
			s.logger.Warn("publish request created event", zap.Error(err))
		}
	}

	return &CreateRequestResult{Request: request, ExpiresAt: expiresAt}, nil
}

// Transition applies the actor's decision to a pending request. Exactly
// one decision wins; every other attempt observes ErrAlreadyDecided or
// ErrRequestExpired regardless of interleaving.
func (s *LifecycleService) Transition(ctx context.Context, requestID string, actorID int64, decision domain.Decision) (*domain.AuthRequest, error) {
	if decision != domain.DecisionApprove && decision != domain.DecisionReject {
		return nil, fmt.Errorf("unknown decision %q", decision)
	}

	request, err := s.cache.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.resolveVanished(ctx, requestID, actorID)
		}
		return nil, fmt.Errorf("load request: %w", err)
	}

	if request.MessagingID != actorID {
		return nil, ErrUnauthorized
	}

	now := s.now().UTC()
	status := decision.Status()
	applied, err := s.cache.Decide(ctx, requestID, status, actorID, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Entry evicted between the read and the write.
			return nil, s.resolveVanished(ctx, requestID, actorID)
		}
		return nil, fmt.Errorf("decide request: %w", err)
	}
	if !applied {
		return nil, ErrAlreadyDecided
	}

	request.Status = status
	request.DecidedAt = &now
	request.DecidedBy = &actorID

	s.asyncDurable("mark decided", requestID, func(ctx context.Context) error {
		return s.durable.MarkDecided(ctx, requestID, status, actorID, now)
	})

	s.logger.Info("approval request decided",
		zap.String("request_id", requestID),
		zap.String("status", string(status)),
	)
	if s.metrics != nil {
		s.metrics.RequestsDecided.WithLabelValues(string(decision)).Inc()
	}

	if s.events != nil {
		event := domain.RequestDecidedEvent{
			EventID:   uuid.NewString(),
			RequestID: requestID,
			ClientID:  request.ClientID,
			Status:    status,
			DecidedAt: now,
			DecidedBy: actorID,
			Metadata:  request.Metadata,
		}
		if err := s.events.PublishRequestDecided(ctx, event); err != nil {
			s.logger.Warn("publish request decided event", zap.Error(err))
		}
	}

	return request, nil
}

// resolveVanished classifies a request that is gone from the ephemeral
// store. The durable record, when present, is checked for authorization
// before any status is disclosed.
func (s *LifecycleService) resolveVanished(ctx context.Context, requestID string, actorID int64) error {
	stored, err := s.durable.GetByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("load durable request: %w", err)
	}

	if stored.MessagingID != actorID {
		return ErrUnauthorized
	}

	switch stored.Status {
	case domain.RequestStatusApproved, domain.RequestStatusRejected:
		return ErrAlreadyDecided
	default:
		// A pending durable row with no live entry is an expired request
		// the sweep has not reconciled yet.
		return ErrRequestExpired
	}
}

// StatusResult is a point-in-time view of a request's state.
type StatusResult struct {
	Request domain.AuthRequest
	// ExpiresIn is the remaining decision window; zero for terminal states.
	ExpiresIn time.Duration
}

// GetStatus returns the request's current state, consulting the durable
// record when the live entry is gone. A durable row still marked pending
// without a live entry reads as expired.
func (s *LifecycleService) GetStatus(ctx context.Context, requestID string) (*StatusResult, error) {
	request, err := s.cache.Get(ctx, requestID)
	if err == nil {
		result := StatusResult{Request: *request}
		if request.Status == domain.RequestStatusPending {
			if ttl, err := s.cache.RemainingTTL(ctx, requestID); err == nil {
				result.ExpiresIn = ttl
			}
		}
		return &result, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load request: %w", err)
	}

	stored, err := s.durable.GetByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("load durable request: %w", err)
	}

	if stored.Status == domain.RequestStatusPending {
		stored.Status = domain.RequestStatusExpired
	}
	return &StatusResult{Request: *stored}, nil
}

// Shutdown waits for in-flight durable writes to drain, up to the
// context deadline.
func (s *LifecycleService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.writes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("durable writes still in flight: %w", ctx.Err())
	}
}

// asyncDurable applies a durable store write in the background with a
// bounded retry. The write is detached from the caller's context so a
// cancelled HTTP request does not lose the audit record.
func (s *LifecycleService) asyncDurable(op, requestID string, write func(context.Context) error) {
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()

		var err error
		for attempt := 1; attempt <= durableWriteAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = write(ctx)
			cancel()
			if err == nil {
				return
			}
			if attempt < durableWriteAttempts {
				s.sleep(durableWriteBackoff * time.Duration(attempt))
			}
		}

		s.logger.Error("durable write abandoned",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.DurableWriteLags.Inc()
		}
	}()
}
