package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/core/port"
	"github.com/arklim/approval-gate/internal/repository"
)

type mockClientRepository struct {
	createErr   error
	createCalls int
	created     domain.Client

	byClientID    *domain.Client
	byClientIDErr error

	byMessagingID    *domain.Client
	byMessagingIDErr error

	byPhone        *domain.Client
	byPhoneErr     error
	byPhoneCalls   int
	lastCandidates []string

	completeErr         error
	completeCalls       int
	completeClientID    string
	completeMessagingID int64
	completeProfile     domain.ClientProfile

	deactivateErr   error
	deactivateCalls int
}

func (m *mockClientRepository) Create(_ context.Context, client domain.Client) error {
	m.createCalls++
	m.created = client
	return m.createErr
}

func (m *mockClientRepository) GetByClientID(context.Context, string) (*domain.Client, error) {
	if m.byClientID == nil && m.byClientIDErr == nil {
		return nil, repository.ErrNotFound
	}
	if m.byClientID != nil {
		copy := *m.byClientID
		return &copy, m.byClientIDErr
	}
	return nil, m.byClientIDErr
}

func (m *mockClientRepository) GetByMessagingID(context.Context, int64) (*domain.Client, error) {
	if m.byMessagingID == nil && m.byMessagingIDErr == nil {
		return nil, repository.ErrNotFound
	}
	if m.byMessagingID != nil {
		copy := *m.byMessagingID
		return &copy, m.byMessagingIDErr
	}
	return nil, m.byMessagingIDErr
}

func (m *mockClientRepository) GetByPhone(_ context.Context, candidates ...string) (*domain.Client, error) {
	m.byPhoneCalls++
	m.lastCandidates = candidates
	if m.byPhone == nil && m.byPhoneErr == nil {
		return nil, repository.ErrNotFound
	}
	if m.byPhone != nil {
		copy := *m.byPhone
		return &copy, m.byPhoneErr
	}
	return nil, m.byPhoneErr
}

func (m *mockClientRepository) CompleteRegistration(_ context.Context, clientID string, messagingID int64, profile domain.ClientProfile, _ time.Time) error {
	m.completeCalls++
	m.completeClientID = clientID
	m.completeMessagingID = messagingID
	m.completeProfile = profile
	return m.completeErr
}

func (m *mockClientRepository) Deactivate(context.Context, string) error {
	m.deactivateCalls++
	return m.deactivateErr
}

type mockIdentityResolver struct {
	client       *domain.Client
	clientErr    error
	lastClientID string

	phoneClient *domain.Client
	phoneErr    error
	lastPhone   string
}

func (m *mockIdentityResolver) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	m.lastClientID = clientID
	if m.clientErr != nil {
		return nil, m.clientErr
	}
	if m.client == nil {
		return nil, ErrClientNotFound
	}
	copy := *m.client
	return &copy, nil
}

func (m *mockIdentityResolver) ResolveByPhone(_ context.Context, phone string) (*domain.Client, error) {
	m.lastPhone = phone
	if m.phoneErr != nil {
		return nil, m.phoneErr
	}
	if m.phoneClient == nil {
		return nil, ErrClientNotFound
	}
	copy := *m.phoneClient
	return &copy, nil
}

// mockRequestCache keeps entries in memory with the same compare-and-set
// semantics the Redis implementation provides.
type mockRequestCache struct {
	mu      sync.Mutex
	entries map[string]domain.AuthRequest
	ttls    map[string]time.Duration
	stale   []domain.AuthRequest

	putErr    error
	getErr    error
	decideErr error
	countErr  error
	scanErr   error
	deleteErr error

	putCalls    int
	decideCalls int
	deleteCalls int

	pendingCount int
}

func newMockRequestCache() *mockRequestCache {
	return &mockRequestCache{
		entries: make(map[string]domain.AuthRequest),
		ttls:    make(map[string]time.Duration),
	}
}

func (m *mockRequestCache) Put(_ context.Context, request domain.AuthRequest, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[request.RequestID] = request
	m.ttls[request.RequestID] = ttl
	return nil
}

func (m *mockRequestCache) Get(_ context.Context, requestID string) (*domain.AuthRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	entry, ok := m.entries[requestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := entry
	return &copy, nil
}

func (m *mockRequestCache) Decide(_ context.Context, requestID string, status domain.RequestStatus, decidedBy int64, decidedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decideCalls++
	if m.decideErr != nil {
		return false, m.decideErr
	}
	entry, ok := m.entries[requestID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if entry.Status != domain.RequestStatusPending {
		return false, nil
	}
	entry.Status = status
	entry.DecidedAt = &decidedAt
	entry.DecidedBy = &decidedBy
	m.entries[requestID] = entry
	return true, nil
}

func (m *mockRequestCache) RemainingTTL(_ context.Context, requestID string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ttl, ok := m.ttls[requestID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return ttl, nil
}

func (m *mockRequestCache) CountPending(context.Context, int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.pendingCount, nil
}

func (m *mockRequestCache) ScanStalePending(context.Context, time.Time) ([]domain.AuthRequest, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.stale, nil
}

func (m *mockRequestCache) Delete(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.entries, requestID)
	delete(m.ttls, requestID)
	return nil
}

type mockRequestRepository struct {
	mu sync.Mutex

	insertErr      error
	insertFailures int
	insertCalls    int
	inserted       []domain.AuthRequest

	getResult      *domain.AuthRequest
	getErr         error
	markDecidedErr error

	markDecidedCalls  int
	markDecidedID     string
	markDecidedStatus domain.RequestStatus
	markDecidedBy     int64

	markExpiredErr   error
	markExpiredCalls int
	markExpiredIDs   []string

	pendingRows []domain.AuthRequest
	listErr     error
}

func (m *mockRequestRepository) Insert(_ context.Context, request domain.AuthRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.insertFailures != 0 {
		if m.insertFailures > 0 {
			m.insertFailures--
		}
		return m.insertErr
	}
	m.inserted = append(m.inserted, request)
	return nil
}

func (m *mockRequestRepository) GetByRequestID(context.Context, string) (*domain.AuthRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getResult == nil && m.getErr == nil {
		return nil, repository.ErrNotFound
	}
	if m.getResult != nil {
		copy := *m.getResult
		return &copy, m.getErr
	}
	return nil, m.getErr
}

func (m *mockRequestRepository) MarkDecided(_ context.Context, requestID string, status domain.RequestStatus, decidedBy int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markDecidedCalls++
	m.markDecidedID = requestID
	m.markDecidedStatus = status
	m.markDecidedBy = decidedBy
	return m.markDecidedErr
}

func (m *mockRequestRepository) MarkExpired(_ context.Context, requestID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markExpiredCalls++
	m.markExpiredIDs = append(m.markExpiredIDs, requestID)
	return m.markExpiredErr
}

func (m *mockRequestRepository) ListPendingCreatedBefore(context.Context, time.Time, int) ([]domain.AuthRequest, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.pendingRows, nil
}

type mockNotifier struct {
	err             error
	calls           int
	lastMessagingID int64
	lastSummary     port.RequestSummary
}

func (m *mockNotifier) Notify(_ context.Context, messagingID int64, summary port.RequestSummary) error {
	m.calls++
	m.lastMessagingID = messagingID
	m.lastSummary = summary
	return m.err
}

type mockEventPublisher struct {
	err error

	createdCalls int
	created      domain.RequestCreatedEvent

	decidedCalls int
	decided      domain.RequestDecidedEvent

	expiredCalls int
	expired      domain.RequestExpiredEvent

	registeredCalls int
	registered      domain.ClientRegisteredEvent

	linkedCalls int
	linked      domain.ClientLinkedEvent
}

func (m *mockEventPublisher) PublishRequestCreated(_ context.Context, event domain.RequestCreatedEvent) error {
	m.createdCalls++
	m.created = event
	return m.err
}

func (m *mockEventPublisher) PublishRequestDecided(_ context.Context, event domain.RequestDecidedEvent) error {
	m.decidedCalls++
	m.decided = event
	return m.err
}

func (m *mockEventPublisher) PublishRequestExpired(_ context.Context, event domain.RequestExpiredEvent) error {
	m.expiredCalls++
	m.expired = event
	return m.err
}

func (m *mockEventPublisher) PublishClientRegistered(_ context.Context, event domain.ClientRegisteredEvent) error {
	m.registeredCalls++
	m.registered = event
	return m.err
}

func (m *mockEventPublisher) PublishClientLinked(_ context.Context, event domain.ClientLinkedEvent) error {
	m.linkedCalls++
	m.linked = event
	return m.err
}
