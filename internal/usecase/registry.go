package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/core/port"
	"github.com/arklim/approval-gate/internal/infra/logger"
	"github.com/arklim/approval-gate/internal/repository"
)

// RegistryService resolves, registers, and links client identities. It
// gate-keeps which messaging identities may receive and decide requests.
type RegistryService struct {
	clients port.ClientRepository
	events  port.EventPublisher
	logger  *zap.Logger
	now     func() time.Time
}

// NewRegistryService constructs the identity registry.
func NewRegistryService(clients port.ClientRepository, events port.EventPublisher, log *zap.Logger) *RegistryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistryService{
		clients: clients,
		events:  events,
		logger:  log,
		now:     time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *RegistryService) WithClock(clock func() time.Time) *RegistryService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// NormalizePhone strips every non-digit character and folds the local
// 8-prefixed 11-digit form into its 7-prefixed equivalent, so that
// "+7 (912) 345-67-89", "89123456789", and "79123456789" collapse to
// the same key.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	return digits
}

// ResolveByPhone looks up a client by any plausible spelling of the
// supplied phone number.
func (s *RegistryService) ResolveByPhone(ctx context.Context, raw string) (*domain.Client, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("phone is required")
	}

	candidates := []string{trimmed, "+" + trimmed}
	if normalized := NormalizePhone(trimmed); normalized != "" {
		candidates = append([]string{normalized}, candidates...)
	}

	client, err := s.clients.GetByPhone(ctx, candidates...)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("resolve client by phone: %w", err)
	}

	return client, nil
}

// RegisterClient creates a client identity known by phone only; the
// messaging identity is linked later when the user completes onboarding.
func (s *RegistryService) RegisterClient(ctx context.Context, clientID, phone string, profile domain.ClientProfile) (*domain.Client, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("phone is required")
	}

	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}

	if _, err := s.clients.GetByClientID(ctx, clientID); err == nil {
		return nil, ErrIdentityConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check client id: %w", err)
	}

	if _, err := s.ResolveByPhone(ctx, phone); err == nil {
		return nil, ErrIdentityConflict
	} else if !errors.Is(err, ErrClientNotFound) {
		return nil, err
	}

	normalized := NormalizePhone(phone)
	now := s.now().UTC()
	client := domain.Client{
		ClientID:           clientID,
		FirstName:          profile.FirstName,
		LastName:           profile.LastName,
		Username:           profile.Username,
		Phone:              &phone,
		PhoneNormalized:    &normalized,
		Email:              profile.Email,
		RegistrationStatus: domain.RegistrationStatusPending,
		IsActive:           true,
		CreatedAt:          now,
	}

	if err := s.clients.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	registeredFields := []zap.Field{
		zap.String("client_id", clientID),
		zap.String("phone", logger.MaskPhone(phone)),
	}
	if profile.Email != nil {
		registeredFields = append(registeredFields, zap.String("email", logger.MaskEmail(*profile.Email)))
	}
	s.logger.Info("client registered", registeredFields...)

	if s.events != nil {
		event := domain.ClientRegisteredEvent{
			EventID:      uuid.NewString(),
			ClientID:     clientID,
			Phone:        &phone,
			RegisteredAt: now,
		}
		if err := s.events.PublishClientRegistered(ctx, event); err != nil {
			s.logger.Warn("publish client registered event", zap.Error(err))
		}
	}

	return &client, nil
}

// LinkMessagingIdentity binds the messaging identity to the client
// resolved by phone and completes its registration. Repeating the call
// with identical arguments succeeds without a second state change.
func (s *RegistryService) LinkMessagingIdentity(ctx context.Context, phone string, messagingID int64, profile domain.ClientProfile) (*domain.Client, error) {
	client, err := s.ResolveByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrPhoneNotFound
		}
		return nil, err
	}

	if client.MessagingID != nil && *client.MessagingID == messagingID &&
		client.RegistrationStatus == domain.RegistrationStatusCompleted {
		// Idempotent repeat of an identical link.
		return client, nil
	}

	if client.RegistrationStatus == domain.RegistrationStatusCompleted {
		return nil, ErrIdentityConflict
	}

	if existing, err := s.clients.GetByMessagingID(ctx, messagingID); err == nil {
		if existing.ClientID != client.ClientID {
			return nil, ErrIdentityConflict
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check messaging identity: %w", err)
	}

	now := s.now().UTC()
	if err := s.clients.CompleteRegistration(ctx, client.ClientID, messagingID, profile, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPhoneNotFound
		}
		return nil, fmt.Errorf("complete registration: %w", err)
	}

	mid := messagingID
	client.MessagingID = &mid
	client.RegistrationStatus = domain.RegistrationStatusCompleted
	client.UpdatedAt = &now
	if profile.FirstName != nil {
		client.FirstName = profile.FirstName
	}
	if profile.LastName != nil {
		client.LastName = profile.LastName
	}
	if profile.Username != nil {
		client.Username = profile.Username
	}
	if profile.Email != nil {
		client.Email = profile.Email
	}

	s.logger.Info("messaging identity linked",
		zap.String("client_id", client.ClientID),
		zap.Int64("messaging_id", messagingID),
	)

	if s.events != nil {
		event := domain.ClientLinkedEvent{
			EventID:     uuid.NewString(),
			ClientID:    client.ClientID,
			MessagingID: messagingID,
			LinkedAt:    now,
		}
		if err := s.events.PublishClientLinked(ctx, event); err != nil {
			s.logger.Warn("publish client linked event", zap.Error(err))
		}
	}

	return client, nil
}

// IsRegistered reports whether an active client with the messaging
// identity completed registration.
func (s *RegistryService) IsRegistered(ctx context.Context, messagingID int64) (bool, error) {
	client, err := s.clients.GetByMessagingID(ctx, messagingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup messaging identity: %w", err)
	}

	return client.Registered(), nil
}

// GetClient returns the client identity for the stable external key.
func (s *RegistryService) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

// DeactivateClient retires a client identity. The row is kept for audit;
// an inactive client can no longer receive or decide requests.
func (s *RegistryService) DeactivateClient(ctx context.Context, clientID string) error {
	if err := s.clients.Deactivate(ctx, clientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrClientNotFound
		}
		return fmt.Errorf("deactivate client: %w", err)
	}

	s.logger.Info("client deactivated", zap.String("client_id", clientID))
	return nil
}
