package domain

import "time"

// RequestCreatedEvent represents the payload for approval.request.created messages.
type RequestCreatedEvent struct {
	EventID     string
	RequestID   string
	ClientID    string
	MessagingID int64
	Operation   string
	Amount      *string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Metadata    map[string]any
}

// RequestDecidedEvent represents the payload for approval.request.decided messages.
type RequestDecidedEvent struct {
	EventID   string
	RequestID string
	ClientID  string
	Status    RequestStatus
	DecidedAt time.Time
	DecidedBy int64
	Metadata  map[string]any
}

// RequestExpiredEvent represents the payload for approval.request.expired messages.
type RequestExpiredEvent struct {
	EventID   string
	RequestID string
	ClientID  string
	CreatedAt time.Time
	ExpiredAt time.Time
}

// ClientRegisteredEvent represents the payload for approval.client.registered messages.
type ClientRegisteredEvent struct {
	EventID      string
	ClientID     string
	Phone        *string
	RegisteredAt time.Time
}

// ClientLinkedEvent represents the payload for approval.client.linked messages.
type ClientLinkedEvent struct {
	EventID     string
	ClientID    string
	MessagingID int64
	LinkedAt    time.Time
}
