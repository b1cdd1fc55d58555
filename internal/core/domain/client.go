package domain

import "time"

// RegistrationStatus enumerates client onboarding states.
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "pending"
	RegistrationStatusCompleted RegistrationStatus = "completed"
)

// Client mirrors the persisted representation in the clients table.
// MessagingID is nil until the client completes registration by linking
// a messaging identity; at most one client holds a given messaging id.
type Client struct {
	ClientID           string
	MessagingID        *int64
	FirstName          *string
	LastName           *string
	Username           *string
	Phone              *string
	PhoneNormalized    *string
	Email              *string
	RegistrationStatus RegistrationStatus
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          *time.Time
}

// Registered reports whether the client finished onboarding and may
// receive and decide approval requests.
func (c *Client) Registered() bool {
	return c != nil && c.IsActive && c.RegistrationStatus == RegistrationStatusCompleted && c.MessagingID != nil
}

// ClientProfile carries optional profile fields supplied at registration
// or when a messaging identity is linked.
type ClientProfile struct {
	FirstName *string
	LastName  *string
	Username  *string
	Email     *string
}
