package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/approval-gate/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// ClientSummary describes a client identity returned by the API.
type ClientSummary struct {
	ClientID           string  `json:"client_id"`
	Phone              *string `json:"phone,omitempty"`
	FirstName          *string `json:"first_name,omitempty"`
	LastName           *string `json:"last_name,omitempty"`
	Username           *string `json:"username,omitempty"`
	Email              *string `json:"email,omitempty"`
	RegistrationStatus string  `json:"registration_status"`
	IsActive           bool    `json:"is_active"`
	Linked             bool    `json:"linked"`
}

// NewClientSummary converts a domain client into its API view. The
// messaging identity itself is never exposed.
func NewClientSummary(client *domain.Client) ClientSummary {
	return ClientSummary{
		ClientID:           client.ClientID,
		Phone:              client.Phone,
		FirstName:          client.FirstName,
		LastName:           client.LastName,
		Username:           client.Username,
		Email:              client.Email,
		RegistrationStatus: string(client.RegistrationStatus),
		IsActive:           client.IsActive,
		Linked:             client.MessagingID != nil,
	}
}

// RegisterClientRequest defines the client registration payload.
type RegisterClientRequest struct {
	ClientID  string  `json:"client_id"`
	Phone     string  `json:"phone" binding:"required"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty" binding:"omitempty,email"`
}

// RegisterClientResponse is returned after a client is registered.
type RegisterClientResponse struct {
	Client  ClientSummary `json:"client"`
	Message string        `json:"message"`
}

// CreateAuthRequest defines the payload for opening an approval request.
// The telegram id must match the identity linked to the client.
type CreateAuthRequest struct {
	ClientID   string         `json:"client_id" binding:"required"`
	TelegramID int64          `json:"telegram_id" binding:"required"`
	Operation  string         `json:"operation" binding:"required"`
	Amount     *string        `json:"amount,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CreateAuthRequestByPhone opens an approval request addressed by phone number.
type CreateAuthRequestByPhone struct {
	Phone     string         `json:"phone" binding:"required"`
	Operation string         `json:"operation" binding:"required"`
	Amount    *string        `json:"amount,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuthRequestResponse describes an accepted approval request.
type AuthRequestResponse struct {
	RequestID string    `json:"request_id"`
	ClientID  string    `json:"client_id"`
	Operation string    `json:"operation"`
	Amount    *string   `json:"amount,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthRequestStatusResponse is the point-in-time status view of a request.
type AuthRequestStatusResponse struct {
	RequestID        string     `json:"request_id"`
	ClientID         string     `json:"client_id"`
	Operation        string     `json:"operation"`
	Amount           *string    `json:"amount,omitempty"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
	ExpiresInSeconds *int64     `json:"expires_in_seconds,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
