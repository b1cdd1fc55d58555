package domain

import "time"

// RequestStatus enumerates approval request states. Pending is the only
// non-terminal state; no transition ever leaves a terminal state.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
	RequestStatusExpired  RequestStatus = "expired"
)

// Terminal reports whether the status admits no further transition.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusApproved, RequestStatusRejected, RequestStatusExpired:
		return true
	default:
		return false
	}
}

// Decision is a user's answer to an approval prompt.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Status returns the terminal status the decision resolves to.
func (d Decision) Status() RequestStatus {
	if d == DecisionApprove {
		return RequestStatusApproved
	}
	return RequestStatusRejected
}

// AuthRequest is a single out-of-band approval request. MessagingID is a
// snapshot taken at creation time, not a live join against the client row.
type AuthRequest struct {
	RequestID   string
	ClientID    string
	MessagingID int64
	Operation   string
	Amount      *string
	Status      RequestStatus
	CreatedAt   time.Time
	DecidedAt   *time.Time
	DecidedBy   *int64
	ExpiredAt   *time.Time
	Metadata    map[string]any
}
