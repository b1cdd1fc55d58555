package port

import (
	"context"
	"time"
)

// RequestSummary carries the fields a transport renders into the
// two-choice approval prompt.
type RequestSummary struct {
	RequestID string
	ClientID  string
	Operation string
	Amount    *string
	ExpiresIn time.Duration
}

// Notifier delivers an approval prompt to a messaging identity.
// Delivery is best-effort and asynchronous; a failure never invalidates
// the request it describes.
type Notifier interface {
	Notify(ctx context.Context, messagingID int64, summary RequestSummary) error
}
