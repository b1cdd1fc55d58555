package usecase

import "errors"

var (
	// ErrClientNotFound indicates no client identity matches the lookup key.
	ErrClientNotFound = errors.New("client not found")
	// ErrPhoneNotFound indicates no client identity is registered under the phone number.
	ErrPhoneNotFound = errors.New("phone not found")
	// ErrRegistrationIncomplete indicates the messaging identity has not completed registration.
	ErrRegistrationIncomplete = errors.New("client registration incomplete")
	// ErrClientMismatch indicates the supplied messaging identity does not belong to the client.
	ErrClientMismatch = errors.New("messaging identity does not match client")
	// ErrIdentityConflict indicates the phone or messaging identity is already bound elsewhere.
	ErrIdentityConflict = errors.New("identity already in use")
	// ErrQuotaExceeded indicates the messaging identity reached its pending request limit.
	ErrQuotaExceeded = errors.New("pending request quota exceeded")
	// ErrRequestNotFound indicates the request exists in neither store.
	ErrRequestNotFound = errors.New("request not found")
	// ErrRequestExpired indicates the request's decision window elapsed.
	ErrRequestExpired = errors.New("request expired")
	// ErrUnauthorized indicates the actor is not the request's addressee.
	ErrUnauthorized = errors.New("actor not authorized for this request")
	// ErrAlreadyDecided indicates another decision already reached a terminal status.
	ErrAlreadyDecided = errors.New("request already decided")
	// ErrStoreUnavailable indicates a store kept failing after retries.
	ErrStoreUnavailable = errors.New("store unavailable")
)
