package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation       = errors.New("validation failed")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidOrExpired = errors.New("invalid or expired code")
	ErrDeliveryTimeout  = errors.New("email delivery timed out")
	ErrDeliveryFailure  = errors.New("email delivery failed")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrInvalidSession   = errors.New("invalid or expired session")
	ErrStorage          = errors.New("storage error")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
)
