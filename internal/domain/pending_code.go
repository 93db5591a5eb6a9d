package domain

import "time"

// PendingCode is the outstanding one-time passcode for an email.
// PK: email. At most one row exists per email; a new request replaces it.
// ExpiresAt is the DynamoDB TTL attribute in Unix seconds, rounded up.
// TTL deletion is lazy, so lookups check ExpiresAtMs instead.
type PendingCode struct {
	Email       string `json:"email" dynamodbav:"email"`
	Code        string `json:"-" dynamodbav:"code"`
	ExpiresAt   int64  `json:"expires_at" dynamodbav:"expires_at"`
	ExpiresAtMs int64  `json:"-" dynamodbav:"expires_at_ms"`
}

// NewPendingCode builds a code valid until expiresAt. Both timestamps are
// rounded up so the code never lapses before expiresAt.
func NewPendingCode(email, code string, expiresAt time.Time) *PendingCode {
	return &PendingCode{
		Email:       email,
		Code:        code,
		ExpiresAt:   ceilUnit(expiresAt, time.Second).Unix(),
		ExpiresAtMs: ceilUnit(expiresAt, time.Millisecond).UnixMilli(),
	}
}

// Expired reports whether the code is no longer valid at now.
func (p *PendingCode) Expired(now time.Time) bool {
	return now.UnixMilli() >= p.ExpiresAtMs
}

func ceilUnit(t time.Time, unit time.Duration) time.Time {
	if r := t.Truncate(unit); !r.Equal(t) {
		return r.Add(unit)
	}
	return t
}

// RequestCodeInput is the body of POST /api/auth/request-otp.
type RequestCodeInput struct {
	Email string `json:"email" validate:"required,contains=@"`
}

// VerifyCodeInput is the body of POST /api/auth/verify.
type VerifyCodeInput struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}
