package domain

import "time"

// Account is created lazily on the first successful code verification for an email.
// PK: email, so the store enforces one account per address.
type Account struct {
	AccountID string    `json:"id" dynamodbav:"account_id"`
	Email     string    `json:"email" dynamodbav:"email"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

// Principal is the identity carried by a verified session token.
type Principal struct {
	AccountID string
	Email     string
}
