package domain

import "time"

// DateLayout is the calendar-day format used for activity checks.
const DateLayout = "2006-01-02"

// Activity is a named habit tracked by an account. Checks holds the completed
// days as sorted, unique YYYY-MM-DD strings.
type Activity struct {
	ActivityID string    `json:"id" dynamodbav:"activity_id"`
	AccountID  string    `json:"user_id" dynamodbav:"account_id"`
	Name       string    `json:"name" dynamodbav:"name"`
	Color      string    `json:"color" dynamodbav:"color"`
	Checks     []string  `json:"checks" dynamodbav:"checks"`
	CreatedAt  time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

type CreateActivityRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor,len=7"`
}

type ToggleCheckRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}
