// Package client drives the email one-time-passcode login against the API
// from a terminal or any other non-browser front end.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/checkcalendar-api/internal/domain"
)

// DefaultTimeout bounds every call the client makes.
const DefaultTimeout = 8 * time.Second

// ErrNetworkUnreachable covers timeouts, aborted requests, refused connections
// and DNS failures: the server never produced an answer.
var ErrNetworkUnreachable = errors.New("cannot reach the server")

// APIError is an application-level failure reported by the server.
// Message is the server's text, verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Session is what a successful verification yields.
type Session struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// API is a thin JSON client for the auth and calendar endpoints.
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI creates a client for baseURL (e.g. http://localhost:3001).
// A non-positive timeout selects DefaultTimeout.
func NewAPI(baseURL string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (a *API) RequestOTP(ctx context.Context, email string) error {
	return a.do(ctx, http.MethodPost, "/api/auth/request-otp", "", domain.RequestCodeInput{Email: email}, nil)
}

func (a *API) Verify(ctx context.Context, email, code string) (*Session, error) {
	var s Session
	if err := a.do(ctx, http.MethodPost, "/api/auth/verify", "", domain.VerifyCodeInput{Email: email, OTP: code}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *API) ListCalendars(ctx context.Context, token string) ([]domain.Activity, error) {
	var items []domain.Activity
	if err := a.do(ctx, http.MethodGet, "/api/calendars", token, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (a *API) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error == "" {
			env.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
