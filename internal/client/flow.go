package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// State is a step of the sign-in flow.
type State int

const (
	StateIdentify State = iota
	StateAwaitCode
	StateAuthenticated
	StateDemo
)

func (s State) String() string {
	switch s {
	case StateIdentify:
		return "identify"
	case StateAwaitCode:
		return "await-code"
	case StateAuthenticated:
		return "authenticated"
	case StateDemo:
		return "demo"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultCooldown is the local wait between code requests.
const DefaultCooldown = 60 * time.Second

// DemoEmail labels a demo session started before any address was typed.
const DemoEmail = "demo@example.com"

var (
	ErrCooldown        = errors.New("please wait before requesting another code")
	ErrInvalidState    = errors.New("action not available right now")
	ErrBusy            = errors.New("a request is already in flight")
	ErrDemoUnavailable = errors.New("demo mode is not available")
	ErrEmailRequired   = errors.New("a valid email address is required")
	ErrCodeRequired    = errors.New("enter the code from the email")

	// ErrSessionNotSaved means sign-in succeeded but the session could not be
	// persisted; the flow is Authenticated for this process only.
	ErrSessionNotSaved = errors.New("signed in, but the session could not be saved")
)

// AuthAPI is the part of the server API the flow drives.
type AuthAPI interface {
	RequestOTP(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) (*Session, error)
}

// FlowOptions tune a Flow. Zero values select the defaults.
type FlowOptions struct {
	AllowDemo bool
	Cooldown  time.Duration
	Now       func() time.Time
}

// Flow is the client-side sign-in state machine:
// Identify -> AwaitCode -> Authenticated, with ChangeEmail going back to
// Identify and Demo as a non-production escape hatch after network failures.
type Flow struct {
	api       AuthAPI
	store     SessionStore
	allowDemo bool
	cooldown  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	state      State
	email      string
	session    *Session
	lastNetErr bool
	resendAt   time.Time
	busy       bool
}

func NewFlow(api AuthAPI, store SessionStore, opts FlowOptions) *Flow {
	f := &Flow{
		api:       api,
		store:     store,
		allowDemo: opts.AllowDemo,
		cooldown:  opts.Cooldown,
		now:       opts.Now,
	}
	if f.cooldown <= 0 {
		f.cooldown = DefaultCooldown
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// Restore resumes a stored session, reporting whether one was found.
func (f *Flow) Restore() (bool, error) {
	s, err := f.store.Load()
	if err != nil || s == nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
	f.email = s.Email
	f.state = StateAuthenticated
	return true, nil
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Token returns the bearer token of an authenticated session. Demo sessions have none.
func (f *Flow) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateAuthenticated || f.session == nil {
		return ""
	}
	return f.session.Token
}

// CooldownRemaining is how long until another code may be requested.
func (f *Flow) CooldownRemaining() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d := f.resendAt.Sub(f.now()); d > 0 {
		return d
	}
	return 0
}

// CanEnterDemo reports whether demo mode is offered right now.
func (f *Flow) CanEnterDemo() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowDemo && f.lastNetErr && f.state != StateAuthenticated
}

// SubmitEmail asks the server to send a code. Allowed from Identify and, as a
// resend, from AwaitCode once the cooldown has passed.
func (f *Flow) SubmitEmail(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ErrEmailRequired
	}
	if err := f.begin(StateIdentify, StateAwaitCode); err != nil {
		return err
	}
	f.mu.Lock()
	if f.now().Before(f.resendAt) {
		f.busy = false
		f.mu.Unlock()
		return ErrCooldown
	}
	f.mu.Unlock()

	err := f.api.RequestOTP(ctx, email)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	f.lastNetErr = errors.Is(err, ErrNetworkUnreachable)
	f.email = email
	if err != nil {
		return err
	}
	f.state = StateAwaitCode
	f.resendAt = f.now().Add(f.cooldown)
	return nil
}

// SubmitCode verifies code for the pending email and stores the session.
// If verification fails the flow stays in AwaitCode. The server consumes the
// code on success, so a failed save still leaves the flow Authenticated and
// is reported as ErrSessionNotSaved.
func (f *Flow) SubmitCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrCodeRequired
	}
	if err := f.begin(StateAwaitCode); err != nil {
		return err
	}
	f.mu.Lock()
	email := f.email
	f.mu.Unlock()

	s, err := f.api.Verify(ctx, email, code)
	var saveErr error
	if err == nil {
		saveErr = f.store.Save(s)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	f.lastNetErr = false
	if err != nil {
		return err
	}
	f.session = s
	f.email = s.Email
	f.state = StateAuthenticated
	if saveErr != nil {
		return fmt.Errorf("%w: %w", ErrSessionNotSaved, saveErr)
	}
	return nil
}

// ChangeEmail returns from AwaitCode to Identify. The resend cooldown keeps running.
func (f *Flow) ChangeEmail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateAwaitCode || f.busy {
		return ErrInvalidState
	}
	f.state = StateIdentify
	return nil
}

// EnterDemo starts a local-only session. It requires AllowDemo and a
// preceding network failure.
func (f *Flow) EnterDemo() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.allowDemo || !f.lastNetErr || f.state == StateAuthenticated {
		return ErrDemoUnavailable
	}
	if f.email == "" {
		f.email = DemoEmail
	}
	f.session = nil
	f.state = StateDemo
	return nil
}

// Logout clears the stored session and restarts at Identify.
func (f *Flow) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = nil
	f.state = StateIdentify
	f.lastNetErr = false
	return f.store.Clear()
}

// begin marks a request in flight when the flow is in one of the allowed states.
func (f *Flow) begin(allowed ...State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	for _, s := range allowed {
		if f.state == s {
			f.busy = true
			return nil
		}
	}
	return ErrInvalidState
}
