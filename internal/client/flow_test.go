package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuthAPI struct{ mock.Mock }

func (m *mockAuthAPI) RequestOTP(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}
func (m *mockAuthAPI) Verify(ctx context.Context, email, code string) (*Session, error) {
	args := m.Called(ctx, email, code)
	if s, _ := args.Get(0).(*Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newFlow(api AuthAPI, allowDemo bool) (*Flow, *MemoryStore, *clock) {
	c := &clock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	store := &MemoryStore{}
	return NewFlow(api, store, FlowOptions{AllowDemo: allowDemo, Now: c.now}), store, c
}

func TestFlow_HappyPath(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("RequestOTP", mock.Anything, "a@b.io").Return(nil)
	api.On("Verify", mock.Anything, "a@b.io", "123456").Return(&Session{Token: "tok", Email: "a@b.io"}, nil)
	f, store, _ := newFlow(api, false)

	require.NoError(t, f.SubmitEmail(context.Background(), "  A@B.io "))
	assert.Equal(t, StateAwaitCode, f.State())
	assert.Equal(t, DefaultCooldown, f.CooldownRemaining())

	require.NoError(t, f.SubmitCode(context.Background(), " 123456 "))
	assert.Equal(t, StateAuthenticated, f.State())
	assert.Equal(t, "tok", f.Token())

	saved, _ := store.Load()
	assert.Equal(t, "tok", saved.Token)
	api.AssertExpectations(t)
}

func TestFlow_ResendCooldown(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("RequestOTP", mock.Anything, "a@b.io").Return(nil)
	f, _, c := newFlow(api, false)
	require.NoError(t, f.SubmitEmail(context.Background(), "a@b.io"))

	c.t = c.t.Add(59 * time.Second)
	assert.ErrorIs(t, f.SubmitEmail(context.Background(), "a@b.io"), ErrCooldown)
	api.AssertNumberOfCalls(t, "RequestOTP", 1)

	// Changing the address does not reset the timer.
	require.NoError(t, f.ChangeEmail())
	assert.ErrorIs(t, f.SubmitEmail(context.Background(), "a@b.io"), ErrCooldown)

	c.t = c.t.Add(time.Second)
	require.NoError(t, f.SubmitEmail(context.Background(), "a@b.io"))
	api.AssertNumberOfCalls(t, "RequestOTP", 2)
}

func TestFlow_ServerErrorKeepsIdentify(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("RequestOTP", mock.Anything, "a@b.io").Return(&APIError{Status: 429, Message: "Too many attempts. Please wait 15 minutes."})
	f, _, _ := newFlow(api, true)

	err := f.SubmitEmail(context.Background(), "a@b.io")

	assert.EqualError(t, err, "Too many attempts. Please wait 15 minutes.")
	assert.Equal(t, StateIdentify, f.State())
	assert.Zero(t, f.CooldownRemaining())
	assert.False(t, f.CanEnterDemo())
	assert.ErrorIs(t, f.EnterDemo(), ErrDemoUnavailable)
}

func TestFlow_NetworkFailureOffersDemo(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("RequestOTP", mock.Anything, "a@b.io").Return(fmt.Errorf("post: %w", ErrNetworkUnreachable))
	f, _, _ := newFlow(api, true)

	err := f.SubmitEmail(context.Background(), "a@b.io")

	assert.ErrorIs(t, err, ErrNetworkUnreachable)
	assert.True(t, f.CanEnterDemo())
	require.NoError(t, f.EnterDemo())
	assert.Equal(t, StateDemo, f.State())
	assert.Equal(t, "a@b.io", f.Email())
	assert.Empty(t, f.Token())
}

func TestFlow_DemoRequiresOptIn(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("RequestOTP", mock.Anything, "a@b.io").Return(ErrNetworkUnreachable)
	f, _, _ := newFlow(api, false)

	_ = f.SubmitEmail(context.Background(), "a@b.io")

	assert.False(t, f.CanEnterDemo())
	assert.ErrorIs(t, f.EnterDemo(), ErrDemoUnavailable)
}

func TestFlow_DemoWithoutEmail(t *testing.T) {
	f, _, _ := newFlow(&mockAuthAPI{}, true)
	f.lastNetErr = true
	require.NoError(t, f.EnterDemo())
	assert.Equal(t, DemoEmail, f.Email())
}

func TestFlow_WrongCodeStaysAwaiting(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("RequestOTP", mock.Anything, "a@b.io").Return(nil)
	api.On("Verify", mock.Anything, "a@b.io", "000000").Return(nil, &APIError{Status: 400, Message: "Invalid or expired code"})
	f, store, _ := newFlow(api, true)
	require.NoError(t, f.SubmitEmail(context.Background(), "a@b.io"))

	err := f.SubmitCode(context.Background(), "000000")

	assert.EqualError(t, err, "Invalid or expired code")
	assert.Equal(t, StateAwaitCode, f.State())
	assert.False(t, f.CanEnterDemo())
	s, _ := store.Load()
	assert.Nil(t, s)
}

func TestFlow_InvalidTransitions(t *testing.T) {
	f, _, _ := newFlow(&mockAuthAPI{}, false)

	assert.ErrorIs(t, f.SubmitCode(context.Background(), "123456"), ErrInvalidState)
	assert.ErrorIs(t, f.ChangeEmail(), ErrInvalidState)
	assert.ErrorIs(t, f.SubmitEmail(context.Background(), "no-at-sign"), ErrEmailRequired)
	assert.ErrorIs(t, f.SubmitCode(context.Background(), " "), ErrCodeRequired)
}

func TestFlow_RestoreAndLogout(t *testing.T) {
	f, store, _ := newFlow(&mockAuthAPI{}, false)
	require.NoError(t, store.Save(&Session{Token: "tok", Email: "a@b.io"}))

	ok, err := f.Restore()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateAuthenticated, f.State())
	assert.Equal(t, "tok", f.Token())

	require.NoError(t, f.Logout())
	assert.Equal(t, StateIdentify, f.State())
	assert.Empty(t, f.Token())
	s, _ := store.Load()
	assert.Nil(t, s)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "await-code", StateAwaitCode.String())
	assert.Equal(t, "State(9)", State(9).String())
}

type failingStore struct{ MemoryStore }

func (*failingStore) Save(*Session) error { return errors.New("disk full") }

func TestFlow_SaveFailureStillAuthenticates(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("RequestOTP", mock.Anything, "a@b.io").Return(nil)
	api.On("Verify", mock.Anything, "a@b.io", "123456").Return(&Session{Token: "tok", Email: "a@b.io"}, nil).Once()
	f := NewFlow(api, &failingStore{}, FlowOptions{})

	require.NoError(t, f.SubmitEmail(context.Background(), "a@b.io"))
	err := f.SubmitCode(context.Background(), "123456")

	assert.ErrorIs(t, err, ErrSessionNotSaved)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, StateAuthenticated, f.State())
	assert.Equal(t, "tok", f.Token())
	api.AssertExpectations(t)
}
