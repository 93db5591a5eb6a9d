package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/checkcalendar-api/internal/domain"
	jwtinfra "github.com/checkcalendar-api/internal/infrastructure/jwt"
	"github.com/checkcalendar-api/internal/infrastructure/mailer"
	"github.com/checkcalendar-api/internal/pkg/id"
	"github.com/checkcalendar-api/internal/pkg/ratelimit"
	"github.com/checkcalendar-api/internal/pkg/validate"
)

const (
	defaultOTPTTL          = 5 * time.Minute
	defaultDeliveryTimeout = 12 * time.Second
)

// PendingCodeStore is the minimal interface the service requires from a pending-code store.
type PendingCodeStore interface {
	Put(ctx context.Context, p *domain.PendingCode) error
	Get(ctx context.Context, email string) (*domain.PendingCode, error)
	Delete(ctx context.Context, email string) error
	// Consume deletes the row only if it still holds code; ErrNotFound otherwise.
	Consume(ctx context.Context, email, code string) error
}

// AccountStore is the minimal interface the service requires from an account store.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
}

// TokenSigner mints and checks session tokens.
type TokenSigner interface {
	Sign(accountID, email string) (string, error)
	Verify(token string) (*jwtinfra.Claims, error)
}

// ServiceDeps groups the collaborators of the auth service.
type ServiceDeps struct {
	Codes    PendingCodeStore
	Accounts AccountStore
	Tokens   TokenSigner
	Mailer   mailer.Mailer
	Limiter  ratelimit.Limiter

	OTPTTL          time.Duration
	DeliveryTimeout time.Duration

	// Test hooks; nil means the real clock and crypto/rand.
	Now          func() time.Time
	GenerateCode func() (string, error)
}

// VerifyResult is returned on a successful code verification.
type VerifyResult struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type Service interface {
	RequestCode(ctx context.Context, email, clientAddr string) error
	VerifyCode(ctx context.Context, email, code string) (*VerifyResult, error)
	Authenticate(token string) (*domain.Principal, error)
}

type service struct {
	codes           PendingCodeStore
	accounts        AccountStore
	tokens          TokenSigner
	mailer          mailer.Mailer
	limiter         ratelimit.Limiter
	otpTTL          time.Duration
	deliveryTimeout time.Duration
	now             func() time.Time
	generateCode    func() (string, error)
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		codes:           deps.Codes,
		accounts:        deps.Accounts,
		tokens:          deps.Tokens,
		mailer:          deps.Mailer,
		limiter:         deps.Limiter,
		otpTTL:          deps.OTPTTL,
		deliveryTimeout: deps.DeliveryTimeout,
		now:             deps.Now,
		generateCode:    deps.GenerateCode,
	}
	if s.otpTTL <= 0 {
		s.otpTTL = defaultOTPTTL
	}
	if s.deliveryTimeout <= 0 {
		s.deliveryTimeout = defaultDeliveryTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.generateCode == nil {
		s.generateCode = generateCode
	}
	return s
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) RequestCode(ctx context.Context, email, clientAddr string) error {
	ok, err := s.limiter.Allow(ctx, clientAddr)
	if err != nil {
		return fmt.Errorf("check request limit: %w: %w", domain.ErrStorage, err)
	}
	if !ok {
		return fmt.Errorf("too many code requests from %s: %w", clientAddr, domain.ErrRateLimited)
	}

	email = NormalizeEmail(email)
	if err := validate.Struct(domain.RequestCodeInput{Email: email}); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}

	// Once admitted, the caller going away must not cancel storage or delivery.
	ctx = context.WithoutCancel(ctx)

	if err := s.codes.Delete(ctx, email); err != nil {
		return err
	}
	code, err := s.generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	pending := domain.NewPendingCode(email, code, s.now().Add(s.otpTTL))
	if err := s.codes.Put(ctx, pending); err != nil {
		return err
	}

	// The pending code stays in place if delivery fails; a retry replaces it.
	if err := s.deliver(ctx, mailer.OTPMessage(email, code, s.otpTTL)); err != nil {
		slog.Warn("otp delivery failed", "email", email, "err", err)
		return err
	}
	slog.Info("otp sent", "email", email)
	return nil
}

// deliver bounds the mail transport with a hard deadline independent of its
// own connect, greeting and socket timeouts.
func (s *service) deliver(ctx context.Context, msg mailer.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.mailer.SendEmail(ctx, msg) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send otp after %s: %w", s.deliveryTimeout, domain.ErrDeliveryTimeout)
	case err := <-done:
		if err == nil {
			return nil
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return fmt.Errorf("send otp: %w: %w", domain.ErrDeliveryTimeout, err)
		}
		return fmt.Errorf("send otp: %w: %w", domain.ErrDeliveryFailure, err)
	}
}

func (s *service) VerifyCode(ctx context.Context, email, code string) (*VerifyResult, error) {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if err := validate.Struct(domain.VerifyCodeInput{Email: email, OTP: code}); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}

	pending, err := s.codes.Get(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidOrExpired
	}
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(pending.Code), []byte(code)) != 1 || pending.Expired(s.now()) {
		return nil, domain.ErrInvalidOrExpired
	}

	acct, err := s.findOrCreateAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Sign(acct.AccountID, acct.Email)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	// Conditional on the code: of two racing verifications only one gets
	// to hand out its token.
	if err := s.codes.Consume(ctx, email, code); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidOrExpired
		}
		return nil, err
	}
	slog.Info("otp verified", "account_id", acct.AccountID)
	return &VerifyResult{Token: token, Email: acct.Email}, nil
}

func (s *service) findOrCreateAccount(ctx context.Context, email string) (*domain.Account, error) {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	now := s.now().UTC()
	acct = &domain.Account{AccountID: id.NewAt(now), Email: email, CreatedAt: now}
	err = s.accounts.Create(ctx, acct)
	if errors.Is(err, domain.ErrConflict) {
		// Another verification created it first.
		return s.accounts.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("account created", "account_id", acct.AccountID)
	return acct, nil
}

func (s *service) Authenticate(token string) (*domain.Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSession, err)
	}
	return &domain.Principal{AccountID: claims.AccountID, Email: claims.Email}, nil
}

// generateCode returns a uniformly random six-digit code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
