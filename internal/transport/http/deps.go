package http

import (
	"context"
	"io"
	"time"

	"github.com/checkcalendar-api/internal/application/auth"
	"github.com/checkcalendar-api/internal/domain"
	"github.com/checkcalendar-api/internal/infrastructure/mailer"
	"github.com/checkcalendar-api/internal/pkg/ratelimit"
)

// AccountRepository is the minimal interface the router requires from an account store.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
}

// PendingCodeRepository is the minimal interface the router requires from a pending-code store.
type PendingCodeRepository interface {
	Put(ctx context.Context, p *domain.PendingCode) error
	Get(ctx context.Context, email string) (*domain.PendingCode, error)
	Delete(ctx context.Context, email string) error
	Consume(ctx context.Context, email, code string) error
}

// ActivityRepository is the minimal interface the router requires from an activity store.
type ActivityRepository interface {
	Put(ctx context.Context, a *domain.Activity) error
	Get(ctx context.Context, activityID string) (*domain.Activity, error)
	// ListByAccount queries the account_id GSI; it is not a table scan.
	ListByAccount(ctx context.Context, accountID string) ([]domain.Activity, error)
	Update(ctx context.Context, activityID string, updates map[string]interface{}) error
	UpdateIfUnchanged(ctx context.Context, activityID string, updatedAt time.Time, updates map[string]interface{}) error
	Delete(ctx context.Context, activityID string) error
}

// ObjectStore is the minimal interface the router requires from the export bucket.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	AccountRepo     AccountRepository
	PendingCodeRepo PendingCodeRepository
	ActivityRepo    ActivityRepository
	ExportStore     ObjectStore
	Mailer          mailer.Mailer
	RequestLimiter  ratelimit.Limiter
	Tokens          auth.TokenSigner
}
