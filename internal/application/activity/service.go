package activity

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/checkcalendar-api/internal/domain"
	"github.com/checkcalendar-api/internal/pkg/id"
	"github.com/checkcalendar-api/internal/pkg/validate"
)

// DefaultColor is assigned when an activity is created without one.
const DefaultColor = "#3b82f6"

// Attribute names used in partial update maps.
const (
	fieldName   = "name"
	fieldColor  = "color"
	fieldChecks = "checks"
)

// maxToggleAttempts bounds the read-modify-write retries of ToggleCheck.
const maxToggleAttempts = 5

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

type Service interface {
	List(ctx context.Context, accountID string) ([]domain.Activity, error)
	Create(ctx context.Context, accountID string, req domain.CreateActivityRequest) (*domain.Activity, error)
	ToggleCheck(ctx context.Context, accountID, activityID, date string) (*domain.Activity, error)
	Delete(ctx context.Context, accountID, activityID string) error
	Report(ctx context.Context, accountID, activityID string, today time.Time) (*Report, error)
	Export(ctx context.Context, accountID, format string) (*ExportResult, error)
}

type activityStore interface {
	Put(ctx context.Context, a *domain.Activity) error
	Get(ctx context.Context, activityID string) (*domain.Activity, error)
	ListByAccount(ctx context.Context, accountID string) ([]domain.Activity, error)
	Update(ctx context.Context, activityID string, updates map[string]interface{}) error
	UpdateIfUnchanged(ctx context.Context, activityID string, updatedAt time.Time, updates map[string]interface{}) error
	Delete(ctx context.Context, activityID string) error
}

type objectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ExportResult points at an uploaded snapshot of an account's activities.
type ExportResult struct {
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expires_at"`
}

type exportDocument struct {
	AccountID  string            `json:"account_id"`
	ExportedAt time.Time         `json:"exported_at"`
	Activities []domain.Activity `json:"activities"`
}

type service struct {
	repo      activityStore
	objects   objectStore
	exportTTL time.Duration
	now       func() time.Time
}

func NewService(repo activityStore, objects objectStore, exportTTL time.Duration) Service {
	if exportTTL <= 0 {
		exportTTL = 15 * time.Minute
	}
	return &service{repo: repo, objects: objects, exportTTL: exportTTL, now: time.Now}
}

// List returns the account's activities, oldest first.
func (s *service) List(ctx context.Context, accountID string) ([]domain.Activity, error) {
	items, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ActivityID < items[j].ActivityID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	out := make([]domain.Activity, 0, len(items))
	for _, a := range items {
		out = append(out, normalize(a))
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, accountID string, req domain.CreateActivityRequest) (*domain.Activity, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Color = strings.ToLower(strings.TrimSpace(req.Color))
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}
	if req.Color == "" {
		req.Color = DefaultColor
	}
	now := s.now().UTC()
	a := &domain.Activity{
		ActivityID: id.NewAt(now),
		AccountID:  accountID,
		Name:       req.Name,
		Color:      req.Color,
		Checks:     []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Put(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ToggleCheck marks date as done, or clears it when it already is. The write
// is guarded by the activity's updated_at and retried on a concurrent change.
func (s *service) ToggleCheck(ctx context.Context, accountID, activityID, date string) (*domain.Activity, error) {
	date = strings.TrimSpace(date)
	if err := validate.Struct(domain.ToggleCheckRequest{Date: date}); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}
	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		a, err := s.owned(ctx, accountID, activityID)
		if err != nil {
			return nil, err
		}
		checks := toggle(a.Checks, date)
		err = s.repo.UpdateIfUnchanged(ctx, activityID, a.UpdatedAt, map[string]interface{}{fieldChecks: checks})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		a, err = s.repo.Get(ctx, activityID)
		if err != nil {
			return nil, err
		}
		updated := normalize(*a)
		return &updated, nil
	}
	return nil, fmt.Errorf("toggle check on %s: %w", activityID, domain.ErrConflict)
}

func (s *service) Delete(ctx context.Context, accountID, activityID string) error {
	if _, err := s.owned(ctx, accountID, activityID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, activityID)
}

func (s *service) Report(ctx context.Context, accountID, activityID string, today time.Time) (*Report, error) {
	a, err := s.owned(ctx, accountID, activityID)
	if err != nil {
		return nil, err
	}
	return BuildReport(normalize(*a), today), nil
}

// Export uploads a snapshot in the requested format ("json" when empty) and
// returns a presigned download URL.
func (s *service) Export(ctx context.Context, accountID, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return nil, fmt.Errorf("unknown export format %q: %w", format, domain.ErrValidation)
	}
	items, err := s.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var (
		body        []byte
		contentType string
	)
	switch format {
	case FormatCSV:
		body, err = encodeCSV(items)
		contentType = "text/csv"
	default:
		body, err = json.Marshal(exportDocument{AccountID: accountID, ExportedAt: now, Activities: items})
		contentType = "application/json"
	}
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}

	key := fmt.Sprintf("exports/%s/%s.%s", accountID, id.NewAt(now), format)
	if _, err := s.objects.Upload(ctx, key, bytes.NewReader(body), contentType); err != nil {
		return nil, fmt.Errorf("upload export: %w: %w", domain.ErrStorage, err)
	}
	url, err := s.objects.PresignedURL(ctx, key, s.exportTTL)
	if err != nil {
		return nil, fmt.Errorf("presign export: %w: %w", domain.ErrStorage, err)
	}
	return &ExportResult{URL: url, Format: format, ExpiresAt: now.Add(s.exportTTL)}, nil
}

var csvHeader = []string{"activity_id", "activity", "color", "date"}

// encodeCSV writes one row per checked day. An activity without checks still
// gets a row with an empty date so it survives the export.
func encodeCSV(items []domain.Activity) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, a := range items {
		if len(a.Checks) == 0 {
			if err := w.Write([]string{a.ActivityID, a.Name, a.Color, ""}); err != nil {
				return nil, err
			}
			continue
		}
		for _, d := range a.Checks {
			if err := w.Write([]string{a.ActivityID, a.Name, a.Color, d}); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// owned hides activities of other accounts behind ErrNotFound.
func (s *service) owned(ctx context.Context, accountID, activityID string) (*domain.Activity, error) {
	a, err := s.repo.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if a.AccountID != accountID {
		return nil, fmt.Errorf("activity not found: %w", domain.ErrNotFound)
	}
	return a, nil
}

func normalize(a domain.Activity) domain.Activity {
	if a.Checks == nil {
		a.Checks = []string{}
	}
	return a
}

// toggle returns a sorted, de-duplicated copy of checks with date flipped.
func toggle(checks []string, date string) []string {
	seen := make(map[string]struct{}, len(checks)+1)
	out := make([]string, 0, len(checks)+1)
	removed := false
	for _, c := range checks {
		if c == date {
			removed = true
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if !removed {
		out = append(out, date)
	}
	sort.Strings(out)
	return out
}
