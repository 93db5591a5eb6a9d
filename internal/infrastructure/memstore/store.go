// Package memstore holds process-local stores with the same method sets as
// the dynamo repositories. They back STORE_BACKEND=memory and router tests.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/checkcalendar-api/internal/domain"
)

// AccountStore keys accounts by normalized email.
type AccountStore struct {
	mu    sync.RWMutex
	items map[string]domain.Account
}

func NewAccountStore() *AccountStore {
	return &AccountStore{items: make(map[string]domain.Account)}
}

func (s *AccountStore) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[email]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return &a, nil
}

func (s *AccountStore) Create(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[a.Email]; ok {
		return fmt.Errorf("account already exists: %w", domain.ErrConflict)
	}
	s.items[a.Email] = *a
	return nil
}

// PendingCodeStore holds at most one code per email.
type PendingCodeStore struct {
	mu    sync.Mutex
	items map[string]domain.PendingCode
}

func NewPendingCodeStore() *PendingCodeStore {
	return &PendingCodeStore{items: make(map[string]domain.PendingCode)}
}

func (s *PendingCodeStore) Put(_ context.Context, p *domain.PendingCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.Email] = *p
	return nil
}

func (s *PendingCodeStore) Get(_ context.Context, email string) (*domain.PendingCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[email]
	if !ok {
		return nil, fmt.Errorf("pending code not found: %w", domain.ErrNotFound)
	}
	return &p, nil
}

func (s *PendingCodeStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, email)
	return nil
}

func (s *PendingCodeStore) Consume(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[email]
	if !ok || p.Code != code {
		return fmt.Errorf("pending code already consumed: %w", domain.ErrNotFound)
	}
	delete(s.items, email)
	return nil
}

// ActivityStore keys activities by ID.
type ActivityStore struct {
	mu    sync.RWMutex
	items map[string]domain.Activity
}

func NewActivityStore() *ActivityStore {
	return &ActivityStore{items: make(map[string]domain.Activity)}
}

func (s *ActivityStore) Put(_ context.Context, a *domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[a.ActivityID] = cloneActivity(*a)
	return nil
}

func (s *ActivityStore) Get(_ context.Context, activityID string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[activityID]
	if !ok {
		return nil, fmt.Errorf("activity not found: %w", domain.ErrNotFound)
	}
	a = cloneActivity(a)
	return &a, nil
}

func (s *ActivityStore) ListByAccount(_ context.Context, accountID string) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Activity
	for _, a := range s.items {
		if a.AccountID == accountID {
			out = append(out, cloneActivity(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivityID < out[j].ActivityID })
	return out, nil
}

// Update understands the attribute names the activity service writes.
func (s *ActivityStore) Update(_ context.Context, activityID string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(activityID, updates, nil)
}

// UpdateIfUnchanged is Update that fails with ErrConflict when the activity
// was written after updatedAt.
func (s *ActivityStore) UpdateIfUnchanged(_ context.Context, activityID string, updatedAt time.Time, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(activityID, updates, &updatedAt)
}

func (s *ActivityStore) update(activityID string, updates map[string]interface{}, ifUpdatedAt *time.Time) error {
	a, ok := s.items[activityID]
	if !ok {
		return fmt.Errorf("activity not found: %w", domain.ErrNotFound)
	}
	if ifUpdatedAt != nil && !a.UpdatedAt.Equal(*ifUpdatedAt) {
		return fmt.Errorf("activity %s changed concurrently: %w", activityID, domain.ErrConflict)
	}
	for k, v := range updates {
		switch k {
		case "name":
			a.Name, _ = v.(string)
		case "color":
			a.Color, _ = v.(string)
		case "checks":
			checks, _ := v.([]string)
			a.Checks = append([]string(nil), checks...)
		default:
			return fmt.Errorf("memstore: unsupported activity attribute %q", k)
		}
	}
	// Every write moves updated_at forward so guarded updates can see it.
	next := time.Now().UTC()
	if !next.After(a.UpdatedAt) {
		next = a.UpdatedAt.Add(time.Nanosecond)
	}
	a.UpdatedAt = next
	s.items[activityID] = a
	return nil
}

func (s *ActivityStore) Delete(_ context.Context, activityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, activityID)
	return nil
}

func cloneActivity(a domain.Activity) domain.Activity {
	a.Checks = append([]string(nil), a.Checks...)
	return a
}

// ObjectStore keeps uploaded export objects in memory and hands out memory:// URLs.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string][]byte)}
}

func (s *ObjectStore) Upload(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	s.mu.Lock()
	s.objects[key] = b
	s.mu.Unlock()
	return "memory://" + key, nil
}

func (s *ObjectStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	return "memory://" + key, nil
}

// Object returns the stored bytes for key.
func (s *ObjectStore) Object(key string) (io.Reader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.NewReader(b), true
}
