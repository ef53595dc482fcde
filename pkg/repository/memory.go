package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

type usageKey struct {
	id  int64
	typ domain.GenerationType
	day string
}

// MemoryStore はプロセス内だけで完結する Store の実装です。
type MemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	nextID       int64
	credentials  map[int64]domain.Credential
	usage        map[usageKey]int
	reservations map[string]domain.Reservation
	settings     map[string]string
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		now:          time.Now,
		credentials:  make(map[int64]domain.Credential),
		usage:        make(map[usageKey]int),
		reservations: make(map[string]domain.Reservation),
		settings:     make(map[string]string),
	}
	for _, d := range defaultSettings {
		s.settings[d.Key] = d.Value
	}
	return s
}

func (s *MemoryStore) AddCredential(_ context.Context, username, rawToken string) (domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.credentials {
		if c.Username == username {
			if !sameToken(c, domain.NewCredential(id, username, rawToken)) {
				return domain.Credential{}, fmt.Errorf("adding credential %q: %w", username, ErrCredentialExists)
			}
			c.Cookies = append(domain.CookieJar(nil), c.Cookies...)
			return c, nil
		}
	}
	s.nextID++
	c := domain.NewCredential(s.nextID, username, rawToken)
	s.credentials[c.ID] = c
	return c, nil
}

func (s *MemoryStore) ListCredentials(_ context.Context) ([]domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		c.Cookies = append(domain.CookieJar(nil), c.Cookies...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CountUsage(_ context.Context, id int64, t domain.GenerationType, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[usageKey{id, t, day}], nil
}

func (s *MemoryStore) RecordUsage(_ context.Context, id int64, t domain.GenerationType) error {
	if err := validType(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[id]; !ok {
		return ErrCredentialNotFound
	}
	s.usage[usageKey{id, t, domain.Day(s.now())}]++
	return nil
}

func (s *MemoryStore) UpdateCookies(_ context.Context, id int64, jar domain.CookieJar) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[id]
	if !ok {
		return false, nil
	}
	c.Cookies = append(domain.CookieJar(nil), jar...)
	s.credentials[id] = c
	return true, nil
}

func (s *MemoryStore) Reserve(_ context.Context, id int64, t domain.GenerationType, limit int, day string) (domain.Reservation, bool, error) {
	if err := validType(t); err != nil {
		return domain.Reservation{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	used := s.usage[usageKey{id, t, day}]
	for _, r := range s.reservations {
		if r.CredentialID == id && r.Type == t && r.Day == day && now.Sub(r.CreatedAt) < ReservationTTL {
			used++
		}
	}
	if used >= limit {
		return domain.Reservation{}, false, nil
	}
	r := domain.Reservation{ID: uuid.NewString(), CredentialID: id, Type: t, Day: day, CreatedAt: now}
	s.reservations[r.ID] = r
	return r, true, nil
}

func (s *MemoryStore) Release(_ context.Context, r domain.Reservation, commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[r.ID]; !ok {
		return nil
	}
	delete(s.reservations, r.ID)
	if commit {
		s.usage[usageKey{r.CredentialID, r.Type, r.Day}]++
	}
	return nil
}

func (s *MemoryStore) Setting(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func sameToken(a, b domain.Credential) bool {
	return a.Token == b.Token && a.Region == b.Region
}
