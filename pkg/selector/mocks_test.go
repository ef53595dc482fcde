package selector

import (
	"context"
	"errors"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

type usageKey struct {
	id  int64
	typ domain.GenerationType
}

// mockRepo は日付を区別しない使用量を返すリポジトリのモックなのだ。
type mockRepo struct {
	creds    []domain.Credential
	usage    map[usageKey]int
	listErr  error
	countErr error
	days     []string
}

func (m *mockRepo) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.creds, nil
}

func (m *mockRepo) CountUsage(ctx context.Context, id int64, t domain.GenerationType, day string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.days = append(m.days, day)
	return m.usage[usageKey{id, t}], nil
}

func (m *mockRepo) RecordUsage(ctx context.Context, id int64, t domain.GenerationType) error {
	if m.usage == nil {
		m.usage = make(map[usageKey]int)
	}
	m.usage[usageKey{id, t}]++
	return nil
}

func (m *mockRepo) UpdateCookies(ctx context.Context, id int64, jar domain.CookieJar) (bool, error) {
	return true, nil
}

type failingPolicy struct{}

func (failingPolicy) QuotaPolicy(context.Context) (domain.QuotaPolicy, error) {
	return domain.QuotaPolicy{}, errors.New("settings unavailable")
}

func credentials(n int) []domain.Credential {
	out := make([]domain.Credential, n)
	for i := range out {
		out[i] = domain.NewCredential(int64(i+1), "user", "tok")
	}
	return out
}
