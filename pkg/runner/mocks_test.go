package runner

import (
	"context"
	"sync"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// mockGenerator は呼び出しごとに respond の戻り値を返します。
type mockGenerator struct {
	mu      sync.Mutex
	calls   int
	creds   []int64
	kinds   []domain.JobKind
	active  int
	peak    int
	respond func(n int, cred domain.Credential) (*domain.GenerationResult, error)
	block   chan struct{}
}

func (m *mockGenerator) call(ctx context.Context, cred domain.Credential, kind domain.JobKind) (*domain.GenerationResult, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.creds = append(m.creds, cred.ID)
	m.kinds = append(m.kinds, kind)
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return jobResult(cred, domain.StatusPolling), ctx.Err()
		}
	}
	if m.respond == nil {
		return jobResult(cred, domain.StatusSucceeded), nil
	}
	return m.respond(n, cred)
}

func (m *mockGenerator) GenerateImages(ctx context.Context, cred domain.Credential, _ domain.ImageRequest) (*domain.GenerationResult, error) {
	return m.call(ctx, cred, domain.JobImage)
}

func (m *mockGenerator) GenerateComposite(ctx context.Context, cred domain.Credential, _ domain.CompositeRequest) (*domain.GenerationResult, error) {
	return m.call(ctx, cred, domain.JobComposite)
}

func (m *mockGenerator) GenerateVideo(ctx context.Context, cred domain.Credential, _ domain.VideoRequest) (*domain.GenerationResult, error) {
	return m.call(ctx, cred, domain.JobVideo)
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func jobResult(cred domain.Credential, status domain.JobStatus) *domain.GenerationResult {
	res := &domain.GenerationResult{
		CredentialID: cred.ID,
		Job: domain.GenerationJob{
			RemoteHistoryID: "h-1",
			Status:          status,
			FreshCookies:    []domain.Cookie{{Name: "sessionid", Value: "fresh", Domain: ".jianying.com"}},
		},
	}
	if status == domain.StatusSucceeded {
		res.URLs = []string{"https://cdn/1.webp"}
	}
	return res
}
