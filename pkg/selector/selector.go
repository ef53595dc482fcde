package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/repository"
)

// ErrReservationUnsupported はリポジトリが仮押さえに対応していないことを示します。
var ErrReservationUnsupported = errors.New("repository does not support reservations")

// PolicySource はクォータ上限の取得元です。
type PolicySource interface {
	QuotaPolicy(ctx context.Context) (domain.QuotaPolicy, error)
}

// StaticPolicy は固定のクォータ上限です。
type StaticPolicy domain.QuotaPolicy

func (p StaticPolicy) QuotaPolicy(context.Context) (domain.QuotaPolicy, error) {
	return domain.QuotaPolicy(p), nil
}

// CredentialSelector は日次クォータが残っているクレデンシャルを選びます。
type CredentialSelector interface {
	Select(ctx context.Context, t domain.GenerationType) (domain.Credential, bool, error)
}

// Selector は候補から一様ランダムに1件を選びます。
//
// Select は読み取りのみで、確認から記録までの間に他のワーカーが同じ枠を使う可能性があります。
// 上限を厳密に守る必要がある場合は Reserve を使います。
type Selector struct {
	repo   repository.CredentialRepository
	policy PolicySource
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option は Selector の設定を変更します。
type Option func(*Selector)

// WithRand は乱数源を差し替えます。
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) { s.rng = r }
}

// WithClock は「今日」を決める時刻の取得元を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

// New は Selector を初期化します。policy が nil の場合は既定の上限を使います。
func New(repo repository.CredentialRepository, policy PolicySource, opts ...Option) (*Selector, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if policy == nil {
		policy = StaticPolicy(domain.DefaultQuotaPolicy())
	}
	s := &Selector{
		repo:   repo,
		policy: policy,
		now:    time.Now,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6a696d656e67)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Eligible は今日の使用量が上限未満のクレデンシャルを返します。
func (s *Selector) Eligible(ctx context.Context, t domain.GenerationType) ([]domain.Credential, int, error) {
	if !t.Valid() {
		return nil, 0, fmt.Errorf("invalid generation type: %s", t)
	}
	policy, err := s.policy.QuotaPolicy(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load quota policy: %w", err)
	}
	limit := policy.Limit(t)

	creds, err := s.repo.ListCredentials(ctx)
	if err != nil {
		return nil, limit, fmt.Errorf("failed to list credentials: %w", err)
	}
	if limit <= 0 {
		return nil, limit, nil
	}

	day := domain.Day(s.now())
	eligible := make([]domain.Credential, 0, len(creds))
	for _, c := range creds {
		used, err := s.repo.CountUsage(ctx, c.ID, t, day)
		if err != nil {
			return nil, limit, fmt.Errorf("failed to count usage for credential %d: %w", c.ID, err)
		}
		if used < limit {
			eligible = append(eligible, c)
		}
	}
	return eligible, limit, nil
}

// Select は候補から1件を選びます。ok が false の場合は利用可能なクレデンシャルがありません。
func (s *Selector) Select(ctx context.Context, t domain.GenerationType) (domain.Credential, bool, error) {
	eligible, limit, err := s.Eligible(ctx, t)
	if err != nil {
		return domain.Credential{}, false, err
	}
	if len(eligible) == 0 {
		slog.WarnContext(ctx, "利用可能なクレデンシャルがありません", "type", t.String(), "limit", limit)
		return domain.Credential{}, false, nil
	}
	c := eligible[s.intN(len(eligible))]
	slog.DebugContext(ctx, "クレデンシャルを選択しました", "credential_id", c.ID, "type", t.String(), "candidates", len(eligible))
	return c, true, nil
}

// Reserve は候補を順に試し、最初に仮押さえできたクレデンシャルを返します。
func (s *Selector) Reserve(ctx context.Context, t domain.GenerationType) (domain.Credential, domain.Reservation, bool, error) {
	reserver, ok := s.repo.(repository.Reserver)
	if !ok {
		return domain.Credential{}, domain.Reservation{}, false, ErrReservationUnsupported
	}
	eligible, limit, err := s.Eligible(ctx, t)
	if err != nil {
		return domain.Credential{}, domain.Reservation{}, false, err
	}
	s.shuffle(eligible)

	day := domain.Day(s.now())
	var errs []error
	for _, c := range eligible {
		r, ok, err := reserver.Reserve(ctx, c.ID, t, limit, day)
		if err != nil {
			slog.WarnContext(ctx, "仮押さえに失敗しました", "credential_id", c.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			return c, r, true, nil
		}
	}
	if len(errs) > 0 && len(errs) == len(eligible) {
		return domain.Credential{}, domain.Reservation{}, false, errors.Join(errs...)
	}
	return domain.Credential{}, domain.Reservation{}, false, nil
}

func (s *Selector) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *Selector) shuffle(creds []domain.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(creds), func(i, j int) { creds[i], creds[j] = creds[j], creds[i] })
}
