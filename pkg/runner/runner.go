package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/generator"
	"github.com/shouni/jimeng-image-kit/pkg/repository"
	"github.com/shouni/jimeng-image-kit/pkg/selector"
)

const (
	DefaultWorkers        = 2
	DefaultSubmitInterval = 3 * time.Second
	DefaultMaxAttempts    = 2
	// submitBurst は開始直後に同時に送信できる件数です。
	submitBurst = 2
)

// QuotaReserver はクォータ枠を仮押さえしてからクレデンシャルを返す選択器です。
type QuotaReserver interface {
	Reserve(ctx context.Context, t domain.GenerationType) (domain.Credential, domain.Reservation, bool, error)
}

// Runner はクレデンシャルの選択・生成・使用量記録をまとめて行うワーカープールです。
//
// 仮押さえを使わない場合、選択時の残量確認は助言的です。並行するワーカーが同じ
// クレデンシャルの最後の1枠を同時に使うことがあり、日次上限をわずかに超える場合があります。
type Runner struct {
	gen         generator.ImageGenerator
	selector    selector.CredentialSelector
	repo        repository.CredentialRepository
	reserver    QuotaReserver
	releaser    repository.Reserver
	workers     int
	interval    time.Duration
	maxAttempts int
}

// Option は Runner の設定を変更します。
type Option func(*Runner)

// WithWorkers は RunBatch の同時実行数を変更します。
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithSubmitInterval は送信の最小間隔を変更します。0 以下で制限しません。
func WithSubmitInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// WithMaxAttempts は再送を含めた最大試行回数を変更します。
func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithReservation は仮押さえによる厳密なクォータ管理を有効にします。
func WithReservation(res QuotaReserver) Option {
	return func(r *Runner) { r.reserver = res }
}

// New は Runner を初期化します。
func New(gen generator.ImageGenerator, sel selector.CredentialSelector, repo repository.CredentialRepository, opts ...Option) (*Runner, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if sel == nil {
		return nil, fmt.Errorf("selector is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	r := &Runner{
		gen:         gen,
		selector:    sel,
		repo:        repo,
		workers:     DefaultWorkers,
		interval:    DefaultSubmitInterval,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.reserver != nil {
		releaser, ok := repo.(repository.Reserver)
		if !ok {
			return nil, selector.ErrReservationUnsupported
		}
		r.releaser = releaser
	}
	return r, nil
}

// Run は1件のタスクを実行します。再送可能なエラーは毎回選択し直して MaxAttempts まで再試行します。
func (r *Runner) Run(ctx context.Context, task Task) (*domain.GenerationResult, error) {
	if err := task.validate(); err != nil {
		return nil, err
	}
	logger := slog.With("task", task.Name, "kind", string(task.Kind))

	var (
		res *domain.GenerationResult
		err error
	)
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		res, err = r.runOnce(ctx, logger, task)
		if err == nil {
			return res, nil
		}
		if !domain.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		if attempt < r.maxAttempts {
			logger.WarnContext(ctx, "再送可能なエラーのため再試行します", "attempt", attempt, "error", err)
		}
	}
	return res, err
}

// RunBatch はタスクを並列に実行します。タスクごとのエラーは Outcome に集め、全体は止めません。
// 戻り値のエラーはコンテキストのキャンセルのみです。
func (r *Runner) RunBatch(ctx context.Context, tasks []Task) ([]Outcome, error) {
	outcomes := make([]Outcome, len(tasks))
	limit := rate.Inf
	if r.interval > 0 {
		limit = rate.Every(r.interval)
	}
	limiter := rate.NewLimiter(limit, submitBurst)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.workers)
	slog.InfoContext(ctx, "バッチ生成を開始します", "tasks", len(tasks), "workers", r.workers, "interval", r.interval)

	for i, task := range tasks {
		outcomes[i].Task = task
		eg.Go(func() error {
			if err := limiter.Wait(egCtx); err != nil {
				outcomes[i].Err = err
				return nil
			}
			res, err := r.Run(egCtx, task)
			outcomes[i].Result = res
			outcomes[i].Err = err
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	slog.InfoContext(ctx, "バッチ生成が終了しました", "tasks", len(tasks), "failed", failed)
	return outcomes, ctx.Err()
}

func (r *Runner) runOnce(ctx context.Context, logger *slog.Logger, task Task) (*domain.GenerationResult, error) {
	usage := task.Kind.UsageType()
	cred, reservation, err := r.acquire(ctx, usage)
	if err != nil {
		return nil, err
	}
	logger = logger.With("credential_id", cred.ID, "username", cred.Username)
	logger.InfoContext(ctx, "生成を開始します")

	res, genErr := r.dispatch(ctx, cred, task)
	r.settle(ctx, logger, cred, usage, reservation, res, genErr)

	if genErr != nil {
		logger.ErrorContext(ctx, "生成に失敗しました", "error", genErr)
		return res, genErr
	}
	logger.InfoContext(ctx, "生成に成功しました", "history_id", res.Job.RemoteHistoryID, "assets", len(res.URLs))
	return res, nil
}

// acquire はクレデンシャルを1件選びます。仮押さえが有効な場合は Reservation も返します。
func (r *Runner) acquire(ctx context.Context, t domain.GenerationType) (domain.Credential, *domain.Reservation, error) {
	if r.reserver != nil {
		cred, res, ok, err := r.reserver.Reserve(ctx, t)
		if err != nil {
			return domain.Credential{}, nil, fmt.Errorf("failed to reserve credential: %w", err)
		}
		if !ok {
			return domain.Credential{}, nil, domain.ErrQuotaExhausted
		}
		return cred, &res, nil
	}

	cred, ok, err := r.selector.Select(ctx, t)
	if err != nil {
		return domain.Credential{}, nil, fmt.Errorf("failed to select credential: %w", err)
	}
	if !ok {
		return domain.Credential{}, nil, domain.ErrQuotaExhausted
	}
	return cred, nil, nil
}

func (r *Runner) dispatch(ctx context.Context, cred domain.Credential, task Task) (*domain.GenerationResult, error) {
	switch task.Kind {
	case domain.JobComposite:
		return r.gen.GenerateComposite(ctx, cred, task.Composite)
	case domain.JobVideo:
		return r.gen.GenerateVideo(ctx, cred, task.Video)
	default:
		return r.gen.GenerateImages(ctx, cred, task.Image)
	}
}

// settle は使用量と Cookie を書き戻します。
// 使用量はプロバイダーのキューに届いたジョブ（終端状態、または履歴 ID なしの受付）だけを数えます。
func (r *Runner) settle(ctx context.Context, logger *slog.Logger, cred domain.Credential, t domain.GenerationType, reservation *domain.Reservation, res *domain.GenerationResult, genErr error) {
	// キャンセルされても記録だけは行う
	bg := context.WithoutCancel(ctx)
	consumed := res != nil && (res.Job.Status.IsTerminal() || errors.Is(genErr, domain.ErrNoHistoryID))

	switch {
	case reservation != nil:
		if err := r.releaser.Release(bg, *reservation, consumed); err != nil {
			logger.WarnContext(ctx, "仮押さえの解除に失敗しました", "reservation_id", reservation.ID, "error", err)
		}
	case consumed:
		if err := r.repo.RecordUsage(bg, cred.ID, t); err != nil {
			logger.WarnContext(ctx, "使用量の記録に失敗しました", "error", err)
		}
	}

	if res == nil || len(res.Job.FreshCookies) == 0 {
		return
	}
	ok, err := r.repo.UpdateCookies(bg, cred.ID, cred.Cookies.Merge(res.Job.FreshCookies))
	switch {
	case err != nil:
		logger.WarnContext(ctx, "Cookie の更新に失敗しました", "error", err)
	case !ok:
		logger.WarnContext(ctx, "Cookie を更新するクレデンシャルが見つかりません")
	default:
		logger.DebugContext(ctx, "Cookie を更新しました", "cookies", len(res.Job.FreshCookies))
	}
}
