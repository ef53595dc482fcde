package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"
	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/jimeng-image-kit/internal/config"
	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/credit"
	"github.com/shouni/jimeng-image-kit/pkg/generator"
	"github.com/shouni/jimeng-image-kit/pkg/poller"
	"github.com/shouni/jimeng-image-kit/pkg/publisher"
	"github.com/shouni/jimeng-image-kit/pkg/repository"
	"github.com/shouni/jimeng-image-kit/pkg/runner"
	"github.com/shouni/jimeng-image-kit/pkg/selector"
	"github.com/shouni/jimeng-image-kit/pkg/signer"
	"github.com/shouni/jimeng-image-kit/pkg/submitter"
	"github.com/shouni/jimeng-image-kit/pkg/uploader"
)

// AppContext はコマンド実行に必要な部品をまとめて保持します。
type AppContext struct {
	Config    *config.Config
	Store     repository.Store
	Selector  *selector.Selector
	Generator *generator.Client
	Runner    *runner.Runner
	Credit    *credit.Manager
	Publisher *publisher.Publisher
	Reader    remoteio.InputReader
	Writer    publisher.OutputWriter

	ioCloser io.Closer
}

// Close は GCS クライアントとリポジトリの接続を閉じます。
func (a *AppContext) Close() error {
	var errs []error
	if a.ioCloser != nil {
		errs = append(errs, a.ioCloser.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// OpenStore は設定されたドライバーでリポジトリを開きます。
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return repository.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "sqlite", "":
		return repository.NewSQLiteStore(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported db driver: %q", cfg.DBDriver)
	}
}

// NewIO は入出力先を作ります。GCS が無効な場合はクラウドクライアントを持たない
// UniversalInputReader / UniversalIOWriter でローカルファイルのみを扱います。
// 返される io.Closer は GCS を使う場合のみ non-nil です。
func NewIO(ctx context.Context, cfg *config.Config) (remoteio.InputReader, remoteio.OutputWriter, io.Closer, error) {
	if !cfg.UseGCS {
		return remoteio.NewUniversalInputReader(nil, nil), remoteio.NewUniversalIOWriter(nil, nil), nil, nil
	}
	factory, err := gcsfactory.New(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create GCS client factory: %w", err)
	}
	reader, err := factory.InputReader()
	if err != nil {
		_ = factory.Close()
		return nil, nil, nil, fmt.Errorf("failed to create input reader: %w", err)
	}
	writer, err := factory.OutputWriter()
	if err != nil {
		_ = factory.Close()
		return nil, nil, nil, fmt.Errorf("failed to create output writer: %w", err)
	}
	return reader, writer, factory, nil
}

// Build は設定から AppContext を組み立てます。
func Build(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	app, err := BuildWithStore(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

// BuildWithStore は与えられたリポジトリを使って残りの部品を組み立てます。
func BuildWithStore(ctx context.Context, cfg *config.Config, store repository.Store) (*AppContext, error) {
	reader, writer, ioCloser, err := NewIO(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app, err := assemble(ctx, cfg, store, reader, writer)
	if err != nil {
		if ioCloser != nil {
			_ = ioCloser.Close()
		}
		return nil, err
	}
	app.ioCloser = ioCloser
	return app, nil
}

func assemble(ctx context.Context, cfg *config.Config, store repository.Store, reader remoteio.InputReader, writer remoteio.OutputWriter) (*AppContext, error) {
	var fetcher httpkit.ClientInterface = httpkit.New(cfg.FetchTimeout)
	doer := &http.Client{}

	sig := signer.New(signer.NewDeviceIdentity(time.Now()))
	apiOpts := []api.Option{api.WithTimeout(cfg.RequestTimeout)}
	if cfg.BaseURL != "" {
		apiOpts = append(apiOpts, api.WithBaseURL(cfg.BaseURL))
	}
	caller, err := api.New(doer, sig, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	up, err := uploader.New(caller, doer,
		uploader.WithCache(cache.New(cfg.UploadCacheTTL, 2*cfg.UploadCacheTTL), cfg.UploadCacheTTL),
		uploader.WithJPEGQuality(cfg.UploadJPEGQuality),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploader: %w", err)
	}
	resolver, err := uploader.NewResolver(reader, fetcher)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}
	sub, err := submitter.New(caller)
	if err != nil {
		return nil, fmt.Errorf("failed to create submitter: %w", err)
	}
	pol, err := poller.New(caller, poller.WithBudgets(cfg.ImagePollTimeout, cfg.VideoPollTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create poller: %w", err)
	}
	creditMgr, err := credit.NewManager(caller)
	if err != nil {
		return nil, fmt.Errorf("failed to create credit manager: %w", err)
	}
	gen, err := generator.New(resolver, up, sub, pol, generator.WithCredit(creditMgr))
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	var policy selector.PolicySource = repository.SettingsPolicy{Store: store}
	if p, ok := cfg.QuotaOverride(); ok {
		slog.DebugContext(ctx, "環境変数のクォータ上限を使います", "image", p.DailyImageLimit, "video", p.DailyVideoLimit)
		policy = selector.StaticPolicy(p)
	}
	sel, err := selector.New(store, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create selector: %w", err)
	}

	runOpts := []runner.Option{
		runner.WithWorkers(cfg.Workers),
		runner.WithSubmitInterval(cfg.SubmitInterval),
		runner.WithMaxAttempts(cfg.MaxAttempts),
	}
	if cfg.ReserveQuota {
		runOpts = append(runOpts, runner.WithReservation(sel))
	}
	run, err := runner.New(gen, sel, store, runOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	pub, err := publisher.New(writer, fetcher)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Store:     store,
		Selector:  sel,
		Generator: gen,
		Runner:    run,
		Credit:    creditMgr,
		Publisher: pub,
		Reader:    reader,
		Writer:    writer,
	}, nil
}
