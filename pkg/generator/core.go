package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/poller"
	"github.com/shouni/jimeng-image-kit/pkg/submitter"
	"github.com/shouni/jimeng-image-kit/pkg/uploader"
)

// Client は Resolver・Uploader・Submitter・Poller を束ねる生成クライアントです。
type Client struct {
	resolver          ImageResolver
	uploader          uploader.AssetUploader
	submitter         submitter.JobSubmitter
	poller            poller.JobPoller
	credit            CreditEnsurer
	uploadConcurrency int
}

// Option は Client の設定を変更します。
type Option func(*Client)

// WithCredit は送信前のクレジット確認を有効にします。
func WithCredit(c CreditEnsurer) Option {
	return func(cl *Client) { cl.credit = c }
}

// WithUploadConcurrency は同時アップロード数を変更します。
func WithUploadConcurrency(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.uploadConcurrency = n
		}
	}
}

// New は依存関係を注入して Client を初期化します。
func New(resolver ImageResolver, up uploader.AssetUploader, sub submitter.JobSubmitter, pol poller.JobPoller, opts ...Option) (*Client, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if up == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if sub == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if pol == nil {
		return nil, fmt.Errorf("poller is required")
	}
	c := &Client{
		resolver:          resolver,
		uploader:          up,
		submitter:         sub,
		poller:            pol,
		uploadConcurrency: DefaultUploadConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateImages はテキストから画像を生成します。
//
// 送信後に失敗した場合も、ジョブの状態と新しい Cookie を確認できるよう結果を返します。
func (c *Client) GenerateImages(ctx context.Context, cred domain.Credential, req domain.ImageRequest) (*domain.GenerationResult, error) {
	c.ensureCredit(ctx, cred)

	job, err := c.submitter.SubmitImage(ctx, cred, req)
	if err != nil {
		return nil, fmt.Errorf("画像生成の送信に失敗しました: %w", err)
	}
	return c.await(ctx, cred, job)
}

// GenerateComposite は入力画像をすべてアップロードしてから合成を送信します。
func (c *Client) GenerateComposite(ctx context.Context, cred domain.Credential, req domain.CompositeRequest) (*domain.GenerationResult, error) {
	if len(req.Images) == 0 {
		return nil, errors.New("at least one input image is required")
	}

	slog.InfoContext(ctx, "合成用の画像をアップロードします", "credential_id", cred.ID, "images", len(req.Images))
	uris, err := c.uploadAll(ctx, cred, req.Images, domain.JobComposite)
	if err != nil {
		return nil, fmt.Errorf("合成用画像のアップロードに失敗しました: %w", err)
	}

	c.ensureCredit(ctx, cred)
	job, err := c.submitter.SubmitComposite(ctx, cred, req, uris)
	if err != nil {
		return nil, fmt.Errorf("画像合成の送信に失敗しました: %w", err)
	}
	return c.await(ctx, cred, job)
}

// GenerateVideo は動画を生成します。先頭・末尾フレームが指定されていれば先にアップロードします。
func (c *Client) GenerateVideo(ctx context.Context, cred domain.Credential, req domain.VideoRequest) (*domain.GenerationResult, error) {
	var frames submitter.VideoFrames
	inputs := []domain.ImageInput{{Ref: req.Options.FirstFrame}, {Ref: req.Options.LastFrame}}
	if !inputs[0].IsZero() || !inputs[1].IsZero() {
		uris, err := c.uploadAll(ctx, cred, inputs, domain.JobVideo)
		if err != nil {
			return nil, fmt.Errorf("動画フレームのアップロードに失敗しました: %w", err)
		}
		frames = submitter.VideoFrames{First: uris[0], Last: uris[1]}
	}

	c.ensureCredit(ctx, cred)
	job, err := c.submitter.SubmitVideo(ctx, cred, req, frames)
	if err != nil {
		return nil, fmt.Errorf("動画生成の送信に失敗しました: %w", err)
	}
	return c.await(ctx, cred, job)
}
