package generator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// uploadAll は入力画像を並列にアップロードし、入力と同じ順序で URI を返します。
// ゼロ値の入力は空文字のまま残します。
func (c *Client) uploadAll(ctx context.Context, cred domain.Credential, inputs []domain.ImageInput, kind domain.JobKind) ([]string, error) {
	uris := make([]string, len(inputs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.uploadConcurrency)

	for i, in := range inputs {
		if in.IsZero() {
			continue
		}
		eg.Go(func() error {
			data, err := c.resolver.Resolve(egCtx, in)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			asset, err := c.uploader.Upload(egCtx, cred, data, kind)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			slog.DebugContext(egCtx, "画像をアップロードしました", "index", i, "size", asset.Size, "crc32", asset.CRC32)
			uris[i] = asset.URI
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return uris, nil
}

// await はジョブの終端状態を待って結果にまとめます。
func (c *Client) await(ctx context.Context, cred domain.Credential, job domain.GenerationJob) (*domain.GenerationResult, error) {
	if job.RemoteHistoryID == "" {
		job.Status = domain.StatusFailed
		job.FailureReason = domain.ErrNoHistoryID.Error()
		slog.WarnContext(ctx, "送信は受理されましたが履歴 ID がありません", "credential_id", cred.ID, "kind", string(job.Kind))
		return &domain.GenerationResult{CredentialID: cred.ID, Job: job}, domain.ErrNoHistoryID
	}

	polled, err := c.poller.Wait(ctx, cred, job)
	res := &domain.GenerationResult{
		CredentialID: cred.ID,
		Job:          polled,
		URLs:         polled.ResultAssets,
	}
	if err != nil {
		return res, fmt.Errorf("%s ジョブ %s の結果取得に失敗しました: %w", job.Kind, job.RemoteHistoryID, err)
	}
	slog.InfoContext(ctx, "生成が完了しました",
		"credential_id", cred.ID,
		"history_id", polled.RemoteHistoryID,
		"kind", string(polled.Kind),
		"assets", len(res.URLs),
	)
	return res, nil
}

func (c *Client) ensureCredit(ctx context.Context, cred domain.Credential) {
	if c.credit == nil {
		return
	}
	c.credit.EnsureCredit(ctx, cred)
}
