package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/imgutil"
)

// DefaultDownloadConcurrency は同時にダウンロードするアセット数の上限です。
const DefaultDownloadConcurrency = 4

// Downloader は生成結果の URL を取得します。httpkit.ClientInterface が満たします。
type Downloader interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// OutputWriter は保存先への書き込みです。remoteio.OutputWriter が満たします。
type OutputWriter interface {
	Write(ctx context.Context, path string, r io.Reader, contentType string) error
}

// Publisher は生成結果をローカルまたは GCS に保存します。
type Publisher struct {
	writer     OutputWriter
	downloader Downloader
}

func New(writer OutputWriter, downloader Downloader) (*Publisher, error) {
	if writer == nil {
		return nil, fmt.Errorf("writer is required")
	}
	if downloader == nil {
		return nil, fmt.Errorf("downloader is required")
	}
	return &Publisher{writer: writer, downloader: downloader}, nil
}

// Save は結果の全 URL を取得して dir に書き込み、保存先のパスを URL と同じ順序で返します。
func (p *Publisher) Save(ctx context.Context, res *domain.GenerationResult, dir string) ([]string, error) {
	if res == nil || len(res.URLs) == 0 {
		return nil, errors.New("result has no assets to save")
	}
	id := res.Job.RemoteHistoryID
	if id == "" {
		id = res.Job.SubmissionID
	}

	paths := make([]string, len(res.URLs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(DefaultDownloadConcurrency)

	for i, u := range res.URLs {
		eg.Go(func() error {
			data, err := p.downloader.FetchBytes(egCtx, u)
			if err != nil {
				return fmt.Errorf("アセット %d の取得に失敗しました: %w", i+1, err)
			}
			fullPath, err := ResolveOutputPath(dir, FileName(id, i+1, imgutil.ExtensionFor(data)))
			if err != nil {
				return err
			}
			if err := p.writer.Write(egCtx, fullPath, bytes.NewReader(data), imgutil.DetectMIME(data)); err != nil {
				return fmt.Errorf("アセットの書き込みに失敗しました %s: %w", fullPath, err)
			}
			paths[i] = fullPath
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "生成結果を保存しました", "history_id", id, "files", len(paths), "dir", dir)
	return paths, nil
}
