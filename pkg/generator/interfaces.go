package generator

import (
	"context"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// ImageGenerator は生成ジョブを送信から結果取得まで一括で行う統合窓口です。
type ImageGenerator interface {
	GenerateImages(ctx context.Context, cred domain.Credential, req domain.ImageRequest) (*domain.GenerationResult, error)
	GenerateComposite(ctx context.Context, cred domain.Credential, req domain.CompositeRequest) (*domain.GenerationResult, error)
	GenerateVideo(ctx context.Context, cred domain.Credential, req domain.VideoRequest) (*domain.GenerationResult, error)
}

// ImageResolver は入力画像の参照をバイト列にします。
type ImageResolver interface {
	Resolve(ctx context.Context, in domain.ImageInput) ([]byte, error)
}

// CreditEnsurer は送信前にクレジットを確認し、必要なら日次分を受け取ります。
// 失敗しても送信は止めません。
type CreditEnsurer interface {
	EnsureCredit(ctx context.Context, cred domain.Credential)
}
