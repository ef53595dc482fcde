package uploader

import (
	"context"
	"time"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// AssetUploader は画像バイト列をプロバイダーのオブジェクトストレージへ載せ、URI を返します。
type AssetUploader interface {
	Upload(ctx context.Context, cred domain.Credential, data []byte, kind domain.JobKind) (domain.UploadedAsset, error)
}

// ImageCacher は、アップロード済み URI をキャッシュするためのインターフェースです。
type ImageCacher interface {
	// Get は、指定されたキーに紐づくアイテムを取得します。
	Get(key string) (any, bool)
	// Set は、指定されたキーと値、有効期限でアイテムを保存します。
	Set(key string, value any, d time.Duration)
}

// HTTPClient は、URLからデータを取得するためのインターフェースです。
type HTTPClient interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}
